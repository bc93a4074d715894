package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func testIncident() *models.Incident {
	return &models.Incident{
		ID:        uuid.New(),
		UserID:    "student-42",
		Location:  models.Coordinates{Lat: 37.7749, Lng: -122.4194},
		Status:    models.IncidentStatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

type receivedRequest struct {
	body      []byte
	signature string
}

func TestWebhookWorker_DeliversQueuedEventWithSignature(t *testing.T) {
	var mu sync.Mutex
	var received []receivedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, receivedRequest{body: body, signature: r.Header.Get("X-Webhook-Signature")})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestRedis(t)
	cfg := &config.Config{
		WebhookURL:        srv.URL,
		WebhookSecret:     "s3cret",
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
		WebhookBaseDelay:  10 * time.Millisecond,
	}

	incident := testIncident()
	require.NoError(t, NewRedisWebhookPublisher(client).Publish(context.Background(), NewIncidentEvent(incident)))

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewWebhookWorker(client, silentLogger(), cfg)
	worker.Start(ctx)
	defer func() {
		cancel()
		worker.Wait()
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	got := received[0]
	mu.Unlock()

	assert.Equal(t, generateHMACSHA256(string(got.body), "s3cret"), got.signature)

	var event IncidentEvent
	require.NoError(t, json.Unmarshal(got.body, &event))
	assert.Equal(t, EventIncidentCreated, event.Type)
	assert.Equal(t, incident.ID, event.IncidentID)
	assert.Equal(t, incident.Location.Lat, event.Latitude)
}

func TestWebhookWorker_RetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worker := NewWebhookWorker(nil, silentLogger(), &config.Config{
		WebhookURL:        srv.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 5,
		WebhookBaseDelay:  5 * time.Millisecond,
	})

	ok := worker.deliver(context.Background(), NewIncidentEvent(testIncident()), `{}`)

	assert.True(t, ok)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookWorker_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	worker := NewWebhookWorker(nil, silentLogger(), &config.Config{
		WebhookURL:        srv.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 2,
		WebhookBaseDelay:  time.Millisecond,
	})

	assert.False(t, worker.deliver(context.Background(), NewIncidentEvent(testIncident()), `{}`))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhookWorker_SkipsWithoutURL(t *testing.T) {
	worker := NewWebhookWorker(nil, silentLogger(), &config.Config{WebhookTimeout: time.Second})
	assert.False(t, worker.deliver(context.Background(), NewIncidentEvent(testIncident()), `{}`))
}
