package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	broadcast_mocks "github.com/shenikar/sos_broadcasting_system/internal/broadcast/mocks"
	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/service/mocks"
	"github.com/shenikar/sos_broadcasting_system/internal/webhook"
	webhook_mocks "github.com/shenikar/sos_broadcasting_system/internal/webhook/mocks"
)

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		EstimatedResponseTime: "5-10 minutes",
		DispatchFanoutTimeout: time.Second,
	}
}

type dispatchFixture struct {
	svc       DispatchService
	repo      *mocks.MockIncidentRepository
	publisher *broadcast_mocks.MockPublisher
	webhooks  *webhook_mocks.MockWebhookPublisher
	clock     *clockwork.FakeClock
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	ctrl := gomock.NewController(t)
	f := &dispatchFixture{
		repo:      mocks.NewMockIncidentRepository(ctrl),
		publisher: broadcast_mocks.NewMockPublisher(ctrl),
		webhooks:  webhook_mocks.NewMockWebhookPublisher(ctrl),
		clock:     clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 22, 15, 0, 0, time.UTC)),
	}
	f.svc = NewDispatchService(f.repo, f.publisher, f.webhooks, f.clock, silentLogger(), testConfig())
	return f
}

func TestDispatch_RecordsIncidentAndAlertsSecurity(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	gestureID := uuid.New()
	coords := models.Coordinates{Lat: 37.7749, Lng: -122.4194}

	var created *models.Incident
	f.repo.EXPECT().GetByGesture(ctx, "student-42", gestureID).Return(nil, ErrIncidentNotFound)
	f.repo.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			created = inc
			return nil
		}).
		Times(1)
	f.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg broadcast.Message) error {
			assert.Equal(t, broadcast.ChannelSecurity, msg.Channel)
			assert.Equal(t, EventCriticalAlert, msg.Event)

			var alert models.SecurityAlert
			if assert.NoError(t, json.Unmarshal(msg.Payload, &alert)) {
				assert.Equal(t, "student-42", alert.UserID)
				assert.Equal(t, coords, alert.Location)
			}
			return nil
		}).
		Times(1)
	f.webhooks.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event webhook.IncidentEvent) error {
			assert.Equal(t, webhook.EventIncidentCreated, event.Type)
			assert.Equal(t, coords.Lat, event.Latitude)
			return nil
		}).
		Times(1)

	ack, err := f.svc.Dispatch(ctx, models.DispatchRequest{
		UserID:      "student-42",
		GestureID:   &gestureID,
		Coordinates: &coords,
	})
	f.svc.Wait()

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, created.ID, ack.IncidentID)
	assert.Equal(t, uuid.Version(7), created.ID.Version())
	assert.Equal(t, models.IncidentStatusActive, created.Status)
	assert.Equal(t, coords, created.Location)
	assert.Equal(t, f.clock.Now().UTC(), created.CreatedAt)
	assert.Equal(t, "5-10 minutes", ack.EstimatedResponseTime)
	assert.False(t, ack.Duplicate)
}

func TestDispatch_LocationFailureForcesSentinel(t *testing.T) {
	f := newDispatchFixture(t)

	f.repo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			assert.Equal(t, models.SentinelCoordinates, inc.Location)
			assert.Equal(t, models.LocationFailurePermissionDenied, inc.LocationFailure)
			return nil
		})
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	f.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:          "student-42",
		Coordinates:     &models.Coordinates{Lat: 10, Lng: 20},
		LocationFailure: models.LocationFailurePermissionDenied,
	})
	f.svc.Wait()

	require.NoError(t, err)
	assert.Equal(t, models.LocationFailurePermissionDenied, ack.LocationFailure)
}

func TestDispatch_MissingCoordinatesRejected(t *testing.T) {
	f := newDispatchFixture(t)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{UserID: "student-42"})

	assert.Nil(t, ack)
	assert.ErrorIs(t, err, ErrLocationRequired)
}

func TestDispatch_MissingUserRejected(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{Coordinates: &models.Coordinates{}})

	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestDispatch_DuplicateGestureReturnsOriginal(t *testing.T) {
	f := newDispatchFixture(t)
	gestureID := uuid.New()
	existing := &models.Incident{
		ID:        uuid.New(),
		UserID:    "student-42",
		GestureID: &gestureID,
		Status:    models.IncidentStatusActive,
	}

	f.repo.EXPECT().GetByGesture(gomock.Any(), "student-42", gestureID).Return(existing, nil)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
	f.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:      "student-42",
		GestureID:   &gestureID,
		Coordinates: &models.Coordinates{Lat: 1, Lng: 2},
	})
	f.svc.Wait()

	require.NoError(t, err)
	assert.Equal(t, existing.ID, ack.IncidentID)
	assert.True(t, ack.Duplicate)
}

func TestDispatch_ConcurrentDuplicateResolvedByConstraint(t *testing.T) {
	f := newDispatchFixture(t)
	gestureID := uuid.New()
	winner := &models.Incident{ID: uuid.New(), UserID: "student-42", GestureID: &gestureID}

	gomock.InOrder(
		f.repo.EXPECT().GetByGesture(gomock.Any(), "student-42", gestureID).Return(nil, ErrIncidentNotFound),
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(ErrDuplicateGesture),
		f.repo.EXPECT().GetByGesture(gomock.Any(), "student-42", gestureID).Return(winner, nil),
	)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:      "student-42",
		GestureID:   &gestureID,
		Coordinates: &models.Coordinates{Lat: 1, Lng: 2},
	})
	f.svc.Wait()

	require.NoError(t, err)
	assert.Equal(t, winner.ID, ack.IncidentID)
	assert.True(t, ack.Duplicate)
}

func TestDispatch_PersistenceFailureNotRecorded(t *testing.T) {
	f := newDispatchFixture(t)
	dbErr := errors.New("connection refused")

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(dbErr).Times(1)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:      "student-42",
		Coordinates: &models.Coordinates{Lat: 1, Lng: 2},
	})

	assert.Nil(t, ack)
	assert.ErrorIs(t, err, ErrIncidentNotRecorded)
	assert.ErrorIs(t, err, dbErr)
}

func TestDispatch_FanoutFailureDoesNotAffectAck(t *testing.T) {
	f := newDispatchFixture(t)

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	f.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	ack, err := f.svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:      "student-42",
		Coordinates: &models.Coordinates{Lat: 1, Lng: 2},
	})
	f.svc.Wait()

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ack.IncidentID)
}

func TestDispatch_FanoutOutlivesRequestContext(t *testing.T) {
	f := newDispatchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(pubCtx context.Context, _ broadcast.Message) error {
			assert.NoError(t, pubCtx.Err())
			return nil
		})
	f.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.svc.Dispatch(ctx, models.DispatchRequest{
		UserID:      "student-42",
		Coordinates: &models.Coordinates{Lat: 1, Lng: 2},
	})
	cancel()
	f.svc.Wait()

	require.NoError(t, err)
}

// subscriber - получатель сообщений из настоящего хаба
type subscriber struct {
	mu       sync.Mutex
	messages []broadcast.Message
}

func (s *subscriber) Send(_ context.Context, msg broadcast.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *subscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestDispatch_AlertReachesOnlySecuritySubscribers(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIncidentRepository(ctrl)
	hub := broadcast.NewHub(silentLogger())
	defer hub.Close()

	guard, student := &subscriber{}, &subscriber{}
	require.NoError(t, hub.Subscribe(hub.Connect("guard-1", guard), broadcast.ChannelSecurity))
	require.NoError(t, hub.Subscribe(hub.Connect("student-7", student), broadcast.ChannelMessCrowd))

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	svc := NewDispatchService(repo, hub, nil, clockwork.NewFakeClock(), silentLogger(), testConfig())
	_, err := svc.Dispatch(context.Background(), models.DispatchRequest{
		UserID:      "student-42",
		Coordinates: &models.Coordinates{Lat: 37.7749, Lng: -122.4194},
	})
	require.NoError(t, err)
	svc.Wait()

	require.Eventually(t, func() bool { return guard.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return student.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
