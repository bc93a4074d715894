package location

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestResolver_Success(t *testing.T) {
	clock := clockwork.NewFakeClock()
	coords := models.Coordinates{Lat: 37.7749, Lng: -122.4194}
	r := NewResolver(NewStaticProvider(coords, clock), 0, clock, silentLogger())

	fix := r.Resolve(context.Background())

	assert.Equal(t, coords, fix.Coordinates)
	assert.Equal(t, models.LocationFailureNone, fix.Failure)
	assert.Equal(t, clock.Now(), fix.AcquiredAt)
}

func TestResolver_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.LocationFailure
	}{
		{"permission denied", ErrPermissionDenied, models.LocationFailurePermissionDenied},
		{"unavailable", ErrPositionUnavailable, models.LocationFailurePositionUnavailable},
		{"unsupported", ErrUnsupported, models.LocationFailureUnsupported},
		{"wrapped permission denied", errors.Join(errors.New("gps"), ErrPermissionDenied), models.LocationFailurePermissionDenied},
		{"unknown error", errors.New("boom"), models.LocationFailurePositionUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(FailingProvider{Err: tt.err}, time.Second, clockwork.NewFakeClock(), silentLogger())

			fix := r.Resolve(context.Background())

			assert.Equal(t, models.SentinelCoordinates, fix.Coordinates)
			assert.Equal(t, tt.want, fix.Failure)
		})
	}
}

func TestResolver_NilProviderIsUnsupported(t *testing.T) {
	r := NewResolver(nil, time.Second, clockwork.NewFakeClock(), silentLogger())

	fix := r.Resolve(context.Background())

	assert.Equal(t, models.LocationFailureUnsupported, fix.Failure)
	assert.Equal(t, models.SentinelCoordinates, fix.Coordinates)
}

func TestResolver_TimeoutWithHungProvider(t *testing.T) {
	clock := clockwork.NewFakeClock()
	// Провайдер игнорирует контекст и не отвечает никогда
	hung := ProviderFunc(func(context.Context) (Position, error) {
		select {}
	})
	r := NewResolver(hung, 5*time.Second, clock, silentLogger())

	done := make(chan Fix, 1)
	go func() { done <- r.Resolve(context.Background()) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(5 * time.Second)

	select {
	case fix := <-done:
		assert.Equal(t, models.LocationFailureTimeout, fix.Failure)
		assert.Equal(t, models.SentinelCoordinates, fix.Coordinates)
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after timeout")
	}
}

func TestResolver_NoResultBeforeTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewResolver(BlockingProvider{}, 5*time.Second, clock, silentLogger())

	done := make(chan Fix, 1)
	go func() { done <- r.Resolve(context.Background()) }()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(4 * time.Second)
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(done) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, models.LocationFailureTimeout, (<-done).Failure)
}

func TestResolver_RejectsStalePosition(t *testing.T) {
	clock := clockwork.NewFakeClock()
	stale := ProviderFunc(func(context.Context) (Position, error) {
		return Position{
			Coordinates: models.Coordinates{Lat: 1, Lng: 2},
			Timestamp:   clock.Now().Add(-time.Minute),
		}, nil
	})
	r := NewResolver(stale, time.Second, clock, silentLogger())

	fix := r.Resolve(context.Background())

	assert.Equal(t, models.LocationFailurePositionUnavailable, fix.Failure)
	assert.Equal(t, models.SentinelCoordinates, fix.Coordinates)
}

func TestResolver_ParentContextCancelled(t *testing.T) {
	r := NewResolver(BlockingProvider{}, time.Hour, clockwork.NewFakeClock(), silentLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fix := r.Resolve(ctx)

	assert.Equal(t, models.LocationFailureTimeout, fix.Failure)
}

func TestParseFailure(t *testing.T) {
	tests := []struct {
		in      string
		want    models.LocationFailure
		wantErr bool
	}{
		{"permission-denied", models.LocationFailurePermissionDenied, false},
		{"PERMISSION_DENIED", models.LocationFailurePermissionDenied, false},
		{"position-unavailable", models.LocationFailurePositionUnavailable, false},
		{"timeout", models.LocationFailureTimeout, false},
		{"unsupported", models.LocationFailureUnsupported, false},
		{"nope", models.LocationFailureNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailure(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, failureFor(ErrorFor(got)))
		})
	}
}
