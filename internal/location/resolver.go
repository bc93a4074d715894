// Package location получает координаты пользователя за ограниченное время.
// Любая неудача сводится к заглушке (0,0) с указанием причины.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrPermissionDenied    = errors.New("location: permission denied")
	ErrPositionUnavailable = errors.New("location: position unavailable")
	ErrUnsupported         = errors.New("location: not supported")
)

// Position - одно показание источника координат
type Position struct {
	Coordinates models.Coordinates
	Timestamp   time.Time
}

// Provider - источник координат (GPS устройства, браузер, фиксированная точка)
type Provider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Fix - результат определения местоположения
type Fix struct {
	Coordinates models.Coordinates
	Failure     models.LocationFailure
	AcquiredAt  time.Time
}

type Resolver struct {
	provider Provider
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger
}

func NewResolver(provider Provider, timeout time.Duration, clock clockwork.Clock, logger *logrus.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		provider: provider,
		timeout:  timeout,
		clock:    clock,
		logger:   logger,
	}
}

type reading struct {
	pos Position
	err error
}

// Resolve никогда не возвращает ошибку: при неудаче отдается заглушка и причина.
// Провайдер работает в отдельной горутине, так что зависший провайдер
// не задерживает вызывающего дольше таймаута.
func (r *Resolver) Resolve(ctx context.Context) Fix {
	requestedAt := r.clock.Now()

	if r.provider == nil {
		return r.fail(models.LocationFailureUnsupported, ErrUnsupported)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan reading, 1)
	go func() {
		pos, err := r.provider.CurrentPosition(ctx)
		result <- reading{pos: pos, err: err}
	}()

	timer := r.clock.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-result:
		if res.err != nil {
			return r.fail(failureFor(res.err), res.err)
		}
		// Кэшированные показания, снятые до запроса, не принимаются
		if res.pos.Timestamp.Before(requestedAt) {
			return r.fail(models.LocationFailurePositionUnavailable, ErrPositionUnavailable)
		}
		return Fix{
			Coordinates: res.pos.Coordinates,
			AcquiredAt:  res.pos.Timestamp,
		}
	case <-timer.Chan():
		return r.fail(models.LocationFailureTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return r.fail(models.LocationFailureTimeout, ctx.Err())
	}
}

func (r *Resolver) fail(reason models.LocationFailure, err error) Fix {
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"service": "LocationResolver",
			"reason":  reason,
		}).WithError(err).Warn("location acquisition failed, using fallback coordinates")
	}
	return Fix{
		Coordinates: models.SentinelCoordinates,
		Failure:     reason,
		AcquiredAt:  r.clock.Now(),
	}
}

func failureFor(err error) models.LocationFailure {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return models.LocationFailurePermissionDenied
	case errors.Is(err, ErrUnsupported):
		return models.LocationFailureUnsupported
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.LocationFailureTimeout
	default:
		return models.LocationFailurePositionUnavailable
	}
}

// ParseFailure переводит имя причины из CLI или конфигурации в LocationFailure
func ParseFailure(name string) (models.LocationFailure, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_")) {
	case string(models.LocationFailurePermissionDenied):
		return models.LocationFailurePermissionDenied, nil
	case string(models.LocationFailurePositionUnavailable):
		return models.LocationFailurePositionUnavailable, nil
	case string(models.LocationFailureUnsupported):
		return models.LocationFailureUnsupported, nil
	case string(models.LocationFailureTimeout):
		return models.LocationFailureTimeout, nil
	}
	return models.LocationFailureNone, fmt.Errorf("location: unknown failure %q", name)
}

// ErrorFor возвращает ошибку провайдера, которую Resolve сведет к причине f
func ErrorFor(f models.LocationFailure) error {
	switch f {
	case models.LocationFailurePermissionDenied:
		return ErrPermissionDenied
	case models.LocationFailureUnsupported:
		return ErrUnsupported
	case models.LocationFailureTimeout:
		return context.DeadlineExceeded
	case models.LocationFailureNone:
		return nil
	default:
		return ErrPositionUnavailable
	}
}
