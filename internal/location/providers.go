package location

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// ProviderFunc позволяет использовать функцию как Provider
type ProviderFunc func(ctx context.Context) (Position, error)

func (f ProviderFunc) CurrentPosition(ctx context.Context) (Position, error) {
	return f(ctx)
}

// StaticProvider всегда отдает одну и ту же точку со свежей меткой времени
type StaticProvider struct {
	coords models.Coordinates
	clock  clockwork.Clock
}

func NewStaticProvider(coords models.Coordinates, clock clockwork.Clock) *StaticProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StaticProvider{coords: coords, clock: clock}
}

func (p *StaticProvider) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position{Coordinates: p.coords, Timestamp: p.clock.Now()}, nil
}

// FailingProvider всегда возвращает заданную ошибку
type FailingProvider struct {
	Err error
}

func (p FailingProvider) CurrentPosition(context.Context) (Position, error) {
	return Position{}, p.Err
}

// BlockingProvider не отвечает, пока не отменен контекст. Имитирует GPS без сигнала.
type BlockingProvider struct{}

func (BlockingProvider) CurrentPosition(ctx context.Context) (Position, error) {
	<-ctx.Done()
	return Position{}, ctx.Err()
}
