package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// Store - хранилище счетчиков. Increment обязан быть атомарным для одного ключа:
// создает запись с count=1 при первом обращении или после истечения окна,
// иначе увеличивает счетчик.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (models.RateLimitRecord, error)
	Get(ctx context.Context, key string) (*models.RateLimitRecord, error)
}

// Decision - результат проверки
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter - фиксированное окно: не более Limit действий за Window на ключ
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	clock  clockwork.Clock
	prefix string
}

func NewLimiter(store Store, limit int, window time.Duration, clock clockwork.Clock, prefix string) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		clock:  clock,
		prefix: prefix,
	}
}

func (l *Limiter) Limit() int {
	return l.limit
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check учитывает действие и решает, разрешено ли оно
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	record, err := l.store.Increment(ctx, l.prefix+key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: could not increment %q: %w", key, err)
	}
	return l.decide(record), nil
}

// Peek сообщает, заблокирован ли ключ сейчас, не учитывая новое действие
func (l *Limiter) Peek(ctx context.Context, key string) (Decision, error) {
	record, err := l.store.Get(ctx, l.prefix+key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: could not read %q: %w", key, err)
	}
	if record == nil || record.Expired(l.clock.Now()) {
		return Decision{Allowed: true, Remaining: l.limit}, nil
	}
	return l.decide(*record), nil
}

func (l *Limiter) decide(record models.RateLimitRecord) Decision {
	now := l.clock.Now()
	d := Decision{
		Allowed:   record.Count <= l.limit,
		Remaining: max(l.limit-record.Count, 0),
		ResetAt:   record.WindowResetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(record.WindowResetAt.Sub(now), 0)
	}
	return d
}
