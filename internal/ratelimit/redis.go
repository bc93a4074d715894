package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// incrementScript атомарно увеличивает счетчик и, если окно новое, ставит срок жизни.
// Истечение ключа в Redis и есть сброс окна.
var incrementScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if current == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisStore - общий для всех экземпляров счетчик в Redis
type RedisStore struct {
	client *redis.Client
	clock  clockwork.Clock
}

func NewRedisStore(client *redis.Client, clock clockwork.Clock) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{client: client, clock: clock}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (models.RateLimitRecord, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.RateLimitRecord{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return models.RateLimitRecord{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	return models.RateLimitRecord{
		Key:           key,
		Count:         int(res[0]),
		WindowResetAt: s.clock.Now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.RateLimitRecord, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	val, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit counter %q: %w", val, err)
	}

	return &models.RateLimitRecord{
		Key:           key,
		Count:         count,
		WindowResetAt: s.clock.Now().Add(max(ttlCmd.Val(), 0)),
	}, nil
}
