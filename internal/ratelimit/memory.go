package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

// MemoryStore - счетчики в памяти одного процесса. Межэкземплярной координации нет.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.RateLimitRecord
	clock   clockwork.Clock
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		records: make(map[string]*models.RateLimitRecord),
		clock:   clock,
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (models.RateLimitRecord, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok || record.Expired(now) {
		record = &models.RateLimitRecord{
			Key:           key,
			Count:         1,
			WindowResetAt: now.Add(window),
		}
		s.records[key] = record
		return *record, nil
	}

	record.Count++
	return *record, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*models.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

// Sweep удаляет записи с истекшим окном и возвращает их число
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// StartJanitor периодически вызывает Sweep до отмены ctx
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.Sweep()
			}
		}
	}()
}
