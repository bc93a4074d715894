package telemetry

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// MessSimulator публикует случайный уровень загруженности, пока нет реальных датчиков
type MessSimulator struct {
	feeds    CrowdPublisher
	interval time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger

	mu  sync.Mutex
	rnd *rand.Rand

	wg sync.WaitGroup
}

func NewMessSimulator(feeds CrowdPublisher, interval time.Duration, clock clockwork.Clock, logger *logrus.Logger) *MessSimulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MessSimulator{
		feeds:    feeds,
		interval: interval,
		clock:    clock,
		logger:   logger,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Start запускает публикацию до отмены ctx. Нулевой интервал выключает симулятор.
func (s *MessSimulator) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.tick(ctx)
			}
		}
	}()
	s.logger.WithFields(logrus.Fields{
		"component": "telemetry",
		"interval":  s.interval,
	}).Info("Mess crowd simulator started")
}

func (s *MessSimulator) Wait() {
	s.wg.Wait()
}

func (s *MessSimulator) tick(ctx context.Context) {
	s.mu.Lock()
	level := s.rnd.IntN(101)
	s.mu.Unlock()

	if _, err := s.feeds.PublishMessCrowd(ctx, &level, ""); err != nil {
		s.logger.WithField("component", "telemetry").WithError(err).Warn("Simulated crowd update failed")
	}
}
