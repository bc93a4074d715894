// Package trigger реализует кнопку тревоги с удержанием: тревога срабатывает,
// только если кнопку держат непрерывно Duration.
package trigger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultDuration     = 3 * time.Second
	DefaultTickInterval = 16 * time.Millisecond
)

var (
	// PressPulse - короткий отклик при начале удержания
	PressPulse = []time.Duration{50 * time.Millisecond}
	// TriggerPulse - вибро-паттерн SOS при срабатывании
	TriggerPulse = []time.Duration{
		200 * time.Millisecond, 100 * time.Millisecond,
		200 * time.Millisecond, 100 * time.Millisecond,
		500 * time.Millisecond,
	}
)

// State - состояние кнопки
type State int

const (
	StateIdle State = iota
	StatePressing
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressing:
		return "pressing"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Feedback - тактильный или звуковой отклик
type Feedback interface {
	Pulse(pattern []time.Duration)
}

type noopFeedback struct{}

func (noopFeedback) Pulse([]time.Duration) {}

// Event описывает срабатывание одного жеста
type Event struct {
	GestureID   uuid.UUID
	PressedAt   time.Time
	TriggeredAt time.Time
}

// Config - параметры машины состояний
type Config struct {
	Clock        clockwork.Clock
	Duration     time.Duration
	TickInterval time.Duration
	Feedback     Feedback
	// OnTrigger вызывается ровно один раз на жест, вне блокировок машины
	OnTrigger func(Event)
	// OnProgress вызывается под блокировкой машины, поэтому не должен вызывать ее методы
	OnProgress func(progress float64)
}

// Machine - Idle -> Pressing -> Triggered -> (Acknowledge) -> Idle
type Machine struct {
	clock        clockwork.Clock
	duration     time.Duration
	tickInterval time.Duration
	feedback     Feedback
	onTrigger    func(Event)
	onProgress   func(float64)

	mu        sync.Mutex
	state     State
	progress  float64
	gestureID uuid.UUID
	pressedAt time.Time
	ticker    clockwork.Ticker
	stop      chan struct{}
}

func NewMachine(cfg Config) *Machine {
	m := &Machine{
		clock:        cfg.Clock,
		duration:     cfg.Duration,
		tickInterval: cfg.TickInterval,
		feedback:     cfg.Feedback,
		onTrigger:    cfg.OnTrigger,
		onProgress:   cfg.OnProgress,
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.duration <= 0 {
		m.duration = DefaultDuration
	}
	if m.tickInterval <= 0 {
		m.tickInterval = DefaultTickInterval
	}
	if m.feedback == nil {
		m.feedback = noopFeedback{}
	}
	return m
}

// State возвращает текущее состояние
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Progress возвращает прогресс удержания 0..100
func (m *Machine) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// Press начинает удержание. Допустимо только из Idle.
func (m *Machine) Press() bool {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return false
	}

	m.state = StatePressing
	m.progress = 0
	m.gestureID = uuid.New()
	m.pressedAt = m.clock.Now()
	m.ticker = m.clock.NewTicker(m.tickInterval)
	m.stop = make(chan struct{})

	go m.run(m.gestureID, m.ticker, m.stop)
	m.mu.Unlock()

	m.feedback.Pulse(PressPulse)
	return true
}

// Release отменяет удержание до срабатывания. После возврата ни один
// колбэк этого жеста больше не вызывается. Если порог уже пройден, а тик
// еще не успел его заметить, жест срабатывает здесь и Release возвращает false.
func (m *Machine) Release() bool {
	m.mu.Lock()
	if m.state != StatePressing {
		m.mu.Unlock()
		return false
	}

	now := m.clock.Now()
	if now.Sub(m.pressedAt) >= m.duration {
		event := m.fireLocked(now)
		m.mu.Unlock()
		m.emit(event)
		return false
	}

	m.stopTicking()
	m.state = StateIdle
	m.progress = 0
	m.mu.Unlock()
	return true
}

// Acknowledge - явное подтверждение пользователя, единственный выход из Triggered
func (m *Machine) Acknowledge() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTriggered {
		return false
	}
	m.state = StateIdle
	m.progress = 0
	return true
}

func (m *Machine) run(gesture uuid.UUID, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if done := m.tick(gesture); done {
				return
			}
		}
	}
}

// tick пересчитывает прогресс; возвращает true, когда горутину пора завершить
func (m *Machine) tick(gesture uuid.UUID) bool {
	m.mu.Lock()
	if m.state != StatePressing || m.gestureID != gesture {
		m.mu.Unlock()
		return true
	}

	now := m.clock.Now()
	elapsed := now.Sub(m.pressedAt)
	m.progress = min(100, float64(elapsed)/float64(m.duration)*100)

	if m.progress < 100 {
		if m.onProgress != nil {
			m.onProgress(m.progress)
		}
		m.mu.Unlock()
		return false
	}

	event := m.fireLocked(now)
	m.mu.Unlock()

	m.emit(event)
	return true
}

// fireLocked переводит жест в Triggered. Вызывается под m.mu.
func (m *Machine) fireLocked(now time.Time) Event {
	m.stopTicking()
	m.state = StateTriggered
	m.progress = 100
	if m.onProgress != nil {
		m.onProgress(m.progress)
	}
	return Event{
		GestureID:   m.gestureID,
		PressedAt:   m.pressedAt,
		TriggeredAt: now,
	}
}

func (m *Machine) emit(event Event) {
	m.feedback.Pulse(TriggerPulse)
	if m.onTrigger != nil {
		m.onTrigger(event)
	}
}

func (m *Machine) stopTicking() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}
