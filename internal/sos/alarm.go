// Package sos связывает кнопку тревоги, определение координат и отправку инцидента.
package sos

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/location"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/trigger"
)

const DefaultDispatchTimeout = 15 * time.Second

// Dispatcher регистрирует тревогу. Реализуется HTTP-клиентом и DispatchService.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Acknowledgement, error)
}

// LocationResolver - источник координат для тревоги
type LocationResolver interface {
	Resolve(ctx context.Context) location.Fix
}

// Result - итог одного сработавшего жеста
type Result struct {
	Event trigger.Event
	Fix   location.Fix
	Ack   *models.Acknowledgement
	Err   error
}

type Config struct {
	UserID          string
	Clock           clockwork.Clock
	HoldDuration    time.Duration
	TickInterval    time.Duration
	DispatchTimeout time.Duration
	Feedback        trigger.Feedback
	OnProgress      func(progress float64)
	OnResult        func(Result)
}

// Alarm - клиентская сторона тревоги: удержание -> координаты -> отправка.
// Отправка выполняется ровно один раз на жест и автоматически не повторяется.
type Alarm struct {
	machine         *trigger.Machine
	resolver        LocationResolver
	dispatcher      Dispatcher
	userID          string
	dispatchTimeout time.Duration
	onResult        func(Result)
	logger          *logrus.Logger

	wg sync.WaitGroup
}

func NewAlarm(cfg Config, resolver LocationResolver, dispatcher Dispatcher, logger *logrus.Logger) *Alarm {
	a := &Alarm{
		resolver:        resolver,
		dispatcher:      dispatcher,
		userID:          cfg.UserID,
		dispatchTimeout: cfg.DispatchTimeout,
		onResult:        cfg.OnResult,
		logger:          logger,
	}
	if a.dispatchTimeout <= 0 {
		a.dispatchTimeout = DefaultDispatchTimeout
	}

	a.machine = trigger.NewMachine(trigger.Config{
		Clock:        cfg.Clock,
		Duration:     cfg.HoldDuration,
		TickInterval: cfg.TickInterval,
		Feedback:     cfg.Feedback,
		OnProgress:   cfg.OnProgress,
		OnTrigger:    a.handleTrigger,
	})
	return a
}

func (a *Alarm) Press() bool       { return a.machine.Press() }
func (a *Alarm) Release() bool     { return a.machine.Release() }
func (a *Alarm) Acknowledge() bool { return a.machine.Acknowledge() }

func (a *Alarm) State() trigger.State { return a.machine.State() }
func (a *Alarm) Progress() float64    { return a.machine.Progress() }

// Wait дожидается завершения всех начатых отправок
func (a *Alarm) Wait() {
	a.wg.Wait()
}

func (a *Alarm) handleTrigger(event trigger.Event) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		result := a.dispatch(event)
		if a.onResult != nil {
			a.onResult(result)
		}
	}()
}

func (a *Alarm) dispatch(event trigger.Event) Result {
	log := a.logger.WithFields(logrus.Fields{
		"service":    "alarm",
		"method":     "dispatch",
		"user_id":    a.userID,
		"gesture_id": event.GestureID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), a.dispatchTimeout)
	defer cancel()

	// Отправка идет при любом исходе определения координат
	fix := a.resolver.Resolve(ctx)
	gestureID := event.GestureID
	coords := fix.Coordinates

	req := models.DispatchRequest{
		UserID:          a.userID,
		GestureID:       &gestureID,
		Coordinates:     &coords,
		LocationFailure: fix.Failure,
		TriggeredAt:     event.TriggeredAt,
	}

	ack, err := a.dispatcher.Dispatch(ctx, req)
	if err != nil {
		log.WithError(err).Error("SOS dispatch failed")
		return Result{Event: event, Fix: fix, Err: err}
	}

	log.WithFields(logrus.Fields{
		"incident_id":      ack.IncidentID,
		"location_failure": fix.Failure,
		"duplicate":        ack.Duplicate,
	}).Info("SOS dispatched")
	return Result{Event: event, Fix: fix, Ack: ack}
}
