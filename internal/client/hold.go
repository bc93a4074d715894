package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/location"
	"github.com/shenikar/sos_broadcasting_system/internal/models"
	"github.com/shenikar/sos_broadcasting_system/internal/sos"
	"github.com/shenikar/sos_broadcasting_system/internal/trigger"
	"github.com/shenikar/sos_broadcasting_system/pkg/logger"
)

// HoldOptions - параметры одного удержания кнопки из CLI
type HoldOptions struct {
	SettingsPath string
	// HoldFor - сколько держать кнопку до отпускания
	HoldFor time.Duration
	// Overrides применяется поверх файла настроек
	Overrides func(*Settings)
	Clock     clockwork.Clock
	Out       io.Writer
}

// Hold нажимает кнопку, держит HoldFor и отпускает. Если удержания хватило
// для срабатывания, ждет ответа сервера и печатает подтверждение.
func Hold(ctx context.Context, opts HoldOptions) (*sos.Result, error) {
	settings, err := LoadSettings(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	if opts.Overrides != nil {
		opts.Overrides(settings)
	}
	if err := Validate(settings); err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	log := logger.NewWithOutput(settings.LogLevel, logger.FormatText, os.Stderr)
	provider, err := providerFor(settings, clock)
	if err != nil {
		return nil, err
	}
	resolver := location.NewResolver(provider, settings.LocationTimeout, clock, log)
	dispatcher := New(settings.ServerURL, settings.Token, settings.RequestTimeout)

	results := make(chan sos.Result, 1)
	alarm := sos.NewAlarm(sos.Config{
		UserID:       settings.UserID,
		Clock:        clock,
		HoldDuration: settings.HoldDuration,
		Feedback:     &printFeedback{out: out},
		OnResult:     func(r sos.Result) { results <- r },
	}, resolver, dispatcher, log)

	log.WithFields(logrus.Fields{
		"server_url": settings.ServerURL,
		"hold_for":   opts.HoldFor,
	}).Info("Holding SOS button")

	alarm.Press()
	select {
	case <-ctx.Done():
		alarm.Release()
		return nil, ctx.Err()
	case <-clock.After(opts.HoldFor):
	}

	if alarm.Release() {
		fmt.Fprintf(out, "released at %.0f%%, SOS cancelled\n", alarm.Progress())
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-results:
		alarm.Wait()
		if r.Err != nil {
			return &r, r.Err
		}
		printAck(out, r)
		return &r, nil
	}
}

func providerFor(settings *Settings, clock clockwork.Clock) (location.Provider, error) {
	if settings.LocationError != "" {
		failure, err := location.ParseFailure(settings.LocationError)
		if err != nil {
			return nil, err
		}
		return location.FailingProvider{Err: location.ErrorFor(failure)}, nil
	}
	if settings.Latitude != nil && settings.Longitude != nil {
		return location.NewStaticProvider(models.Coordinates{Lat: *settings.Latitude, Lng: *settings.Longitude}, clock), nil
	}
	// Без координат и без GPS устройства
	return nil, nil
}

func printAck(out io.Writer, r sos.Result) {
	fmt.Fprintf(out, "SOS sent: incident %s\n", r.Ack.IncidentID)
	fmt.Fprintf(out, "  location: %.4f, %.4f\n", r.Fix.Coordinates.Lat, r.Fix.Coordinates.Lng)
	if r.Fix.Failure.Failed() {
		fmt.Fprintf(out, "  location unavailable: %s\n", r.Fix.Failure)
	}
	if r.Ack.EstimatedResponseTime != "" {
		fmt.Fprintf(out, "  estimated response: %s\n", r.Ack.EstimatedResponseTime)
	}
	if r.Ack.Duplicate {
		fmt.Fprintln(out, "  (already registered)")
	}
}

// printFeedback выводит вибро-паттерн текстом
type printFeedback struct {
	out io.Writer
}

func (f *printFeedback) Pulse(pattern []time.Duration) {
	if len(pattern) == len(trigger.TriggerPulse) {
		fmt.Fprintln(f.out, "SOS triggered")
		return
	}
	parts := make([]string, len(pattern))
	for i, d := range pattern {
		parts[i] = d.String()
	}
	fmt.Fprintf(f.out, "bzz [%s]\n", strings.Join(parts, " "))
}
