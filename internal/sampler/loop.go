// Package sampler drives the peripheral: once per tick it samples the
// sensors, stores the encoded values in the GATT session, notifies linked
// centrals and mirrors the central's display command onto the local screen.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultYield is the pause between ticks.
const DefaultYield = time.Millisecond

// Config tunes the loop.
type Config struct {
	// Yield is slept after every tick to bound radio and bus contention.
	Yield time.Duration
	// Notify enables the per-tick heartbeat notifications.
	Notify bool
}

// DefaultConfig returns the loop settings of the stock firmware.
func DefaultConfig() Config {
	return Config{Yield: DefaultYield, Notify: true}
}

// Deps are the loop's collaborators. Fatal, if set, carries errors raised
// outside the loop (for example from a lifecycle callback) that must stop it.
type Deps struct {
	Sensor      SensorSource
	Keypad      Keypad
	Backlight   Backlight
	Display     Display
	Session     Session
	Connections Connections
	Fatal       <-chan error
}

// Loop is the single logical thread of application control.
type Loop struct {
	deps   Deps
	cfg    Config
	logger *logrus.Logger

	booted   atomic.Bool
	ticks    atomic.Int64
	notifies atomic.Int64
}

// New creates a loop. Every collaborator in deps except Fatal is required.
func New(deps Deps, cfg Config, logger *logrus.Logger) (*Loop, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch {
	case deps.Sensor == nil:
		return nil, errors.New("sensor source is required")
	case deps.Keypad == nil:
		return nil, errors.New("keypad is required")
	case deps.Backlight == nil:
		return nil, errors.New("backlight is required")
	case deps.Display == nil:
		return nil, errors.New("display is required")
	case deps.Session == nil:
		return nil, errors.New("session is required")
	case deps.Connections == nil:
		return nil, errors.New("connection registry is required")
	}

	return &Loop{deps: deps, cfg: cfg, logger: logger}, nil
}

// Boot powers the backlight and clears the screen once before the first tick.
// Callers that must order other startup work after the screen is ready call
// it before Run; Run then skips it.
func (l *Loop) Boot() error {
	if err := l.deps.Backlight.SetPower(true); err != nil {
		return fmt.Errorf("failed to power display: %w", err)
	}
	if err := l.deps.Display.Erase(); err != nil {
		return fmt.Errorf("failed to erase display: %w", err)
	}
	l.deps.Display.SetPosition(0, 0)
	l.booted.Store(true)
	return nil
}

// Tick runs one iteration. Any collaborator error is returned unchanged in
// the chain; the loop does not retry.
func (l *Loop) Tick(ctx context.Context) error {
	sample, err := l.deps.Sensor.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sensor: %w", err)
	}
	keys, err := l.deps.Keypad.Keys()
	if err != nil {
		return fmt.Errorf("failed to read keys: %w", err)
	}

	l.deps.Session.WriteTelemetry(sample)
	l.deps.Session.WriteKeys(keys)

	displayOn := l.deps.Session.ReadDisplayCommand()

	if l.cfg.Notify {
		if err := l.deps.Session.Notify(l.deps.Connections.Active()); err != nil {
			return fmt.Errorf("failed to notify: %w", err)
		}
		l.notifies.Add(1)
	}

	if err := l.deps.Backlight.SetPower(displayOn); err != nil {
		return fmt.Errorf("failed to set backlight: %w", err)
	}

	if displayOn {
		if err := Render(l.deps.Display, sample); err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
	}

	n := l.ticks.Add(1)
	if l.logger.IsLevelEnabled(logrus.TraceLevel) {
		l.logger.WithFields(logrus.Fields{
			"tick":    n,
			"display": displayOn,
			"temp":    sample.Temperature,
		}).Trace("Tick")
	}
	return nil
}

// Run boots if needed and then ticks until ctx is cancelled, a tick fails or
// an error arrives on Deps.Fatal. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.booted.Load() {
		if err := l.Boot(); err != nil {
			return err
		}
	}
	l.logger.WithField("notify", l.cfg.Notify).Info("Sample loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			l.logger.WithField("ticks", l.Ticks()).Info("Sample loop stopped")
			return nil
		case err := <-l.deps.Fatal:
			return err
		default:
		}

		if err := l.Tick(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}

		if l.cfg.Yield > 0 {
			timer.Reset(l.cfg.Yield)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		}
	}
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() int64 {
	return l.ticks.Load()
}

// Notifies returns the number of notify fan-outs attempted.
func (l *Loop) Notifies() int64 {
	return l.notifies.Load()
}
