// Package peripheral wires the telemetry session to a radio. A Peripheral is
// the single context object shared by the sample loop and the radio's
// lifecycle callbacks; it is built once at startup and closed on shutdown.
package peripheral

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/gatt"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/registry"
)

// Options configures a Peripheral.
type Options struct {
	Name       string
	Appearance uint16
	Interval   time.Duration
}

// Peripheral owns the connection registry, the advertising controller and
// the GATT session, and reacts to connect/disconnect events.
type Peripheral struct {
	radio      radio.Radio
	registry   *registry.Registry
	advertiser *advertising.Controller
	session    *gatt.Session
	interval   time.Duration
	logger     *logrus.Logger

	fatal     chan error
	closeOnce sync.Once
	closeErr  error
}

// New builds the advertising payload and the GATT session, publishes the
// service table on r and installs the peripheral as r's lifecycle handler.
// Advertising does not start until Start.
func New(r radio.Radio, opts Options, logger *logrus.Logger) (*Peripheral, error) {
	if logger == nil {
		logger = logrus.New()
	}

	payload, err := advertising.BuildPayload(opts.Name, gatt.AdvertisedUUIDs(), opts.Appearance)
	if err != nil {
		return nil, fmt.Errorf("failed to build advertising payload: %w", err)
	}

	p := &Peripheral{
		radio:      r,
		registry:   registry.New(logger),
		advertiser: advertising.NewController(r, payload, logger),
		session:    gatt.NewSession(gatt.Services(), r, logger),
		interval:   opts.Interval,
		logger:     logger,
		fatal:      make(chan error, 1),
	}

	if err := r.Register(p.session.Services(), p.session); err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}
	r.SetLifecycleHandler(p)

	return p, nil
}

// Start begins advertising. It is called once at boot.
func (p *Peripheral) Start() error {
	if err := p.advertiser.Start(p.interval); err != nil {
		return err
	}
	p.logger.WithFields(logrus.Fields{
		"name":     p.advertiser.Name(),
		"interval": p.advertiser.Interval(),
	}).Info("Advertising")
	return nil
}

// OnConnect records a new central.
func (p *Peripheral) OnConnect(h radio.ConnHandle) {
	p.registry.OnConnect(h)
	p.logger.WithFields(logrus.Fields{
		"conn":  h,
		"total": p.registry.Len(),
	}).Info("Central connected")
}

// OnDisconnect forgets the central and restarts advertising. An advertising
// failure here has no caller to return to, so it is reported on Fatal.
func (p *Peripheral) OnDisconnect(h radio.ConnHandle) {
	fields := logrus.Fields{"conn": h}
	if at, ok := p.registry.ConnectedAt(h); ok {
		fields["duration"] = time.Since(at).Round(time.Millisecond)
	}
	p.registry.OnDisconnect(h)
	fields["total"] = p.registry.Len()
	p.logger.WithFields(fields).Info("Central disconnected")

	if err := p.advertiser.Restart(); err != nil {
		p.fail(fmt.Errorf("after disconnect of %s: %w", h, err))
	}
}

// Fatal delivers the first unrecoverable error raised outside the sample
// loop's own calls.
func (p *Peripheral) Fatal() <-chan error {
	return p.fatal
}

func (p *Peripheral) fail(err error) {
	select {
	case p.fatal <- err:
		p.logger.WithError(err).Error("Peripheral failed")
	default:
		p.logger.WithError(err).Debug("Dropping secondary fatal error")
	}
}

// Session returns the GATT value store.
func (p *Peripheral) Session() *gatt.Session {
	return p.session
}

// Registry returns the connection registry.
func (p *Peripheral) Registry() *registry.Registry {
	return p.registry
}

// Advertiser returns the advertising controller.
func (p *Peripheral) Advertiser() *advertising.Controller {
	return p.advertiser
}

// Active returns a snapshot of the connected handles.
func (p *Peripheral) Active() []radio.ConnHandle {
	return p.registry.Active()
}

// Close shuts the radio down. It is safe to call more than once.
func (p *Peripheral) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.radio.Close()
	})
	return p.closeErr
}
