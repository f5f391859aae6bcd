// Package advertising builds the peripheral's advertising payload and owns
// the policy for when it is broadcast: once at boot and again after every
// disconnect.
package advertising

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble/linux/adv"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the broadcast interval used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Advertiser is the radio capability the controller drives.
type Advertiser interface {
	Advertise(payload []byte, interval time.Duration) error
}

// Controller broadcasts a payload fixed at construction time.
type Controller struct {
	radio   Advertiser
	payload []byte
	name    string
	logger  *logrus.Logger

	mu       sync.Mutex
	interval time.Duration
	starts   atomic.Int64
}

// NewController creates a controller for payload. The payload bytes are
// copied and never recomputed afterwards.
func NewController(radio Advertiser, payload *adv.Packet, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		radio:    radio,
		payload:  append([]byte(nil), payload.Bytes()...),
		name:     payload.LocalName(),
		logger:   logger,
		interval: DefaultInterval,
	}
}

// Start begins or restarts broadcasting at interval. A non-positive interval
// selects DefaultInterval. Radio errors are returned unchanged in the chain.
func (c *Controller) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.radio.Advertise(c.payload, interval); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	c.interval = interval
	n := c.starts.Add(1)

	c.logger.WithFields(logrus.Fields{
		"interval": interval,
		"name":     c.name,
		"starts":   n,
	}).Debug("Advertising started")
	return nil
}

// Restart re-broadcasts at the interval of the last successful Start.
func (c *Controller) Restart() error {
	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()
	return c.Start(interval)
}

// Interval returns the interval of the last successful Start.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Starts returns how many times advertising was successfully (re)started.
func (c *Controller) Starts() int64 {
	return c.starts.Load()
}

// Name returns the advertised device name.
func (c *Controller) Name() string {
	return c.name
}

// Payload returns a copy of the broadcast payload.
func (c *Controller) Payload() []byte {
	return append([]byte(nil), c.payload...)
}
