package loopback

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

// Snapshot is the telemetry group as re-read by a central after a
// notification.
type Snapshot struct {
	Handle  radio.ConnHandle
	Trigger radio.CharID
	Sample  telemetry.SensorSample
	Keys    telemetry.KeyState
}

// Central plays the client side of the notify-then-poll protocol: it
// subscribes to the heartbeat characteristics and, on each notification,
// reads the full telemetry group.
type Central struct {
	radio  *Radio
	handle radio.ConnHandle
	logger *logrus.Logger
}

// Attach connects a new central to r and subscribes it to ids.
func Attach(r *Radio, logger *logrus.Logger, ids ...radio.CharID) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}

	h, err := r.Connect()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := r.Subscribe(h, id); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", id, err)
		}
	}
	return &Central{radio: r, handle: h, logger: logger}, nil
}

// Handle returns the central's connection handle.
func (c *Central) Handle() radio.ConnHandle {
	return c.handle
}

// Poll reads and decodes every telemetry characteristic.
func (c *Central) Poll() (Snapshot, error) {
	s := Snapshot{Handle: c.handle}

	read := func(id radio.CharID) ([]byte, error) {
		b, err := c.radio.Read(c.handle, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", id, err)
		}
		return b, nil
	}

	b, err := read(radio.CharAccel)
	if err != nil {
		return s, err
	}
	if s.Sample.Accel, err = telemetry.DecodeAccel(b); err != nil {
		return s, err
	}

	if b, err = read(radio.CharMag); err != nil {
		return s, err
	}
	if s.Sample.Mag, err = telemetry.DecodeWide(b); err != nil {
		return s, err
	}

	if b, err = read(radio.CharGyro); err != nil {
		return s, err
	}
	if s.Sample.Gyro, err = telemetry.DecodeWide(b); err != nil {
		return s, err
	}

	if b, err = read(radio.CharTemperature); err != nil {
		return s, err
	}
	if s.Sample.Temperature, err = telemetry.DecodeTemperature(b); err != nil {
		return s, err
	}

	if b, err = read(radio.CharKeys); err != nil {
		return s, err
	}
	if s.Keys, err = telemetry.DecodeKeys(b); err != nil {
		return s, err
	}

	return s, nil
}

// Run polls after every notification and hands the snapshot to fn. It
// returns nil when the central is disconnected and ctx.Err() on cancellation.
func (c *Central) Run(ctx context.Context, fn func(Snapshot)) error {
	inbox, err := c.radio.Inbox(c.handle)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-inbox:
			if !ok {
				return nil
			}
			s, err := c.Poll()
			if errors.Is(err, radio.ErrUnknownConnection) {
				return nil
			}
			if err != nil {
				return err
			}
			s.Trigger = n.ID
			fn(s)
		}
	}
}

// SetDisplay writes the display power command.
func (c *Central) SetDisplay(on bool) error {
	v := byte(0)
	if on {
		v = 1
	}
	return c.radio.Write(c.handle, radio.CharDisplayOn, []byte{v})
}

// Disconnect drops the link.
func (c *Central) Disconnect() error {
	return c.radio.Disconnect(c.handle)
}
