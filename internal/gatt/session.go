// Package gatt holds the peripheral's characteristic values and mediates
// every access to them: sample-loop writes, central reads, the single
// central write (display power) and the per-tick notification fan-out.
//
// Consistency model: only temperature and keys are notified. Accel, mag and
// gyro are refreshed in the same tick, so a central that re-reads the
// telemetry group after any notification gets a snapshot at most one tick
// apart between fields. This is not an atomic multi-field read.
package gatt

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

// Notifier pushes a value to one connection.
type Notifier interface {
	Notify(h radio.ConnHandle, id radio.CharID, value []byte) error
}

type slot struct {
	def   radio.CharacteristicDef
	value atomic.Pointer[[]byte]
}

func (s *slot) load() []byte {
	if p := s.value.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *slot) store(b []byte) {
	s.value.Store(&b)
}

// Stats counts notification outcomes since the session was created.
type Stats struct {
	Notified int64 // notifications handed to the radio
	Skipped  int64 // handles that disappeared mid fan-out
}

// Session is the value store behind the GATT table. All methods are safe for
// concurrent use.
type Session struct {
	services  []radio.ServiceDef
	slots     *orderedmap.OrderedMap[radio.CharID, *slot]
	notifier  Notifier
	displayOn atomic.Bool
	logger    *logrus.Logger

	notified atomic.Int64
	skipped  atomic.Int64
}

// NewSession creates a session for services. Readable characteristics start
// with the encoding of a zero sample and the display command starts as on.
func NewSession(services []radio.ServiceDef, notifier Notifier, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Session{
		services: services,
		slots:    orderedmap.New[radio.CharID, *slot](),
		notifier: notifier,
		logger:   logger,
	}

	for _, svc := range services {
		for _, c := range svc.Characteristics {
			s.slots.Set(c.ID, &slot{def: c})
		}
	}

	s.WriteTelemetry(telemetry.SensorSample{})
	s.WriteKeys(telemetry.KeyState{})
	s.displayOn.Store(true)
	if sl, ok := s.slots.Get(radio.CharDisplayOn); ok {
		sl.store([]byte{1})
	}

	return s
}

// Services returns the table the session was built from.
func (s *Session) Services() []radio.ServiceDef {
	return s.services
}

// Characteristics returns every characteristic in declaration order.
func (s *Session) Characteristics() []radio.CharacteristicDef {
	defs := make([]radio.CharacteristicDef, 0, s.slots.Len())
	for pair := s.slots.Oldest(); pair != nil; pair = pair.Next() {
		defs = append(defs, pair.Value.def)
	}
	return defs
}

// WriteTelemetry encodes and stores accel, mag, gyro and temperature. It does
// not notify.
func (s *Session) WriteTelemetry(sample telemetry.SensorSample) {
	s.set(radio.CharAccel, telemetry.EncodeAccel(sample.Accel))
	s.set(radio.CharMag, telemetry.EncodeWide(sample.Mag))
	s.set(radio.CharGyro, telemetry.EncodeWide(sample.Gyro))
	s.set(radio.CharTemperature, telemetry.EncodeTemperature(sample.Temperature))
}

// WriteKeys encodes and stores the button states.
func (s *Session) WriteKeys(keys telemetry.KeyState) {
	s.set(radio.CharKeys, telemetry.EncodeKeys(keys))
}

// ReadDisplayCommand returns the last display power state written by a
// central, or true if none has been written.
func (s *Session) ReadDisplayCommand() bool {
	return s.displayOn.Load()
}

// Notify pushes temperature and keys to every handle. Handles that are no
// longer connected are skipped; any other radio error aborts the fan-out and
// is returned.
func (s *Session) Notify(handles []radio.ConnHandle) error {
	ids := NotifiedCharacteristics()
	values := make([][]byte, len(ids))
	for i, id := range ids {
		values[i] = s.get(id)
	}

	for _, h := range handles {
		for i, id := range ids {
			err := s.notifier.Notify(h, id, values[i])
			if errors.Is(err, radio.ErrUnknownConnection) {
				s.skipped.Add(1)
				s.logger.WithField("conn", h).Debug("Skipping notify for departed connection")
				break
			}
			if err != nil {
				return &radio.ConnectionError{Handle: h, Op: "notify " + string(id), Err: err}
			}
			s.notified.Add(1)
		}
	}
	return nil
}

// Stats returns the notification counters.
func (s *Session) Stats() Stats {
	return Stats{Notified: s.notified.Load(), Skipped: s.skipped.Load()}
}

// ReadValue serves a central read.
func (s *Session) ReadValue(id radio.CharID) ([]byte, error) {
	sl, ok := s.slots.Get(id)
	if !ok {
		return nil, &radio.UnknownCharacteristicError{ID: id}
	}
	if !sl.def.Access.Readable() {
		return nil, fmt.Errorf("%s: %w", id, radio.ErrReadNotPermitted)
	}
	return append([]byte(nil), sl.load()...), nil
}

// WriteValue serves a central write. Only the display-control value is
// writable; it is decoded as a big-endian integer and any non-zero value
// means on. An empty write decodes to zero.
func (s *Session) WriteValue(id radio.CharID, data []byte) error {
	sl, ok := s.slots.Get(id)
	if !ok {
		return &radio.UnknownCharacteristicError{ID: id}
	}
	if !sl.def.Access.Writable() {
		return fmt.Errorf("%s: %w", id, radio.ErrWriteNotPermitted)
	}

	on := DecodeDisplayCommand(data)
	sl.store(append([]byte(nil), data...))
	s.displayOn.Store(on)

	s.logger.WithFields(logrus.Fields{
		"char":  id,
		"value": on,
	}).Debug("Display command written")
	return nil
}

// DecodeDisplayCommand interprets data as a big-endian unsigned integer of
// any width and reports whether it is non-zero.
func DecodeDisplayCommand(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return true
		}
	}
	return false
}

func (s *Session) set(id radio.CharID, b []byte) {
	if sl, ok := s.slots.Get(id); ok {
		sl.store(b)
	}
}

func (s *Session) get(id radio.CharID) []byte {
	if sl, ok := s.slots.Get(id); ok {
		return sl.load()
	}
	return nil
}
