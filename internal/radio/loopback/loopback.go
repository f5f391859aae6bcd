// Package loopback is an in-memory radio. It hosts the GATT table without any
// Bluetooth hardware and lets tests (or a dry run of the CLI) play the part
// of centrals: connect, subscribe, read, write and disconnect.
//
// Lifecycle events are delivered synchronously on the goroutine that calls
// Connect or Disconnect, one at a time, and never while the radio's own lock
// is held, so handlers may call back into the radio.
package loopback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/ringchan"
)

// FirstHandle is the handle assigned to the first central.
const FirstHandle radio.ConnHandle = 0x40

// DefaultInboxSize bounds the undelivered notifications kept per central.
const DefaultInboxSize = 16

// maxLog bounds the notification history.
const maxLog = 4096

var (
	// ErrNotAdvertising is returned by Connect while the peripheral is not
	// connectable.
	ErrNotAdvertising = errors.New("peripheral is not advertising")

	// ErrNotRegistered is returned when a central accesses attributes before
	// Register.
	ErrNotRegistered = errors.New("no services registered")
)

// Notification is one value pushed to a central.
type Notification struct {
	Handle radio.ConnHandle
	ID     radio.CharID
	Value  []byte
	At     time.Time
}

type central struct {
	subs  map[radio.CharID]bool
	inbox *ringchan.RingChannel[Notification]
}

// Radio implements radio.Radio in memory.
type Radio struct {
	logger *logrus.Logger

	// eventMu serialises lifecycle delivery.
	eventMu sync.Mutex

	mu          sync.Mutex
	defs        map[radio.CharID]radio.CharacteristicDef
	attrs       radio.AttributeHandler
	handler     radio.LifecycleHandler
	conns       map[radio.ConnHandle]*central
	next        radio.ConnHandle
	advertising bool
	payload     []byte
	interval    time.Duration
	advertised  int
	advertErr   error
	log         []Notification
	closed      bool
}

// New creates an idle loopback radio.
func New(logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		logger: logger,
		conns:  make(map[radio.ConnHandle]*central),
		next:   FirstHandle,
	}
}

// Register implements radio.Radio.
func (r *Radio) Register(services []radio.ServiceDef, attrs radio.AttributeHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return radio.ErrClosed
	}
	if r.defs != nil {
		return errors.New("services already registered")
	}

	r.defs = make(map[radio.CharID]radio.CharacteristicDef)
	for _, svc := range services {
		for _, c := range svc.Characteristics {
			r.defs[c.ID] = c
		}
	}
	r.attrs = attrs
	return nil
}

// SetLifecycleHandler implements radio.Radio.
func (r *Radio) SetLifecycleHandler(h radio.LifecycleHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Advertise implements radio.Radio.
func (r *Radio) Advertise(payload []byte, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return radio.ErrClosed
	}
	if r.advertErr != nil {
		return r.advertErr
	}

	r.advertising = true
	r.payload = append([]byte(nil), payload...)
	r.interval = interval
	r.advertised++
	return nil
}

// Notify implements radio.Radio.
func (r *Radio) Notify(h radio.ConnHandle, id radio.CharID, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return radio.ErrClosed
	}
	c, ok := r.conns[h]
	if !ok {
		return radio.ErrUnknownConnection
	}
	if _, ok := r.defs[id]; !ok {
		return &radio.UnknownCharacteristicError{ID: id}
	}
	if !c.subs[id] {
		return nil
	}

	n := Notification{Handle: h, ID: id, Value: append([]byte(nil), value...), At: time.Now()}
	r.log = append(r.log, n)
	if len(r.log) > maxLog {
		r.log = r.log[len(r.log)-maxLog:]
	}
	c.inbox.Send(n)
	return nil
}

// Close implements radio.Radio. Every central is dropped without lifecycle
// events and their inboxes are closed.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.advertising = false
	for h, c := range r.conns {
		c.inbox.Close()
		delete(r.conns, h)
	}
	return nil
}

// Connect simulates a central connecting. Like a legacy connectable
// advertisement, a successful connection stops advertising.
func (r *Radio) Connect() (radio.ConnHandle, error) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, radio.ErrClosed
	}
	if !r.advertising {
		r.mu.Unlock()
		return 0, ErrNotAdvertising
	}
	h := r.next
	r.next++
	r.conns[h] = &central{
		subs:  make(map[radio.CharID]bool),
		inbox: ringchan.New[Notification](DefaultInboxSize),
	}
	r.advertising = false
	handler := r.handler
	r.mu.Unlock()

	r.logger.WithField("conn", h).Debug("Loopback central connected")
	if handler != nil {
		handler.OnConnect(h)
	}
	return h, nil
}

// Disconnect simulates a central going away.
func (r *Radio) Disconnect(h radio.ConnHandle) error {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	c, ok := r.conns[h]
	if !ok {
		r.mu.Unlock()
		return &radio.ConnectionError{Handle: h, Op: "disconnect", Err: radio.ErrUnknownConnection}
	}
	delete(r.conns, h)
	c.inbox.Close()
	handler := r.handler
	r.mu.Unlock()

	r.logger.WithField("conn", h).Debug("Loopback central disconnected")
	if handler != nil {
		handler.OnDisconnect(h)
	}
	return nil
}

// InjectDisconnect delivers a disconnect event for h whether or not it is
// connected, the way a stack may replay a stale event.
func (r *Radio) InjectDisconnect(h radio.ConnHandle) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()

	r.mu.Lock()
	if c, ok := r.conns[h]; ok {
		delete(r.conns, h)
		c.inbox.Close()
	}
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		handler.OnDisconnect(h)
	}
}

// Subscribe enables notifications of id for h.
func (r *Radio) Subscribe(h radio.ConnHandle, id radio.CharID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[h]
	if !ok {
		return &radio.ConnectionError{Handle: h, Op: "subscribe", Err: radio.ErrUnknownConnection}
	}
	def, ok := r.defs[id]
	if !ok {
		return &radio.UnknownCharacteristicError{ID: id}
	}
	if !def.Access.Notifiable() {
		return fmt.Errorf("%s does not support notifications", id)
	}
	c.subs[id] = true
	return nil
}

// Read performs a central read.
func (r *Radio) Read(h radio.ConnHandle, id radio.CharID) ([]byte, error) {
	attrs, err := r.attrsFor(h, "read")
	if err != nil {
		return nil, err
	}
	return attrs.ReadValue(id)
}

// Write performs a central write.
func (r *Radio) Write(h radio.ConnHandle, id radio.CharID, data []byte) error {
	attrs, err := r.attrsFor(h, "write")
	if err != nil {
		return err
	}
	return attrs.WriteValue(id, data)
}

func (r *Radio) attrsFor(h radio.ConnHandle, op string) (radio.AttributeHandler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[h]; !ok {
		return nil, &radio.ConnectionError{Handle: h, Op: op, Err: radio.ErrUnknownConnection}
	}
	if r.attrs == nil {
		return nil, ErrNotRegistered
	}
	return r.attrs, nil
}

// Inbox returns the notifications pending for h. The channel is closed when
// h disconnects or the radio closes.
func (r *Radio) Inbox(h radio.ConnHandle) (<-chan Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[h]
	if !ok {
		return nil, &radio.ConnectionError{Handle: h, Op: "inbox", Err: radio.ErrUnknownConnection}
	}
	return c.inbox.C(), nil
}

// FailAdvertise makes every later Advertise call fail with err. A nil err
// restores normal behaviour.
func (r *Radio) FailAdvertise(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertErr = err
}

// Advertising reports whether the peripheral is currently connectable.
func (r *Radio) Advertising() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertising
}

// AdvertiseCount returns the number of successful Advertise calls.
func (r *Radio) AdvertiseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advertised
}

// Payload returns the last advertised payload and interval.
func (r *Radio) Payload() ([]byte, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.payload...), r.interval
}

// Notifications returns the recorded notifications, oldest first.
func (r *Radio) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.log...)
}

// Connected returns the number of connected centrals.
func (r *Radio) Connected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
