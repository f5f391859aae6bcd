// Package goble runs the peripheral on a local Bluetooth controller through
// go-ble's Linux HCI stack.
//
// go-ble invokes connect and disconnect handlers on its HCI event goroutine,
// where issuing another HCI command would deadlock. The handlers therefore
// only update the handle table and enqueue the event; a named pump goroutine
// delivers events to the LifecycleHandler in order.
package goble

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/sirupsen/logrus"

	"github.com/srg/imuble/internal/groutine"
	"github.com/srg/imuble/internal/radio"
)

// backlogWarning is the number of undelivered lifecycle events above which a
// slow handler is reported.
const backlogWarning = 64

type subKey struct {
	addr string
	id   radio.CharID
}

// notifier is the part of ble.Notifier used to push values.
type notifier interface {
	Write(b []byte) (int, error)
}

// Options configures the HCI radio.
type Options struct {
	DeviceID int
	Interval time.Duration
}

// Radio implements radio.Radio on a go-ble HCI device.
type Radio struct {
	dev    Device
	logger *logrus.Logger

	// conns maps live connection handles to the peer address go-ble reports
	// through ble.Conn.RemoteAddr.
	conns *hashmap.Map[radio.ConnHandle, string]

	subMu sync.Mutex
	subs  map[subKey]notifier

	handlerMu sync.RWMutex
	handler   radio.LifecycleHandler

	advMu    sync.Mutex
	interval time.Duration

	events *eventQueue
	group  groutine.Group

	closeOnce sync.Once
	closeErr  error
}

// New opens the HCI device and starts the lifecycle pump.
func New(opts Options, logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Radio{
		logger:   logger,
		conns:    hashmap.New[radio.ConnHandle, string](),
		subs:     make(map[subKey]notifier),
		interval: opts.Interval,
		events:   newEventQueue(),
	}

	dev, err := DeviceFactory(DeviceConfig{
		ID:        opts.DeviceID,
		AdvParams: AdvParams(opts.Interval),
		OnConnect: func(e evt.LEConnectionComplete) {
			r.connected(radio.ConnHandle(e.ConnectionHandle()), peerAddr(e.PeerAddress()))
		},
		OnDisconnect: func(e evt.DisconnectionComplete) {
			r.disconnected(radio.ConnHandle(e.ConnectionHandle()))
		},
	})
	if err != nil {
		return nil, err
	}
	r.dev = dev

	r.group.Go(context.Background(), "goble-lifecycle", r.pump)

	logger.WithField("hci", opts.DeviceID).Debug("HCI device opened")
	return r, nil
}

// peerAddr formats an HCI peer address, which arrives least significant
// byte first, the way ble.Conn.RemoteAddr prints it.
func peerAddr(a [6]byte) string {
	return net.HardwareAddr{a[5], a[4], a[3], a[2], a[1], a[0]}.String()
}

// Register implements radio.Radio.
func (r *Radio) Register(services []radio.ServiceDef, attrs radio.AttributeHandler) error {
	for _, def := range services {
		svc := ble.NewService(def.UUID)
		for _, cd := range def.Characteristics {
			r.addCharacteristic(svc, cd, attrs)
		}
		if err := r.dev.AddService(svc); err != nil {
			return NormalizeError(fmt.Errorf("failed to add service %s: %w", def.Name, err))
		}
		r.logger.WithFields(logrus.Fields{
			"service": def.Name,
			"uuid":    def.UUID.String(),
		}).Debug("Service registered")
	}
	return nil
}

func (r *Radio) addCharacteristic(svc *ble.Service, cd radio.CharacteristicDef, attrs radio.AttributeHandler) {
	c := svc.NewCharacteristic(cd.UUID)
	id := cd.ID

	if cd.Access.Readable() {
		c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			v, err := attrs.ReadValue(id)
			if err != nil {
				r.logger.WithError(err).WithField("char", id).Debug("Read rejected")
				rsp.SetStatus(ble.ErrReadNotPerm)
				return
			}
			if _, err := rsp.Write(v); err != nil {
				r.logger.WithError(err).WithField("char", id).Debug("Read response failed")
			}
		}))
	}

	if cd.Access.Notifiable() {
		c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
			addr := req.Conn().RemoteAddr().String()
			r.subscribe(addr, id, n)
			<-n.Context().Done()
			r.unsubscribe(addr, id, n)
		}))
	}

	if cd.Access.Writable() {
		c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			if err := attrs.WriteValue(id, req.Data()); err != nil {
				r.logger.WithError(err).WithField("char", id).Debug("Write rejected")
				rsp.SetStatus(ble.ErrWriteNotPerm)
			}
		}))
	}
}

func (r *Radio) subscribe(addr string, id radio.CharID, n notifier) {
	r.subMu.Lock()
	r.subs[subKey{addr: addr, id: id}] = n
	r.subMu.Unlock()

	r.logger.WithFields(logrus.Fields{"addr": addr, "char": id}).Debug("Central subscribed")
}

// unsubscribe removes the subscription only if it still belongs to n, so a
// late cleanup cannot drop a newer subscription from the same central.
func (r *Radio) unsubscribe(addr string, id radio.CharID, n notifier) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	key := subKey{addr: addr, id: id}
	if cur, ok := r.subs[key]; ok && cur == n {
		delete(r.subs, key)
		r.logger.WithFields(logrus.Fields{"addr": addr, "char": id}).Debug("Central unsubscribed")
	}
}

func (r *Radio) dropSubscriptions(addr string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for key := range r.subs {
		if key.addr == addr {
			delete(r.subs, key)
		}
	}
}

// SetLifecycleHandler implements radio.Radio.
func (r *Radio) SetLifecycleHandler(h radio.LifecycleHandler) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handler = h
}

// Advertise implements radio.Radio. Advertising is stopped first so the
// payload and parameters can be replaced.
func (r *Radio) Advertise(payload []byte, interval time.Duration) error {
	r.advMu.Lock()
	defer r.advMu.Unlock()

	if err := r.dev.StopAdvertising(); err != nil {
		r.logger.WithError(err).Debug("Stop advertising before restart failed")
	}

	if interval != r.interval {
		if err := r.dev.SetAdvParams(AdvParams(interval)); err != nil {
			return NormalizeError(fmt.Errorf("failed to set advertising parameters: %w", err))
		}
		r.interval = interval
	}

	if err := r.dev.SetAdvertisement(payload, nil); err != nil {
		return NormalizeError(fmt.Errorf("failed to set advertising data: %w", err))
	}
	if err := r.dev.Advertise(); err != nil {
		return NormalizeError(fmt.Errorf("failed to enable advertising: %w", err))
	}
	return nil
}

// Notify implements radio.Radio.
func (r *Radio) Notify(h radio.ConnHandle, id radio.CharID, value []byte) error {
	addr, ok := r.conns.Get(h)
	if !ok {
		return radio.ErrUnknownConnection
	}

	r.subMu.Lock()
	n, ok := r.subs[subKey{addr: addr, id: id}]
	r.subMu.Unlock()
	if !ok {
		return nil
	}

	if _, err := n.Write(value); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Close stops the controller and the lifecycle pump.
func (r *Radio) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.dev.Stop()
		r.events.close()
		r.group.Wait()
	})
	return r.closeErr
}

// connected runs on the HCI event goroutine.
func (r *Radio) connected(h radio.ConnHandle, addr string) {
	r.conns.Set(h, addr)
	r.enqueue(lifecycleEvent{kind: eventConnect, handle: h})
}

// disconnected runs on the HCI event goroutine.
func (r *Radio) disconnected(h radio.ConnHandle) {
	if addr, ok := r.conns.Get(h); ok {
		r.conns.Del(h)
		r.dropSubscriptions(addr)
	}
	r.enqueue(lifecycleEvent{kind: eventDisconnect, handle: h})
}

func (r *Radio) enqueue(e lifecycleEvent) {
	if !r.events.push(e) {
		r.logger.WithField("conn", e.handle).Debug("Lifecycle event after close ignored")
		return
	}
	if n := r.events.pending(); n > backlogWarning {
		r.logger.WithFields(logrus.Fields{"conn": e.handle, "pending": n}).Warn("Lifecycle handler is falling behind")
	}
}

func (r *Radio) pump(ctx context.Context) {
	defer r.logger.Debugf("%s: exiting", groutine.Name(ctx))

	for {
		batch, ok := r.events.next()
		if !ok {
			return
		}
		for _, e := range batch {
			r.deliver(e)
		}
	}
}

func (r *Radio) deliver(e lifecycleEvent) {
	r.handlerMu.RLock()
	h := r.handler
	r.handlerMu.RUnlock()
	if h == nil {
		return
	}

	switch e.kind {
	case eventConnect:
		h.OnConnect(e.handle)
	case eventDisconnect:
		h.OnDisconnect(e.handle)
	}
}
