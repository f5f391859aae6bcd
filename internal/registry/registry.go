// Package registry tracks which centrals are currently linked to the
// peripheral.
//
// The registry is mutated only from lifecycle callbacks and read from the
// sample loop. Reads return a point-in-time copy, so a disconnect landing in
// the middle of a notify fan-out never invalidates the slice being iterated;
// the notifier just sees a stale handle and skips it.
package registry

import (
	"slices"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/imuble/internal/radio"
)

// Registry is the set of live connection handles. The zero value is not
// usable; create one with New.
type Registry struct {
	conns  *hashmap.Map[radio.ConnHandle, time.Time]
	logger *logrus.Logger
	now    func() time.Time
}

// New creates an empty registry. A nil logger gets a default one.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		conns:  hashmap.New[radio.ConnHandle, time.Time](),
		logger: logger,
		now:    time.Now,
	}
}

// OnConnect adds h. Adding a handle that is already present keeps the
// original connect time.
func (r *Registry) OnConnect(h radio.ConnHandle) {
	if !r.conns.Insert(h, r.now()) {
		r.logger.WithField("conn", h).Debug("Duplicate connect event ignored")
		return
	}
	r.logger.WithField("conn", h).Debug("Connection registered")
}

// OnDisconnect removes h. An unknown handle is ignored.
func (r *Registry) OnDisconnect(h radio.ConnHandle) {
	if !r.conns.Del(h) {
		r.logger.WithField("conn", h).Debug("Disconnect for unknown connection ignored")
		return
	}
	r.logger.WithField("conn", h).Debug("Connection removed")
}

// Active returns a snapshot of the connected handles in ascending order.
// The slice is owned by the caller.
func (r *Registry) Active() []radio.ConnHandle {
	handles := make([]radio.ConnHandle, 0, r.conns.Len())
	r.conns.Range(func(h radio.ConnHandle, _ time.Time) bool {
		handles = append(handles, h)
		return true
	})
	slices.Sort(handles)
	return handles
}

// ConnectedAt returns when h connected. ok is false for handles that are not
// connected.
func (r *Registry) ConnectedAt(h radio.ConnHandle) (time.Time, bool) {
	return r.conns.Get(h)
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return r.conns.Len()
}
