package registry

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/imuble/internal/radio"
)

func newTestRegistry() *Registry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(logger)
}

func TestRegistry_ConnectDisconnect(t *testing.T) {
	for _, h := range []radio.ConnHandle{0, 1, 0x40, 0xffff} {
		t.Run(h.String(), func(t *testing.T) {
			r := newTestRegistry()

			r.OnConnect(h)
			_, ok := r.ConnectedAt(h)
			assert.True(t, ok)
			assert.Equal(t, []radio.ConnHandle{h}, r.Active())

			r.OnDisconnect(h)
			_, ok = r.ConnectedAt(h)
			assert.False(t, ok)
			assert.Empty(t, r.Active(), "connect then disconnect MUST leave the registry empty")
		})
	}
}

func TestRegistry_DisconnectUnknownIsNoop(t *testing.T) {
	r := newTestRegistry()

	assert.NotPanics(t, func() { r.OnDisconnect(42) })
	assert.Equal(t, 0, r.Len())

	r.OnConnect(1)
	r.OnDisconnect(2)
	assert.Equal(t, []radio.ConnHandle{1}, r.Active(), "stale disconnect MUST NOT touch other handles")
}

func TestRegistry_ConnectIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return first }

	r.OnConnect(7)
	r.now = func() time.Time { return first.Add(time.Hour) }
	r.OnConnect(7)

	assert.Equal(t, 1, r.Len(), "duplicate connect MUST NOT create a second entry")
	at, ok := r.ConnectedAt(7)
	require.True(t, ok)
	assert.Equal(t, first, at)
}

func TestRegistry_ActiveIsSnapshot(t *testing.T) {
	r := newTestRegistry()
	r.OnConnect(3)
	r.OnConnect(1)
	r.OnConnect(2)

	snapshot := r.Active()
	assert.Equal(t, []radio.ConnHandle{1, 2, 3}, snapshot)

	r.OnDisconnect(2)
	r.OnConnect(9)

	assert.Equal(t, []radio.ConnHandle{1, 2, 3}, snapshot, "snapshot MUST NOT change after later mutations")
	assert.Equal(t, []radio.ConnHandle{1, 3, 9}, r.Active())
}

func TestRegistry_ConcurrentMutationDuringIteration(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			h := radio.ConnHandle(i % 16)
			r.OnConnect(h)
			r.OnDisconnect(h)
		}
	}()

	for i := 0; i < 2000; i++ {
		for _, h := range r.Active() {
			assert.Less(t, int(h), 16)
		}
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
