package goble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_DrainsPendingAfterClose(t *testing.T) {
	q := newEventQueue()
	require.True(t, q.push(lifecycleEvent{kind: eventConnect, handle: 1}))
	require.True(t, q.push(lifecycleEvent{kind: eventDisconnect, handle: 1}))
	q.close()

	assert.False(t, q.push(lifecycleEvent{kind: eventConnect, handle: 2}), "push after close MUST be refused")

	batch, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, []lifecycleEvent{
		{kind: eventConnect, handle: 1},
		{kind: eventDisconnect, handle: 1},
	}, batch)

	_, ok = q.next()
	assert.False(t, ok)
}

func TestEventQueue_NextWaitsForPush(t *testing.T) {
	q := newEventQueue()

	got := make(chan []lifecycleEvent, 1)
	go func() {
		batch, _ := q.next()
		got <- batch
	}()

	select {
	case <-got:
		t.Fatal("next MUST block while the queue is empty")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(lifecycleEvent{kind: eventDisconnect, handle: 4})
	select {
	case batch := <-got:
		assert.Equal(t, []lifecycleEvent{{kind: eventDisconnect, handle: 4}}, batch)
	case <-time.After(time.Second):
		t.Fatal("next did not wake up after push")
	}
	assert.Zero(t, q.pending())
}
