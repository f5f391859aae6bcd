package lua

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// CollectorMetrics counts collector traffic. Fields are updated atomically.
type CollectorMetrics struct {
	RecordsProcessed   int64 // records moved into the buffer
	ErrorsOccurred     int64 // enqueue failures
	RecordsOverwritten int64 // records lost to buffer overflow
}

func (m *CollectorMetrics) snapshot() CollectorMetrics {
	return CollectorMetrics{
		RecordsProcessed:   atomic.LoadInt64(&m.RecordsProcessed),
		ErrorsOccurred:     atomic.LoadInt64(&m.ErrorsOccurred),
		RecordsOverwritten: atomic.LoadInt64(&m.RecordsOverwritten),
	}
}

// Collector lifecycle states.
const (
	CollectorStateNotRunning uint32 = iota
	CollectorStateRunning
	CollectorStateStopping

	// MaxBufferSize guards against accidental misconfiguration.
	MaxBufferSize uint32 = 1024 * 1024
)

// OutputCollector moves script output from an engine channel into an
// overlapped ring buffer so a caller can consume it after the fact, for
// example after a dry run of a sensor script.
//
// All methods are thread-safe.
type OutputCollector struct {
	outputChan <-chan OutputRecord
	buffer     mpmc.RichOverlappedRingBuffer[OutputRecord]
	stop       chan struct{}
	done       chan struct{}
	onError    func(error)
	metrics    CollectorMetrics
	state      uint32
}

// NewOutputCollector creates a collector reading ch. onError receives
// unexpected buffer errors; if nil they are dropped after being counted.
func NewOutputCollector(ch <-chan OutputRecord, bufferSize uint32, onError func(error)) (*OutputCollector, error) {
	if ch == nil {
		return nil, errors.New("output channel cannot be nil")
	}
	if bufferSize == 0 {
		return nil, errors.New("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	if onError == nil {
		onError = func(error) {}
	}

	return &OutputCollector{
		outputChan: ch,
		buffer:     mpmc.NewOverlappedRingBuffer[OutputRecord](bufferSize),
		onError:    onError,
		state:      CollectorStateNotRunning,
	}, nil
}

// Start begins collecting. It returns once the collecting goroutine runs.
func (c *OutputCollector) Start() error {
	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateNotRunning, CollectorStateRunning) {
		switch s := atomic.LoadUint32(&c.state); s {
		case CollectorStateRunning:
			return errors.New("collector is already running")
		case CollectorStateStopping:
			return errors.New("collector is stopping, wait for it to finish")
		default:
			return fmt.Errorf("collector is in unknown state %d", s)
		}
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	started := make(chan struct{}, 1)

	go func() {
		started <- struct{}{}
		defer func() {
			close(c.done)
			atomic.StoreUint32(&c.state, CollectorStateNotRunning)
		}()

		for {
			select {
			case <-c.stop:
				c.drain()
				return
			case rec, ok := <-c.outputChan:
				if !ok {
					return
				}
				c.enqueue(rec)
			}
		}
	}()

	select {
	case <-started:
		return nil
	case <-time.After(time.Second):
		close(c.stop)
		<-c.done
		return errors.New("collector failed to start within 1s timeout")
	}
}

// drain moves whatever is already queued on the channel before stopping.
func (c *OutputCollector) drain() {
	for {
		select {
		case rec, ok := <-c.outputChan:
			if !ok {
				return
			}
			c.enqueue(rec)
		default:
			return
		}
	}
}

func (c *OutputCollector) enqueue(rec OutputRecord) {
	overwrites, err := c.buffer.EnqueueM(rec)
	if err != nil {
		atomic.AddInt64(&c.metrics.ErrorsOccurred, 1)
		c.onError(fmt.Errorf("unexpected buffer.Enqueue error: %w", err))
		return
	}
	atomic.AddInt64(&c.metrics.RecordsOverwritten, int64(overwrites))
	atomic.AddInt64(&c.metrics.RecordsProcessed, 1)
}

// Stop ends collection after draining records already sent. Stopping an idle
// collector is a no-op.
func (c *OutputCollector) Stop() error {
	if !atomic.CompareAndSwapUint32(&c.state, CollectorStateRunning, CollectorStateStopping) {
		switch s := atomic.LoadUint32(&c.state); s {
		case CollectorStateNotRunning:
			return nil
		case CollectorStateStopping:
		default:
			return fmt.Errorf("collector is in unknown state %d", s)
		}
	} else {
		close(c.stop)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		<-c.done
		return errors.New("stop completed but exceeded 5s timeout")
	}
}

// State returns one of the CollectorState constants.
func (c *OutputCollector) State() uint32 {
	return atomic.LoadUint32(&c.state)
}

// Metrics returns a snapshot of the counters.
func (c *OutputCollector) Metrics() CollectorMetrics {
	return c.metrics.snapshot()
}

// Records removes and returns every buffered record in arrival order.
func (c *OutputCollector) Records() ([]OutputRecord, error) {
	var out []OutputRecord
	for !c.buffer.IsEmpty() {
		rec, err := c.buffer.Dequeue()
		if err != nil {
			return out, fmt.Errorf("buffer dequeue error: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// PlainText drains the buffer and concatenates record contents, ignoring
// timestamps and sources.
func (c *OutputCollector) PlainText() (string, error) {
	records, err := c.Records()
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(rec.Content)
	}
	return sb.String(), err
}
