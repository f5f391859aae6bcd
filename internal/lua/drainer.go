package lua

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/imuble/internal/groutine"
)

// drainTimeout bounds the final drain on shutdown.
const drainTimeout = 100 * time.Millisecond

// OutputDrainer continuously forwards script output to writers until
// cancelled or until the engine closes its output channel.
type OutputDrainer struct {
	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Cancel signals the drainer to flush what is queued and exit.
func (d *OutputDrainer) Cancel() {
	d.cancelOnce.Do(func() {
		close(d.stop)
	})
}

// Wait blocks until the drainer goroutine has exited.
func (d *OutputDrainer) Wait() {
	d.wg.Wait()
}

func writeRecord(record OutputRecord, stdout, stderr io.Writer, logger *logrus.Logger) {
	var err error
	switch record.Source {
	case "stderr":
		_, err = fmt.Fprint(stderr, record.Content)
	default:
		_, err = fmt.Fprint(stdout, record.Content)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"source": record.Source,
			"error":  err,
		}).Warn("Output drainer: write failed")
	}
}

// drainWithTimeout flushes queued records. It returns true if the channel
// closed before the timeout.
func drainWithTimeout(outputChan <-chan OutputRecord, stdout, stderr io.Writer, logger *logrus.Logger, reason string) bool {
	deadline := time.After(drainTimeout)
	drained := 0
	for {
		select {
		case record, ok := <-outputChan:
			if !ok {
				logger.WithFields(logrus.Fields{
					"reason":  reason,
					"drained": drained,
				}).Debug("Output drainer: drain completed (channel closed)")
				return true
			}
			drained++
			writeRecord(record, stdout, stderr, logger)
		case <-deadline:
			logger.WithFields(logrus.Fields{
				"reason":  reason,
				"drained": drained,
			}).Debug("Output drainer: drain timeout reached")
			return false
		}
	}
}

// NewOutputDrainer starts forwarding outputChan to stdout and stderr. Nil
// writers discard.
func NewOutputDrainer(ctx context.Context, outputChan <-chan OutputRecord, logger *logrus.Logger, stdout, stderr io.Writer) *OutputDrainer {
	if logger == nil {
		logger = logrus.New()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	drainer := &OutputDrainer{stop: make(chan struct{})}

	drainer.wg.Add(1)
	groutine.Go(ctx, "lua-output-drainer", func(ctx context.Context) {
		defer drainer.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("Output drainer: panic recovered")
			}
		}()
		defer logger.Debugf("%s: exiting", groutine.Name(ctx))

		for {
			select {
			case record, ok := <-outputChan:
				if !ok {
					return
				}
				writeRecord(record, stdout, stderr, logger)
			case <-drainer.stop:
				drainWithTimeout(outputChan, stdout, stderr, logger, "stop")
				return
			case <-ctx.Done():
				drainWithTimeout(outputChan, stdout, stderr, logger, "context-done")
				return
			}
		}
	})

	return drainer
}
