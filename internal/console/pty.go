package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/imuble/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DefaultPollTimeout bounds how long the I/O loops wait before rechecking
// for shutdown.
const DefaultPollTimeout = 50 * time.Millisecond

// Default ring capacities in bytes.
const (
	DefaultReadCap  = 1024
	DefaultWriteCap = 16 * 1024
)

// ReadCallback receives bytes typed on the terminal. The slice is only valid
// for the duration of the call.
type ReadCallback func(data []byte)

// PtyStats are runtime counters of a Pty.
type PtyStats struct {
	WriteQueueLen     int
	ReadQueueLen      int
	DroppedWriteBytes uint64
	DroppedReadBytes  uint64
	ReadBytesTotal    uint64
	WriteBytesTotal   uint64
}

// Pty is a pseudo-terminal master with non-blocking ring-buffered I/O. A
// terminal emulator attaches to the slave by path (see TTYName) and acts as
// the board's screen and buttons.
type Pty struct {
	logger      *logrus.Logger
	master      *os.File
	slave       *os.File
	ttyName     string
	pollTimeout int // ms

	writeBuf *ringbuffer.RingBuffer
	readBuf  *ringbuffer.RingBuffer

	cancel context.CancelFunc
	group  groutine.Group

	readCb      atomic.Value // ReadCallback
	readNotify  chan struct{}
	writeNotify chan struct{}
	closed      atomic.Bool

	droppedWrite atomic.Uint64
	droppedRead  atomic.Uint64
	readBytes    atomic.Uint64
	writeBytes   atomic.Uint64
}

// OpenPty creates a raw-mode PTY pair and starts its I/O loops.
func OpenPty(readCap, writeCap int, logger *logrus.Logger) (*Pty, error) {
	if readCap <= 0 {
		readCap = DefaultReadCap
	}
	if writeCap <= 0 {
		writeCap = DefaultWriteCap
	}
	if logger == nil {
		logger = logrus.New()
	}

	master, slave, err := createPty()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pty{
		logger:      logger,
		master:      master,
		slave:       slave,
		ttyName:     slave.Name(),
		pollTimeout: int(DefaultPollTimeout / time.Millisecond),
		writeBuf:    ringbuffer.New(writeCap),
		readBuf:     ringbuffer.New(readCap),
		cancel:      cancel,
		readNotify:  make(chan struct{}, 1),
		writeNotify: make(chan struct{}, 1),
	}

	p.group.Go(ctx, "console-pty-read", func(ctx context.Context) { p.readLoop(ctx) })
	p.group.Go(ctx, "console-pty-write", func(ctx context.Context) { p.writeLoop(ctx) })
	p.group.Go(ctx, "console-pty-dispatch", func(ctx context.Context) { p.dispatchLoop(ctx) })

	logger.WithField("tty", p.ttyName).Info("Console PTY opened")
	return p, nil
}

func createPty() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	fail := func(what string, err error) (*os.File, *os.File, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("failed to set PTY %s to %s: %w", name, what, err)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("nonblocking mode", err)
	}
	return master, slave, nil
}

// TTYName returns the slave device path, e.g. /dev/pts/5.
func (p *Pty) TTYName() string {
	return p.ttyName
}

// Write queues data for the terminal without blocking. When the ring is full
// the excess is dropped and the short count is returned.
func (p *Pty) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	written, err := p.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return 0, err
	}
	if written < len(data) {
		dropped := len(data) - written
		p.droppedWrite.Add(uint64(dropped))
		p.logger.WithField("tty", p.ttyName).Debugf("Console write buffer full, dropped %d bytes", dropped)
	}
	select {
	case p.writeNotify <- struct{}{}:
	default:
	}
	return written, nil
}

// Read returns bytes typed on the terminal that no callback consumed. It
// does not block and reports syscall.EAGAIN when nothing is buffered.
func (p *Pty) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	n, err := p.readBuf.TryRead(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, err
	}
	if n == 0 {
		return 0, syscall.EAGAIN
	}
	return n, nil
}

// SetReadCallback routes terminal input to cb. Pass nil to unregister.
func (p *Pty) SetReadCallback(cb ReadCallback) {
	if p.closed.Load() {
		return
	}
	p.readCb.Store(cb)
	select {
	case p.readNotify <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the counters.
func (p *Pty) Stats() PtyStats {
	return PtyStats{
		WriteQueueLen:     p.writeBuf.Length(),
		ReadQueueLen:      p.readBuf.Length(),
		DroppedWriteBytes: p.droppedWrite.Load(),
		DroppedReadBytes:  p.droppedRead.Load(),
		ReadBytesTotal:    p.readBytes.Load(),
		WriteBytesTotal:   p.writeBytes.Load(),
	}
}

// Close stops the loops and closes both ends.
func (p *Pty) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.cancel()
	var errs []error
	if err := p.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY master: %w", err))
	}
	if err := p.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY slave: %w", err))
	}

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		p.logger.WithField("tty", p.ttyName).Error("Console PTY loops did not exit within 5s")
	}
	return errors.Join(errs...)
}

func (p *Pty) writeLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s panicked (recovered): %v", groutine.Name(ctx), r)
		}
	}()

	master := p.master
	pollFd := []unix.PollFd{{Fd: int32(master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for {
		if p.writeBuf.IsEmpty() {
			select {
			case <-ctx.Done():
				return
			case <-p.writeNotify:
			}
			continue
		}

		n, err := p.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			p.logger.Warnf("%s: TryRead error: %v", groutine.Name(ctx), err)
			continue
		}

		for offset := 0; offset < n; {
			written, err := master.Write(buf[offset:n])
			if written > 0 {
				offset += written
				p.writeBytes.Add(uint64(written))
			}
			if err == nil {
				continue
			}

			switch {
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if _, err := unix.Poll(pollFd, p.pollTimeout); err != nil && !errors.Is(err, syscall.EINTR) {
					p.logger.Warnf("%s: poll error: %v", groutine.Name(ctx), err)
				}
				if ctx.Err() != nil {
					return
				}
			case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF):
				return
			default:
				p.logger.Warnf("%s: exiting on error: %v", groutine.Name(ctx), err)
				return
			}
		}
	}
}

func (p *Pty) readLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s panicked (recovered): %v", groutine.Name(ctx), r)
		}
	}()

	master := p.master
	pollFd := []unix.PollFd{{Fd: int32(master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 256)

	for ctx.Err() == nil {
		ready, err := unix.Poll(pollFd, p.pollTimeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.Warnf("%s: poll error: %v", groutine.Name(ctx), err)
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := master.Read(buf)
		if n > 0 {
			written, _ := p.readBuf.Write(buf[:n])
			if written < n {
				p.droppedRead.Add(uint64(n - written))
			}
			p.readBytes.Add(uint64(written))
			if written > 0 {
				select {
				case p.readNotify <- struct{}{}:
				default:
				}
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF):
			p.logger.Debugf("%s: exiting: %v", groutine.Name(ctx), err)
			return
		default:
			// EIO is what Linux reports once the last slave opener hangs up.
			if errors.Is(err, syscall.EIO) {
				time.Sleep(time.Duration(p.pollTimeout) * time.Millisecond)
				continue
			}
			p.logger.Warnf("%s: exiting on error: %v", groutine.Name(ctx), err)
			return
		}
	}
}

func (p *Pty) dispatchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s panicked (recovered): %v", groutine.Name(ctx), r)
		}
	}()

	tmp := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.readNotify:
		}

		cb, _ := p.readCb.Load().(ReadCallback)
		if cb == nil {
			continue
		}
		for {
			n, _ := p.readBuf.TryRead(tmp)
			if n == 0 {
				break
			}
			p.invoke(cb, tmp[:n])
		}
	}
}

func (p *Pty) invoke(cb ReadCallback, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Console read callback panicked, unregistering: %v", r)
			p.readCb.Store(ReadCallback(nil))
		}
	}()
	cb(data)
}

var _ io.ReadWriteCloser = (*Pty)(nil)
