// Package console emulates the board's screen and buttons on a terminal.
//
// The display is a text terminal addressed in board pixels: positions are
// mapped onto character cells and text is drawn with ANSI cursor sequences.
// Typing a, b or c on the terminal presses button A, B or C for KeyHold.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/imuble/internal/telemetry"
)

// Board geometry used to map pixel coordinates onto terminal cells.
const (
	CellWidth  = 6  // pixels per column
	CellHeight = 30 // pixels per row, one text line
)

// DefaultKeyHold is how long a typed key reads as pressed.
const DefaultKeyHold = 250 * time.Millisecond

// ANSI control sequences.
const (
	ansiEraseScreen = "\x1b[2J\x1b[H"
	ansiEraseLine   = "\x1b[K"
	ansiHideCursor  = "\x1b[?25l"
	ansiShowCursor  = "\x1b[?25h"
)

// Options configures a Console.
type Options struct {
	KeyHold time.Duration
}

// Console is a Display, Backlight and Keypad backed by one terminal stream.
type Console struct {
	w      io.Writer
	logger *logrus.Logger
	hold   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	x, y    int
	powered bool
	pressed [3]time.Time // release deadline per key
	closer  io.Closer
}

// New creates a console drawing on w. Input, if any, is delivered through
// Feed.
func New(w io.Writer, opts Options, logger *logrus.Logger) *Console {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.KeyHold <= 0 {
		opts.KeyHold = DefaultKeyHold
	}
	return &Console{
		w:      w,
		logger: logger,
		hold:   opts.KeyHold,
		now:    time.Now,
	}
}

// OpenPTY creates a console on a fresh PTY. The caller should point a
// terminal emulator at TTYName.
func OpenPTY(opts Options, logger *logrus.Logger) (*Console, *Pty, error) {
	p, err := OpenPty(DefaultReadCap, DefaultWriteCap, logger)
	if err != nil {
		return nil, nil, err
	}

	c := New(p, opts, logger)
	c.closer = p
	p.SetReadCallback(c.Feed)
	return c, p, nil
}

// Feed processes terminal input. Bytes other than a, b and c are ignored.
func (c *Console) Feed(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.hold)
	for _, b := range data {
		idx := strings.IndexByte("abc", lower(b))
		if idx < 0 {
			continue
		}
		c.pressed[idx] = deadline
		c.logger.WithField("key", string("ABC"[idx])).Debug("Console key pressed")
	}
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// Keys reports each button as pressed while its hold has not expired.
func (c *Console) Keys() (telemetry.KeyState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var k telemetry.KeyState
	now := c.now()
	for i, until := range c.pressed {
		k[i] = now.Before(until)
	}
	return k, nil
}

// SetPower switches the emulated backlight. Turning it off blanks the
// terminal; turning it on only restores the cursor state, the next render
// repaints.
func (c *Console) SetPower(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on == c.powered {
		return nil
	}
	c.powered = on

	seq := ansiHideCursor
	if !on {
		seq = ansiEraseScreen + ansiShowCursor
	}
	return c.write(seq)
}

// Powered reports the backlight state.
func (c *Console) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powered
}

// Erase clears the screen and homes the cursor.
func (c *Console) Erase() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.x, c.y = 0, 0
	return c.write(ansiEraseScreen)
}

// SetPosition moves the text cursor to pixel (x, y).
func (c *Console) SetPosition(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.x, c.y = x, y
}

// Print draws text at the cursor and clears the rest of the line.
func (c *Console) Print(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, col := Cell(c.x, c.y)
	return c.write(fmt.Sprintf("\x1b[%d;%dH%s%s", row, col, text, ansiEraseLine))
}

// Cell maps a pixel position onto a 1-based terminal row and column.
func Cell(x, y int) (row, col int) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return y/CellHeight + 1, x/CellWidth + 1
}

func (c *Console) write(s string) error {
	if c.w == nil {
		return nil
	}
	if _, err := io.WriteString(c.w, s); err != nil {
		return fmt.Errorf("console write failed: %w", err)
	}
	return nil
}

// Close restores the cursor and releases the PTY, if any.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.write(ansiShowCursor)
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
