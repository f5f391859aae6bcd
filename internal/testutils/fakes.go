package testutils

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/srg/imuble/internal/telemetry"
)

// FakeSensor returns the same sample on every read and counts reads.
type FakeSensor struct {
	mu     sync.Mutex
	Sample telemetry.SensorSample
	Err    error
	reads  int
}

// Read implements the sensor source contract.
func (s *FakeSensor) Read(ctx context.Context) (telemetry.SensorSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return telemetry.SensorSample{}, err
	}
	if s.Err != nil {
		return telemetry.SensorSample{}, s.Err
	}
	s.reads++
	return s.Sample, nil
}

// Reads returns the number of successful reads.
func (s *FakeSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// FakeKeypad returns a settable key state.
type FakeKeypad struct {
	mu    sync.Mutex
	state telemetry.KeyState
	Err   error
}

// Set replaces the reported state.
func (k *FakeKeypad) Set(state telemetry.KeyState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = state
}

// Keys implements the keypad contract.
func (k *FakeKeypad) Keys() (telemetry.KeyState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state, k.Err
}

// FakeBacklight records every power change.
type FakeBacklight struct {
	mu      sync.Mutex
	history []bool
	Err     error
}

// SetPower implements the backlight contract.
func (b *FakeBacklight) SetPower(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.history = append(b.history, on)
	return nil
}

// History returns every state set so far.
func (b *FakeBacklight) History() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.history...)
}

// On reports the last state set.
func (b *FakeBacklight) On() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history) > 0 && b.history[len(b.history)-1]
}

// FakeDisplay keeps the text printed at each position, like a character
// screen where a print overwrites whatever was at the cursor.
type FakeDisplay struct {
	mu     sync.Mutex
	x, y   int
	cells  map[[2]int]string
	prints int
	erases int
	Err    error
}

// Erase implements the display contract.
func (d *FakeDisplay) Erase() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cells = nil
	d.erases++
	return nil
}

// SetPosition implements the display contract.
func (d *FakeDisplay) SetPosition(x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.x, d.y = x, y
}

// Print implements the display contract.
func (d *FakeDisplay) Print(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	if d.cells == nil {
		d.cells = make(map[[2]int]string)
	}
	d.cells[[2]int{d.x, d.y}] = text
	d.prints++
	return nil
}

// Text renders the screen as "(x,y) text" lines ordered top to bottom.
func (d *FakeDisplay) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([][2]int, 0, len(d.cells))
	for k := range d.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][1] != keys[j][1] {
			return keys[i][1] < keys[j][1]
		}
		return keys[i][0] < keys[j][0]
	})

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "(%d,%d) %s\n", k[0], k[1], d.cells[k])
	}
	return sb.String()
}

// Prints returns how many Print calls succeeded.
func (d *FakeDisplay) Prints() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prints
}

// Erases returns how many times the screen was erased.
func (d *FakeDisplay) Erases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.erases
}
