package sampler

import (
	"context"

	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

// SensorSource produces one motion sample per call. Read may block for the
// duration of a bus transaction.
type SensorSource interface {
	Read(ctx context.Context) (telemetry.SensorSample, error)
}

// Keypad reports the three buttons.
type Keypad interface {
	Keys() (telemetry.KeyState, error)
}

// Backlight switches display power.
type Backlight interface {
	SetPower(on bool) error
}

// Display is a text cursor display.
type Display interface {
	Erase() error
	SetPosition(x, y int)
	Print(text string) error
}

// Session is the GATT value store the loop feeds.
type Session interface {
	WriteTelemetry(sample telemetry.SensorSample)
	WriteKeys(keys telemetry.KeyState)
	ReadDisplayCommand() bool
	Notify(handles []radio.ConnHandle) error
}

// Connections lists the currently linked centrals.
type Connections interface {
	Active() []radio.ConnHandle
}
