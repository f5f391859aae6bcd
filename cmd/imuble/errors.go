package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/lua"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

// Command-level errors
var (
	// ErrInvalidHex indicates a decode argument that is not a hex byte string.
	ErrInvalidHex = errors.New("invalid hex value")
)

// FormatUserError turns err into a message with a hint for the failures a
// user can fix from the command line. Anything else is printed as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var (
		luaErr  *lua.Error
		charErr *radio.UnknownCharacteristicError
		pathErr *os.PathError
	)
	switch {
	case errors.Is(err, radio.ErrUnsupported):
		return fmt.Sprintf("%v\nBluetooth controller unavailable: run as root (or grant CAP_NET_ADMIN), check --hci, or use --radio loopback", err)
	case errors.Is(err, advertising.ErrPayloadTooLong):
		return fmt.Sprintf("%v\nThe device name does not fit the %d-byte advertising payload; choose a shorter --name", err, advertising.MaxPayloadLen)
	case errors.As(err, &luaErr):
		return fmt.Sprintf("sensor script failed: %v", luaErr)
	case errors.As(err, &charErr):
		return fmt.Sprintf("%v (expected one of %s)", err, strings.Join(characteristicNames(), ", "))
	case errors.Is(err, telemetry.ErrShortBuffer):
		return fmt.Sprintf("%v\nThe value is shorter than the characteristic layout; see 'imuble layout'", err)
	case errors.As(err, &pathErr) && errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("file not found: %s", pathErr.Path)
	default:
		return err.Error()
	}
}
