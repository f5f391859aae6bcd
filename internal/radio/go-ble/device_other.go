//go:build !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/srg/imuble/internal/radio"
)

func openDevice(DeviceConfig) (Device, error) {
	return nil, fmt.Errorf("hci peripheral on %s: %w", runtime.GOOS, radio.ErrUnsupported)
}
