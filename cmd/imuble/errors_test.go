package main

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/lua"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

func TestFormatUserError(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here.lua")

	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "nil",
			err:      nil,
			contains: []string{""},
		},
		{
			name:     "controller unavailable",
			err:      fmt.Errorf("failed to open radio: %w", radio.ErrUnsupported),
			contains: []string{"failed to open radio", "CAP_NET_ADMIN", "--radio loopback"},
		},
		{
			name:     "payload too long",
			err:      fmt.Errorf("device_name: %w", advertising.ErrPayloadTooLong),
			contains: []string{"31-byte advertising payload", "shorter --name"},
		},
		{
			name:     "script error",
			err:      fmt.Errorf("tick 3: %w", &lua.Error{Type: "runtime", Message: "boom", Line: 4, Source: "imu.lua"}),
			contains: []string{"sensor script failed", "line 4", "boom"},
		},
		{
			name:     "unknown characteristic",
			err:      &radio.UnknownCharacteristicError{ID: "pressure"},
			contains: []string{`"pressure"`, "expected one of accel"},
		},
		{
			name:     "short value",
			err:      fmt.Errorf("decode: %w", telemetry.ErrShortBuffer),
			contains: []string{"short buffer", "imuble layout"},
		},
		{
			name:     "missing file",
			err:      fmt.Errorf("failed to read config: %w", statErr),
			contains: []string{"file not found: /definitely/not/here.lua"},
		},
		{
			name:     "anything else",
			err:      errors.New("plain failure"),
			contains: []string{"plain failure"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
