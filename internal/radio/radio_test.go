package radio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnHandle_String(t *testing.T) {
	assert.Equal(t, "0x0040", ConnHandle(0x40).String())
	assert.Equal(t, "0xffff", ConnHandle(0xffff).String())
}

func TestAccess(t *testing.T) {
	tests := []struct {
		access     Access
		str        string
		readable   bool
		notifiable bool
		writable   bool
	}{
		{AccessRead, "read", true, false, false},
		{AccessReadNotify, "read|notify", true, true, false},
		{AccessWrite, "write", false, false, true},
		{Access(9), "access(9)", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.access.String())
			assert.Equal(t, tt.readable, tt.access.Readable())
			assert.Equal(t, tt.notifiable, tt.access.Notifiable())
			assert.Equal(t, tt.writable, tt.access.Writable())
		})
	}
}

func TestUnknownCharacteristicError_Is(t *testing.T) {
	err := fmt.Errorf("read: %w", &UnknownCharacteristicError{ID: "bogus"})

	assert.ErrorIs(t, err, ErrUnknownCharacteristic)
	assert.Contains(t, err.Error(), `"bogus"`)

	var uc *UnknownCharacteristicError
	assert.True(t, errors.As(err, &uc))
	assert.Equal(t, CharID("bogus"), uc.ID)
}

func TestConnectionError_Unwrap(t *testing.T) {
	err := &ConnectionError{Handle: 7, Op: "notify", Err: ErrUnknownConnection}

	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Equal(t, "notify 0x0007: unknown connection", err.Error())
}
