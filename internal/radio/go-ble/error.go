package goble

import (
	"fmt"
	"strings"

	"github.com/srg/imuble/internal/radio"
)

// NormalizeError maps known go-ble and HCI error strings onto radio errors.
// The original error stays in the message.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v (needs CAP_NET_ADMIN or root)", radio.ErrUnsupported, err)
	case containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", radio.ErrUnsupported, err)
	case containsIgnoreCase(msg, "unknown connection"):
		return fmt.Errorf("%w: %v", radio.ErrUnknownConnection, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", radio.ErrUnknownConnection, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
