package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConnection means the handle does not refer to a live
	// connection, usually because the central went away mid-iteration.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrWriteNotPermitted is returned for writes to read-only attributes.
	ErrWriteNotPermitted = errors.New("write not permitted")

	// ErrReadNotPermitted is returned for reads of write-only attributes.
	ErrReadNotPermitted = errors.New("read not permitted")

	// ErrUnsupported is returned by stacks that cannot run on this platform.
	ErrUnsupported = errors.New("unsupported")

	// ErrClosed is returned by operations on a closed radio.
	ErrClosed = errors.New("radio closed")
)

// UnknownCharacteristicError is returned when a CharID is not part of the
// registered GATT table.
type UnknownCharacteristicError struct {
	ID CharID
}

func (e *UnknownCharacteristicError) Error() string {
	return fmt.Sprintf("characteristic %q not found", string(e.ID))
}

// Is makes every UnknownCharacteristicError match ErrUnknownCharacteristic.
func (e *UnknownCharacteristicError) Is(target error) bool {
	_, ok := target.(*UnknownCharacteristicError)
	return ok
}

// ErrUnknownCharacteristic is the sentinel for errors.Is checks.
var ErrUnknownCharacteristic = &UnknownCharacteristicError{}

// ConnectionError wraps a failure that concerns one specific connection.
type ConnectionError struct {
	Handle ConnHandle
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
