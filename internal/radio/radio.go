// Package radio describes the narrow slice of a BLE peripheral stack the
// telemetry service needs: hosting a GATT table, advertising, pushing
// notifications to one connection and reporting connection lifecycle events.
//
// Concrete stacks live in sub-packages: goble drives a Linux HCI socket via
// go-ble, loopback keeps everything in memory for tests and dry runs.
package radio

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
)

// ConnHandle is the opaque identifier the stack assigns to a connected
// central. Handles are only meaningful while the connection exists.
type ConnHandle uint16

func (h ConnHandle) String() string {
	return fmt.Sprintf("0x%04x", uint16(h))
}

// CharID names a characteristic independently of its UUID.
type CharID string

const (
	CharAccel       CharID = "accel"
	CharMag         CharID = "mag"
	CharGyro        CharID = "gyro"
	CharTemperature CharID = "temperature"
	CharKeys        CharID = "keys"
	CharDisplayOn   CharID = "display-on"
)

// Access is the set of operations a central may perform on a characteristic.
type Access int

const (
	AccessRead Access = iota
	AccessReadNotify
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessReadNotify:
		return "read|notify"
	case AccessWrite:
		return "write"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Readable reports whether centrals may read the value.
func (a Access) Readable() bool { return a == AccessRead || a == AccessReadNotify }

// Notifiable reports whether centrals may subscribe to the value.
func (a Access) Notifiable() bool { return a == AccessReadNotify }

// Writable reports whether centrals may write the value.
func (a Access) Writable() bool { return a == AccessWrite }

// CharacteristicDef declares one characteristic of a service.
type CharacteristicDef struct {
	ID     CharID
	UUID   ble.UUID
	Access Access
	// Layout is a human readable description of the value encoding.
	Layout string
}

// ServiceDef declares one primary service.
type ServiceDef struct {
	Name            string
	UUID            ble.UUID
	Characteristics []CharacteristicDef
}

// AttributeHandler serves central-initiated reads and writes. Implementations
// must be safe for concurrent use: stacks call them from their own goroutines.
type AttributeHandler interface {
	ReadValue(id CharID) ([]byte, error)
	WriteValue(id CharID, data []byte) error
}

// LifecycleHandler receives connection events. Events for one stack are
// delivered sequentially, in the order the stack observed them, and never
// from inside a call into the Radio.
type LifecycleHandler interface {
	OnConnect(h ConnHandle)
	OnDisconnect(h ConnHandle)
}

// Radio is a BLE peripheral stack.
type Radio interface {
	// Register publishes the GATT table. It must be called once, before the
	// first Advertise.
	Register(services []ServiceDef, attrs AttributeHandler) error

	// SetLifecycleHandler installs the receiver of connect/disconnect events.
	SetLifecycleHandler(h LifecycleHandler)

	// Advertise (re)starts connectable undirected advertising with the given
	// raw AD payload. Calling it while already advertising replaces the
	// payload and interval.
	Advertise(payload []byte, interval time.Duration) error

	// Notify pushes value to the central behind h if it subscribed to id.
	// It returns nil without sending when the central has not subscribed and
	// ErrUnknownConnection when h is no longer connected.
	Notify(h ConnHandle, id CharID, value []byte) error

	// Close tears the stack down. Lifecycle events stop before Close returns.
	Close() error
}
