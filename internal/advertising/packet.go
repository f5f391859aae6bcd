package advertising

import (
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
)

// AD structure types looked up in built payloads. See Supplement to the
// Bluetooth Core Specification, Part A.
const (
	TypeFlags        byte = 0x01
	TypeAllUUID16    byte = 0x03
	TypeAllUUID32    byte = 0x05
	TypeAllUUID128   byte = 0x07
	TypeCompleteName byte = 0x09
	TypeAppearance   byte = 0x19
)

// MaxPayloadLen is the legacy advertising data limit.
const MaxPayloadLen = adv.MaxEIRPacketLength

// AppearanceMotionSensor is the GAP appearance code the peripheral
// advertises (Generic Sensor: Motion Sensor).
const AppearanceMotionSensor uint16 = 1088

// ErrPayloadTooLong is returned when the fields do not fit in one
// advertising PDU.
var ErrPayloadTooLong = errors.New("advertising payload too long")

// BuildPayload assembles the peripheral's advertising payload: general
// discoverable LE-only flags, the complete name, one complete-list field per
// service UUID and, when non-zero, the appearance code.
func BuildPayload(name string, uuids []ble.UUID, appearance uint16) (*adv.Packet, error) {
	fields := []adv.Field{
		adv.Flags(adv.FlagGeneralDiscoverable | adv.FlagLEOnly),
		adv.CompleteName(name),
	}
	for _, u := range uuids {
		fields = append(fields, adv.AllUUID(u))
	}
	if appearance != 0 {
		fields = append(fields, adv.Raw([]byte{3, TypeAppearance, byte(appearance), byte(appearance >> 8)}))
	}

	p, err := adv.NewPacket(fields...)
	if err != nil {
		if errors.Is(err, adv.ErrNotFit) {
			return nil, fmt.Errorf("%w: name %q does not fit in %d bytes", ErrPayloadTooLong, name, MaxPayloadLen)
		}
		return nil, fmt.Errorf("failed to build advertising payload: %w", err)
	}
	return p, nil
}

// Appearance returns the appearance code carried by p.
func Appearance(p *adv.Packet) (uint16, bool) {
	b := p.Field(TypeAppearance)
	if len(b) != 2 {
		return 0, false
	}
	return uint16(b[0]) | uint16(b[1])<<8, true
}
