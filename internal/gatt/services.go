package gatt

import (
	"github.com/go-ble/ble"

	"github.com/srg/imuble/internal/radio"
)

// Service and characteristic UUIDs. They share a vendor base and differ only
// in the leading 32 bits.
var (
	TelemetryServiceUUID  = ble.MustParse("d9d55001-0525-4e5c-be77-afada8e04e14")
	AccelUUID             = ble.MustParse("d9d55002-0525-4e5c-be77-afada8e04e14")
	MagUUID               = ble.MustParse("d9d55003-0525-4e5c-be77-afada8e04e14")
	GyroUUID              = ble.MustParse("d9d55004-0525-4e5c-be77-afada8e04e14")
	TemperatureUUID       = ble.MustParse("d9d55005-0525-4e5c-be77-afada8e04e14")
	InputServiceUUID      = ble.MustParse("d9d55010-0525-4e5c-be77-afada8e04e14")
	KeysUUID              = ble.MustParse("d9d55011-0525-4e5c-be77-afada8e04e14")
	DisplayServiceUUID    = ble.MustParse("d9d55015-0525-4e5c-be77-afada8e04e14")
	DisplayOnUUID         = ble.MustParse("d9d55016-0525-4e5c-be77-afada8e04e14")
	DeviceInformationUUID = ble.UUID16(0x180A)
)

// Services returns the peripheral's GATT table: telemetry, input and
// display-control, in that order.
func Services() []radio.ServiceDef {
	return []radio.ServiceDef{
		{
			Name: "telemetry",
			UUID: TelemetryServiceUUID,
			Characteristics: []radio.CharacteristicDef{
				{ID: radio.CharAccel, UUID: AccelUUID, Access: radio.AccessRead, Layout: "3 x int16, x100"},
				{ID: radio.CharMag, UUID: MagUUID, Access: radio.AccessRead, Layout: "3 x int32, x100"},
				{ID: radio.CharGyro, UUID: GyroUUID, Access: radio.AccessRead, Layout: "3 x int32, x100"},
				{ID: radio.CharTemperature, UUID: TemperatureUUID, Access: radio.AccessReadNotify, Layout: "1 x int16, x100"},
			},
		},
		{
			Name: "input",
			UUID: InputServiceUUID,
			Characteristics: []radio.CharacteristicDef{
				{ID: radio.CharKeys, UUID: KeysUUID, Access: radio.AccessReadNotify, Layout: "3 x int16, 0 or 1"},
			},
		},
		{
			Name: "display-control",
			UUID: DisplayServiceUUID,
			Characteristics: []radio.CharacteristicDef{
				{ID: radio.CharDisplayOn, UUID: DisplayOnUUID, Access: radio.AccessWrite, Layout: "big-endian integer, 0 = off"},
			},
		},
	}
}

// AdvertisedUUIDs is the service list carried in the advertising payload.
func AdvertisedUUIDs() []ble.UUID {
	return []ble.UUID{DeviceInformationUUID}
}

// NotifiedCharacteristics are the two heartbeat characteristics pushed on
// every tick. A central receiving either re-reads the whole telemetry group.
func NotifiedCharacteristics() []radio.CharID {
	return []radio.CharID{radio.CharTemperature, radio.CharKeys}
}
