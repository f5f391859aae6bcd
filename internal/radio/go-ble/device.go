package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/go-ble/ble/linux/hci/evt"
)

// Device is the part of a go-ble HCI device the radio drives.
type Device interface {
	AddService(svc *ble.Service) error
	SetAdvParams(p cmd.LESetAdvertisingParameters) error
	SetAdvertisement(ad, sr []byte) error
	Advertise() error
	StopAdvertising() error
	Stop() error
}

// DeviceConfig is what DeviceFactory needs to open a controller.
type DeviceConfig struct {
	ID           int
	AdvParams    cmd.LESetAdvertisingParameters
	OnConnect    func(evt.LEConnectionComplete)
	OnDisconnect func(evt.DisconnectionComplete)
}

// DeviceFactory opens the HCI device (can be overridden in tests).
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = openDevice

// Advertising interval limits in 0.625 ms units.
const (
	minAdvUnits = 0x0020
	maxAdvUnits = 0x4000
	advUnit     = 625 * time.Microsecond
)

// AdvParams returns connectable undirected advertising parameters on all
// three channels with both interval bounds set to interval.
func AdvParams(interval time.Duration) cmd.LESetAdvertisingParameters {
	units := int64(interval / advUnit)
	if units < minAdvUnits {
		units = minAdvUnits
	}
	if units > maxAdvUnits {
		units = maxAdvUnits
	}

	return cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin:  uint16(units),
		AdvertisingIntervalMax:  uint16(units),
		AdvertisingType:         0x00, // ADV_IND
		OwnAddressType:          0x00,
		DirectAddressType:       0x00,
		DirectAddress:           [6]byte{},
		AdvertisingChannelMap:   0x07,
		AdvertisingFilterPolicy: 0x00,
	}
}
