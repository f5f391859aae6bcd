package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

type hciDevice struct {
	dev *linux.Device
}

func openDevice(cfg DeviceConfig) (Device, error) {
	dev, err := linux.NewDevice(
		ble.OptDeviceID(cfg.ID),
		ble.OptAdvParams(cfg.AdvParams),
		ble.OptConnectHandler(cfg.OnConnect),
		ble.OptDisconnectHandler(cfg.OnDisconnect),
	)
	if err != nil {
		return nil, NormalizeError(fmt.Errorf("failed to open hci%d: %w", cfg.ID, err))
	}
	return &hciDevice{dev: dev}, nil
}

func (d *hciDevice) AddService(svc *ble.Service) error {
	return d.dev.AddService(svc)
}

func (d *hciDevice) SetAdvParams(p cmd.LESetAdvertisingParameters) error {
	return d.dev.HCI.SetAdvParams(p)
}

func (d *hciDevice) SetAdvertisement(ad, sr []byte) error {
	return d.dev.HCI.SetAdvertisement(ad, sr)
}

func (d *hciDevice) Advertise() error {
	return d.dev.HCI.Advertise()
}

func (d *hciDevice) StopAdvertising() error {
	return d.dev.HCI.StopAdvertising()
}

func (d *hciDevice) Stop() error {
	return d.dev.Stop()
}
