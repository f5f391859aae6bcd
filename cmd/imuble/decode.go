package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/imuble/internal/gatt"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <characteristic> <hex>",
	Short: "Decode a characteristic value read from the peripheral",
	Long: `Decodes a raw characteristic value with the peripheral's fixed-point layout.
The characteristic is given by name (see 'imuble layout') or by UUID.

Examples:
  # Accelerometer: three int16, x100, little-endian
  imuble decode accel 0100feff6400

  # Separators and 0x prefixes are ignored
  imuble decode temperature 0x32 0x09

  # By UUID
  imuble decode d9d55011-0525-4e5c-be77-afada8e04e14 010000000100`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	id, err := resolveCharacteristic(args[0])
	if err != nil {
		return err
	}
	data, err := parseHex(strings.Join(args[1:], ""))
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	text, err := decodeValue(id, data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", id, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// parseHex accepts hex with optional spaces, colons, dashes and 0x prefixes.
func parseHex(s string) ([]byte, error) {
	cleaned := strings.ToLower(s)
	for _, sep := range []string{" ", ":", "-", "0x"} {
		cleaned = strings.ReplaceAll(cleaned, sep, "")
	}
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidHex)
	}

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidHex, s, err)
	}
	return data, nil
}

// resolveCharacteristic maps a characteristic name or UUID onto its CharID.
func resolveCharacteristic(name string) (radio.CharID, error) {
	want := normalizeUUID(name)
	for _, svc := range gatt.Services() {
		for _, c := range svc.Characteristics {
			if strings.EqualFold(string(c.ID), name) || want == normalizeUUID(c.UUID.String()) {
				return c.ID, nil
			}
		}
	}
	return "", &radio.UnknownCharacteristicError{ID: radio.CharID(name)}
}

// normalizeUUID converts a UUID string to lowercase hex without dashes or a
// 0x prefix.
func normalizeUUID(uuid string) string {
	uuid = strings.ToLower(strings.TrimSpace(uuid))
	uuid = strings.TrimPrefix(uuid, "0x")
	return strings.ReplaceAll(uuid, "-", "")
}

func characteristicNames() []string {
	var names []string
	for _, svc := range gatt.Services() {
		for _, c := range svc.Characteristics {
			names = append(names, string(c.ID))
		}
	}
	return names
}

// decodeValue renders data the way the central-side application would read it.
func decodeValue(id radio.CharID, data []byte) (string, error) {
	switch id {
	case radio.CharAccel:
		v, err := telemetry.DecodeAccel(data)
		if err != nil {
			return "", err
		}
		return formatVector(v), nil
	case radio.CharMag, radio.CharGyro:
		v, err := telemetry.DecodeWide(data)
		if err != nil {
			return "", err
		}
		return formatVector(v), nil
	case radio.CharTemperature:
		t, err := telemetry.DecodeTemperature(data)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%.2f", t), nil
	case radio.CharKeys:
		k, err := telemetry.DecodeKeys(data)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("A:%s B:%s C:%s", keyState(k[0]), keyState(k[1]), keyState(k[2])), nil
	case radio.CharDisplayOn:
		if gatt.DecodeDisplayCommand(data) {
			return "on", nil
		}
		return "off", nil
	default:
		return "", &radio.UnknownCharacteristicError{ID: id}
	}
}

func formatVector(v telemetry.Vector3) string {
	return fmt.Sprintf("x:%.2f, y:%.2f, z:%.2f", v.X, v.Y, v.Z)
}

func keyState(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}
