// Package telemetry defines the motion-sensor sample types and the fixed-point
// wire encoding shared by the peripheral and any central reading it.
//
// Every fractional value is scaled by Scale and rounded half away from zero.
// Values that do not fit the field width wrap silently; the sensor's physical
// range is expected to stay within ±327.67 for 16-bit fields.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Scale is the fixed-point factor applied to every fractional field.
const Scale = 100

// Wire sizes in bytes.
const (
	AccelSize       = 3 * 2
	WideVectorSize  = 3 * 4
	TemperatureSize = 2
	KeysSize        = 3 * 2
)

// ByteOrder is the layout agreed with centrals for every multi-byte field.
var ByteOrder = binary.LittleEndian

// ErrShortBuffer is returned when a value is too short for its layout.
var ErrShortBuffer = errors.New("short buffer")

// Vector3 is a 3-axis reading.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorSample is one tick's worth of motion data. Accel is in g, Mag in uT,
// Gyro in deg/s and Temperature in degrees Celsius.
type SensorSample struct {
	Accel       Vector3 `json:"accel"`
	Mag         Vector3 `json:"mag"`
	Gyro        Vector3 `json:"gyro"`
	Temperature float64 `json:"temperature"`
}

// KeyState holds the three physical buttons, A, B and C in that order.
type KeyState [3]bool

// fixed converts v to the nearest scaled integer. The float to int64
// conversion happens first so narrowing to the field width wraps instead of
// being implementation defined.
func fixed(v float64) int64 {
	return int64(math.Round(v * Scale))
}

// EncodeAccel packs an accelerometer vector into three int16 fields.
func EncodeAccel(v Vector3) []byte {
	b := make([]byte, AccelSize)
	ByteOrder.PutUint16(b[0:], uint16(int16(fixed(v.X))))
	ByteOrder.PutUint16(b[2:], uint16(int16(fixed(v.Y))))
	ByteOrder.PutUint16(b[4:], uint16(int16(fixed(v.Z))))
	return b
}

// EncodeWide packs a magnetometer or gyroscope vector into three int32 fields.
func EncodeWide(v Vector3) []byte {
	b := make([]byte, WideVectorSize)
	ByteOrder.PutUint32(b[0:], uint32(int32(fixed(v.X))))
	ByteOrder.PutUint32(b[4:], uint32(int32(fixed(v.Y))))
	ByteOrder.PutUint32(b[8:], uint32(int32(fixed(v.Z))))
	return b
}

// EncodeTemperature packs a temperature into a single int16 field.
func EncodeTemperature(t float64) []byte {
	b := make([]byte, TemperatureSize)
	ByteOrder.PutUint16(b, uint16(int16(fixed(t))))
	return b
}

// EncodeKeys packs the button states as three int16 fields holding 0 or 1.
func EncodeKeys(k KeyState) []byte {
	b := make([]byte, KeysSize)
	for i, pressed := range k {
		if pressed {
			ByteOrder.PutUint16(b[i*2:], 1)
		}
	}
	return b
}

// DecodeAccel is the inverse of EncodeAccel.
func DecodeAccel(b []byte) (Vector3, error) {
	if len(b) < AccelSize {
		return Vector3{}, fmt.Errorf("accel needs %d bytes, got %d: %w", AccelSize, len(b), ErrShortBuffer)
	}
	return Vector3{
		X: unfix(int64(int16(ByteOrder.Uint16(b[0:])))),
		Y: unfix(int64(int16(ByteOrder.Uint16(b[2:])))),
		Z: unfix(int64(int16(ByteOrder.Uint16(b[4:])))),
	}, nil
}

// DecodeWide is the inverse of EncodeWide.
func DecodeWide(b []byte) (Vector3, error) {
	if len(b) < WideVectorSize {
		return Vector3{}, fmt.Errorf("vector needs %d bytes, got %d: %w", WideVectorSize, len(b), ErrShortBuffer)
	}
	return Vector3{
		X: unfix(int64(int32(ByteOrder.Uint32(b[0:])))),
		Y: unfix(int64(int32(ByteOrder.Uint32(b[4:])))),
		Z: unfix(int64(int32(ByteOrder.Uint32(b[8:])))),
	}, nil
}

// DecodeTemperature is the inverse of EncodeTemperature.
func DecodeTemperature(b []byte) (float64, error) {
	if len(b) < TemperatureSize {
		return 0, fmt.Errorf("temperature needs %d bytes, got %d: %w", TemperatureSize, len(b), ErrShortBuffer)
	}
	return unfix(int64(int16(ByteOrder.Uint16(b)))), nil
}

// DecodeKeys is the inverse of EncodeKeys. Any non-zero field reads as pressed.
func DecodeKeys(b []byte) (KeyState, error) {
	var k KeyState
	if len(b) < KeysSize {
		return k, fmt.Errorf("keys need %d bytes, got %d: %w", KeysSize, len(b), ErrShortBuffer)
	}
	for i := range k {
		k[i] = ByteOrder.Uint16(b[i*2:]) != 0
	}
	return k, nil
}

func unfix(v int64) float64 {
	return float64(v) / Scale
}
