package main

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/telemetry"
)

type DecodeTestSuite struct {
	CommandTestSuite
}

func (s *DecodeTestSuite) TestParseHex() {
	// GOAL: Verify hex arguments tolerate the separators people paste from tools
	//
	// TEST SCENARIO: Parse hex with different separators → decoded bytes → matches expected output
	tests := []struct {
		name     string
		input    string
		expected []byte
		wantErr  bool
	}{
		{name: "plain", input: "0102", expected: []byte{0x01, 0x02}},
		{name: "spaces", input: "01 02 03", expected: []byte{0x01, 0x02, 0x03}},
		{name: "colons", input: "01:02:03", expected: []byte{0x01, 0x02, 0x03}},
		{name: "dashes", input: "01-02", expected: []byte{0x01, 0x02}},
		{name: "0x prefixes", input: "0x32 0x09", expected: []byte{0x32, 0x09}},
		{name: "upper case", input: "0XAB CD", expected: []byte{0xab, 0xcd}},
		{name: "odd length", input: "123", wantErr: true},
		{name: "not hex", input: "zz", wantErr: true},
		{name: "empty", input: " ", wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := parseHex(tt.input)
			if tt.wantErr {
				s.ErrorIs(err, ErrInvalidHex, "bad input MUST report ErrInvalidHex")
				return
			}
			s.Require().NoError(err)
			s.Equal(tt.expected, got)
		})
	}
}

func (s *DecodeTestSuite) TestResolveCharacteristic() {
	tests := []struct {
		input    string
		expected radio.CharID
	}{
		{"accel", radio.CharAccel},
		{"Gyro", radio.CharGyro},
		{"display-on", radio.CharDisplayOn},
		{"d9d55005-0525-4e5c-be77-afada8e04e14", radio.CharTemperature},
		{"D9D550110525-4E5C-BE77-AFADA8E04E14", radio.CharKeys},
		{"d9d5500305254e5cbe77afada8e04e14", radio.CharMag},
	}
	for _, tt := range tests {
		s.Run(tt.input, func() {
			id, err := resolveCharacteristic(tt.input)
			s.Require().NoError(err)
			s.Equal(tt.expected, id)
		})
	}

	s.Run("unknown", func() {
		_, err := resolveCharacteristic("pressure")
		s.ErrorIs(err, radio.ErrUnknownCharacteristic)
		s.Contains(FormatUserError(err), "expected one of accel, mag, gyro, temperature, keys, display-on")
	})
}

func (s *DecodeTestSuite) TestDecodeCommand() {
	// GOAL: Verify the decode command renders each characteristic as a central reads it
	//
	// TEST SCENARIO: decode <char> <hex> → stdout holds the decoded value
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"accel", []string{"accel", "0100feff6400"}, "x:0.01, y:-0.02, z:1.00\n"},
		{"mag", []string{"mag", "66080000", "5cfeffff", "aa0f0000"}, "x:21.50, y:-4.20, z:40.10\n"},
		{"temperature split bytes", []string{"temperature", "0x32", "0x09"}, "23.54\n"},
		{"negative temperature", []string{"temperature", "18fc"}, "-10.00\n"},
		{"keys", []string{"keys", "010000000100"}, "A:down B:up C:down\n"},
		{"display off", []string{"display-on", "00"}, "off\n"},
		{"display on, wide value", []string{"display-on", "000100"}, "on\n"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resetFlags(rootCmd)
			out, _, err := s.ExecuteCommand(append([]string{"decode"}, tt.args...)...)
			s.Require().NoError(err)
			s.Equal(tt.expected, out)
		})
	}
}

func (s *DecodeTestSuite) TestDecodeCommandErrors() {
	s.Run("short value", func() {
		_, _, err := s.ExecuteCommand("decode", "gyro", "0100")
		s.Require().Error(err)
		s.ErrorIs(err, telemetry.ErrShortBuffer, "a truncated value MUST report ErrShortBuffer")
		s.Contains(FormatUserError(err), "imuble layout")
	})

	s.Run("unknown characteristic", func() {
		_, _, err := s.ExecuteCommand("decode", "pressure", "0100")
		s.ErrorIs(err, radio.ErrUnknownCharacteristic)
	})

	s.Run("missing value", func() {
		_, _, err := s.ExecuteCommand("decode", "accel")
		s.Error(err, "decode MUST require a value")
	})
}

func TestDecodeTestSuite(t *testing.T) {
	suite.Run(t, new(DecodeTestSuite))
}
