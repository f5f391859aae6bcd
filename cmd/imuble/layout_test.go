package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/testutils"
)

type LayoutTestSuite struct {
	CommandTestSuite
}

func (s *LayoutTestSuite) TestText() {
	// GOAL: Verify the layout table lists the payload and every characteristic in declaration order
	//
	// TEST SCENARIO: layout with defaults → advertising block + three services → matches expected text
	out, _, err := s.ExecuteCommand("layout")
	s.Require().NoError(err)

	expected := `
Advertising
  name         mpy-m5stack
  appearance   1088
  services     180a
  payload      24/31 bytes 0201060c096d70792d6d35737461636b03030a1803194004

telemetry d9d55001-0525-4e5c-be77-afada8e04e14
  accel        d9d55002-0525-4e5c-be77-afada8e04e14  read        3 x int16, x100
  mag          d9d55003-0525-4e5c-be77-afada8e04e14  read        3 x int32, x100
  gyro         d9d55004-0525-4e5c-be77-afada8e04e14  read        3 x int32, x100
  temperature  d9d55005-0525-4e5c-be77-afada8e04e14  read|notify 1 x int16, x100

input d9d55010-0525-4e5c-be77-afada8e04e14
  keys         d9d55011-0525-4e5c-be77-afada8e04e14  read|notify 3 x int16, 0 or 1

display-control d9d55015-0525-4e5c-be77-afada8e04e14
  display-on   d9d55016-0525-4e5c-be77-afada8e04e14  write       big-endian integer, 0 = off
`
	testutils.NewTextAsserter(s.T()).Assert(out, expected)
}

func (s *LayoutTestSuite) TestJSON() {
	// GOAL: Verify --json emits the same table in machine readable form
	//
	// TEST SCENARIO: layout --json --name bench → structural compare, payload presence only
	out, _, err := s.ExecuteCommand("layout", "--json", "--name", "bench")
	s.Require().NoError(err)

	expected := `{
  "advertising": {
    "name": "bench",
    "appearance": 1088,
    "services": ["180a"],
    "length": 18,
    "max_length": 31,
    "payload": "<<PRESENCE>>"
  },
  "services": [
    {
      "name": "telemetry",
      "uuid": "d9d55001-0525-4e5c-be77-afada8e04e14",
      "characteristics": [
        {"name": "accel", "uuid": "d9d55002-0525-4e5c-be77-afada8e04e14", "access": "read", "layout": "3 x int16, x100"},
        {"name": "mag", "uuid": "d9d55003-0525-4e5c-be77-afada8e04e14", "access": "read", "layout": "3 x int32, x100"},
        {"name": "gyro", "uuid": "d9d55004-0525-4e5c-be77-afada8e04e14", "access": "read", "layout": "3 x int32, x100"},
        {"name": "temperature", "uuid": "d9d55005-0525-4e5c-be77-afada8e04e14", "access": "read|notify", "layout": "1 x int16, x100"}
      ]
    },
    {
      "name": "input",
      "uuid": "d9d55010-0525-4e5c-be77-afada8e04e14",
      "characteristics": [
        {"name": "keys", "uuid": "d9d55011-0525-4e5c-be77-afada8e04e14", "access": "read|notify", "layout": "3 x int16, 0 or 1"}
      ]
    },
    {
      "name": "display-control",
      "uuid": "d9d55015-0525-4e5c-be77-afada8e04e14",
      "characteristics": [
        {"name": "display-on", "uuid": "d9d55016-0525-4e5c-be77-afada8e04e14", "access": "write", "layout": "big-endian integer, 0 = off"}
      ]
    }
  ]
}`
	testutils.NewJSONAsserter(s.T()).Assert(out, expected)
}

func (s *LayoutTestSuite) TestNameFromConfigFile() {
	path := filepath.Join(s.T().TempDir(), "imuble.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("device_name: from-file\n"), 0o600))

	out, _, err := s.ExecuteCommand("layout", "--json", "--config", path)
	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `{"advertising": {"name": "from-file"}}`)

	resetFlags(rootCmd)
	out, _, err = s.ExecuteCommand("layout", "--json", "--config", path, "--name", "from-flag")
	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `{"advertising": {"name": "from-flag"}}`)
}

func (s *LayoutTestSuite) TestZeroAppearanceIsNotAdvertised() {
	// GOAL: Verify appearance 0 leaves the appearance field out of the payload
	//
	// TEST SCENARIO: layout --json --name bench --appearance 0 → 14-byte payload of flags, name and service list
	out, _, err := s.ExecuteCommand("layout", "--json", "--name", "bench", "--appearance", "0")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
  "advertising": {
    "name": "bench",
    "appearance": 0,
    "length": 14,
    "payload": "020106060962656e636803030a18"
  }
}`)
}

func (s *LayoutTestSuite) TestNameTooLong() {
	_, _, err := s.ExecuteCommand("layout", "--name", "a-name-that-is-too-long")
	s.Require().Error(err)
	s.ErrorIs(err, advertising.ErrPayloadTooLong, "an oversized name MUST be rejected before anything is built")
	s.Contains(FormatUserError(err), "shorter --name")
}

func TestLayoutTestSuite(t *testing.T) {
	suite.Run(t, new(LayoutTestSuite))
}
