package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/gatt"
	"github.com/srg/imuble/internal/peripheral"
	"github.com/srg/imuble/internal/radio/loopback"
)

// PeripheralSuite runs a complete peripheral on a loopback radio with fake
// hardware collaborators.
//
//	type LoopSuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func (s *LoopSuite) TestSomething() {
//	    s.StartAdvertising()
//	    c := s.AttachCentral()
//	    ...
//	}
type PeripheralSuite struct {
	suite.Suite

	Logger     *logrus.Logger
	Radio      *loopback.Radio
	Peripheral *peripheral.Peripheral
	Sensor     *FakeSensor
	Keypad     *FakeKeypad
	Backlight  *FakeBacklight
	Display    *FakeDisplay
}

// SetupTest builds a fresh peripheral for every test.
func (s *PeripheralSuite) SetupTest() {
	s.Logger = NewTestLogger()
	s.Radio = loopback.New(s.Logger)

	p, err := peripheral.New(s.Radio, peripheral.Options{
		Name:       "imu-test",
		Appearance: advertising.AppearanceMotionSensor,
		Interval:   100 * time.Millisecond,
	}, s.Logger)
	s.Require().NoError(err)
	s.Peripheral = p

	s.Sensor = &FakeSensor{}
	s.Keypad = &FakeKeypad{}
	s.Backlight = &FakeBacklight{}
	s.Display = &FakeDisplay{}
}

// TearDownTest closes the peripheral.
func (s *PeripheralSuite) TearDownTest() {
	if s.Peripheral != nil {
		s.NoError(s.Peripheral.Close())
	}
}

// StartAdvertising performs the boot-time advertise.
func (s *PeripheralSuite) StartAdvertising() {
	s.Require().NoError(s.Peripheral.Start())
}

// AttachCentral connects a central subscribed to the heartbeat
// characteristics. Advertising is restarted first if a previous central
// stopped it.
func (s *PeripheralSuite) AttachCentral() *loopback.Central {
	if !s.Radio.Advertising() {
		s.Require().NoError(s.Peripheral.Advertiser().Restart())
	}
	c, err := loopback.Attach(s.Radio, s.Logger, gatt.NotifiedCharacteristics()...)
	s.Require().NoError(err)
	return c
}
