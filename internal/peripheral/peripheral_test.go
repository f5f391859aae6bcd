package peripheral

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble/linux/adv"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/radio/loopback"
)

type PeripheralTestSuite struct {
	suite.Suite
	radio      *loopback.Radio
	peripheral *Peripheral
}

func (s *PeripheralTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.radio = loopback.New(logger)
	p, err := New(s.radio, Options{
		Name:       "imu-test",
		Appearance: advertising.AppearanceMotionSensor,
		Interval:   200 * time.Millisecond,
	}, logger)
	s.Require().NoError(err)
	s.peripheral = p
}

func (s *PeripheralTestSuite) TearDownTest() {
	s.NoError(s.peripheral.Close())
}

func TestPeripheralTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralTestSuite))
}

func (s *PeripheralTestSuite) TestStartAdvertisesOnce() {
	// GOAL: Verify boot advertises the precomputed payload once
	//
	// TEST SCENARIO: Start → one Advertise call with the configured interval and name

	s.Require().NoError(s.peripheral.Start())

	s.True(s.radio.Advertising())
	s.Equal(1, s.radio.AdvertiseCount())

	payload, interval := s.radio.Payload()
	s.Equal(200*time.Millisecond, interval)
	s.Equal("imu-test", adv.NewRawPacket(payload).LocalName())
}

func (s *PeripheralTestSuite) TestDisconnectRestartsAdvertisingExactlyOnce() {
	// GOAL: Verify every disconnect re-advertises exactly once before the next connect
	//
	// TEST SCENARIO: Start → connect → disconnect → count +1 → connect again succeeds

	s.Require().NoError(s.peripheral.Start())

	h, err := s.radio.Connect()
	s.Require().NoError(err)
	s.Equal([]radio.ConnHandle{h}, s.peripheral.Active())
	s.False(s.radio.Advertising())

	s.Require().NoError(s.radio.Disconnect(h))
	s.Empty(s.peripheral.Active(), "disconnect MUST remove the handle")
	s.Equal(2, s.radio.AdvertiseCount(), "disconnect MUST re-advertise exactly once")
	s.True(s.radio.Advertising())

	payload, _ := s.radio.Payload()
	s.Equal([]byte(s.peripheral.Advertiser().Payload()), payload, "payload MUST NOT be recomputed")

	_, err = s.radio.Connect()
	s.NoError(err, "peripheral MUST be connectable again after a disconnect")
}

func (s *PeripheralTestSuite) TestStaleDisconnectIsAbsorbed() {
	// GOAL: Verify a disconnect for an unknown handle neither fails nor disturbs state
	//
	// TEST SCENARIO: One central connected → stale disconnect for another handle → registry unchanged, no fatal

	s.Require().NoError(s.peripheral.Start())
	h, err := s.radio.Connect()
	s.Require().NoError(err)

	s.NotPanics(func() { s.radio.InjectDisconnect(h + 100) })

	s.Equal([]radio.ConnHandle{h}, s.peripheral.Active())
	select {
	case err := <-s.peripheral.Fatal():
		s.Failf("unexpected fatal error", "%v", err)
	default:
	}
}

func (s *PeripheralTestSuite) TestAdvertiseFailureAfterDisconnectIsFatal() {
	// GOAL: Verify a radio failure inside the disconnect callback surfaces as fatal
	//
	// TEST SCENARIO: Advertise starts failing → disconnect → error on Fatal()

	s.Require().NoError(s.peripheral.Start())
	h, err := s.radio.Connect()
	s.Require().NoError(err)

	radioErr := errors.New("hci: controller busy")
	s.radio.FailAdvertise(radioErr)
	s.Require().NoError(s.radio.Disconnect(h))

	select {
	case err := <-s.peripheral.Fatal():
		s.ErrorIs(err, radioErr)
	case <-time.After(time.Second):
		s.Fail("fatal error MUST be reported")
	}
}

func (s *PeripheralTestSuite) TestCentralSeesSessionValues() {
	s.Require().NoError(s.peripheral.Start())
	c, err := loopback.Attach(s.radio, nil)
	s.Require().NoError(err)

	s.Require().NoError(c.SetDisplay(false))
	s.False(s.peripheral.Session().ReadDisplayCommand())

	snap, err := c.Poll()
	s.Require().NoError(err)
	s.Equal(c.Handle(), snap.Handle)
}

func TestNew_NameTooLong(t *testing.T) {
	_, err := New(loopback.New(nil), Options{Name: strings.Repeat("x", 40)}, nil)
	assert.ErrorIs(t, err, advertising.ErrPayloadTooLong)
}

func TestClose_Idempotent(t *testing.T) {
	p, err := New(loopback.New(nil), Options{Name: "imu"}, nil)
	require.NoError(t, err)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
