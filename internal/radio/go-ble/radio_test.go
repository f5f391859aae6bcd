package goble

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/imuble/internal/radio"
)

type fakeDevice struct {
	mu        sync.Mutex
	cfg       DeviceConfig
	services  []*ble.Service
	calls     []string
	advParams []cmd.LESetAdvertisingParameters
	advData   []byte
	advertErr error
	stopped   bool
}

func (d *fakeDevice) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDevice) AddService(svc *ble.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = append(d.services, svc)
	return nil
}

func (d *fakeDevice) SetAdvParams(p cmd.LESetAdvertisingParameters) error {
	d.record("params")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advParams = append(d.advParams, p)
	return nil
}

func (d *fakeDevice) SetAdvertisement(ad, sr []byte) error {
	d.record("data")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advData = append([]byte(nil), ad...)
	return nil
}

func (d *fakeDevice) Advertise() error {
	d.record("enable")
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advertErr
}

func (d *fakeDevice) StopAdvertising() error {
	d.record("stop")
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (n *fakeNotifier) Write(b []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.writes = append(n.writes, append([]byte(nil), b...))
	return len(b), nil
}

type chanHandler struct {
	events chan string
}

func (h *chanHandler) OnConnect(c radio.ConnHandle)    { h.events <- "connect " + c.String() }
func (h *chanHandler) OnDisconnect(c radio.ConnHandle) { h.events <- "disconnect " + c.String() }

type attrsStub struct{}

func (attrsStub) ReadValue(radio.CharID) ([]byte, error) { return []byte{1}, nil }
func (attrsStub) WriteValue(radio.CharID, []byte) error  { return nil }

type GoBLERadioTestSuite struct {
	suite.Suite
	original func(DeviceConfig) (Device, error)
	device   *fakeDevice
	radio    *Radio
	handler  *chanHandler
}

func (s *GoBLERadioTestSuite) SetupTest() {
	s.original = DeviceFactory
	s.device = &fakeDevice{}
	DeviceFactory = func(cfg DeviceConfig) (Device, error) {
		s.device.cfg = cfg
		return s.device, nil
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r, err := New(Options{DeviceID: 1, Interval: 500 * time.Millisecond}, logger)
	s.Require().NoError(err)
	s.radio = r

	s.handler = &chanHandler{events: make(chan string, 16)}
	r.SetLifecycleHandler(s.handler)
}

func (s *GoBLERadioTestSuite) TearDownTest() {
	s.NoError(s.radio.Close())
	DeviceFactory = s.original
}

func TestGoBLERadioTestSuite(t *testing.T) {
	suite.Run(t, new(GoBLERadioTestSuite))
}

func (s *GoBLERadioTestSuite) nextEvent() string {
	select {
	case e := <-s.handler.events:
		return e
	case <-time.After(time.Second):
		s.FailNow("lifecycle event was not delivered")
		return ""
	}
}

func (s *GoBLERadioTestSuite) TestDeviceConfig() {
	s.Equal(1, s.device.cfg.ID)
	s.Equal(uint16(800), s.device.cfg.AdvParams.AdvertisingIntervalMin, "500ms MUST be 800 units of 0.625ms")
	s.NotNil(s.device.cfg.OnConnect)
	s.NotNil(s.device.cfg.OnDisconnect)
}

func (s *GoBLERadioTestSuite) TestLifecycleEventsAreDeliveredInOrder() {
	// GOAL: Verify events raised on the HCI goroutine reach the handler asynchronously and in order
	//
	// TEST SCENARIO: connect 1, connect 2, disconnect 1, stale disconnect 9 → same order at the handler

	s.radio.connected(1, "aa:bb:cc:dd:ee:01")
	s.radio.connected(2, "aa:bb:cc:dd:ee:02")
	s.radio.disconnected(1)
	s.radio.disconnected(9)

	s.Equal("connect 0x0001", s.nextEvent())
	s.Equal("connect 0x0002", s.nextEvent())
	s.Equal("disconnect 0x0001", s.nextEvent())
	s.Equal("disconnect 0x0009", s.nextEvent())
}

func (s *GoBLERadioTestSuite) TestBurstWhileHandlerIsBlockedLosesNothing() {
	// GOAL: Verify a burst larger than any buffer reaches a slow handler without losing a disconnect
	//
	// TEST SCENARIO: handler not draining → 300 connect/disconnect pairs → every event arrives in order

	const pairs = 300
	for i := 1; i <= pairs; i++ {
		s.radio.connected(radio.ConnHandle(i), "aa:bb:cc:dd:ee:01")
		s.radio.disconnected(radio.ConnHandle(i))
	}

	for i := 1; i <= pairs; i++ {
		h := radio.ConnHandle(i)
		s.Require().Equal("connect "+h.String(), s.nextEvent())
		s.Require().Equal("disconnect "+h.String(), s.nextEvent(), "disconnect of %s MUST be delivered", h)
	}
}

func (s *GoBLERadioTestSuite) TestNotify() {
	// GOAL: Verify notify routing by handle and subscription
	//
	// TEST SCENARIO: unknown handle → ErrUnknownConnection; no subscription → nil; subscribed → written

	err := s.radio.Notify(5, radio.CharTemperature, []byte{1, 2})
	s.ErrorIs(err, radio.ErrUnknownConnection)

	s.radio.connected(5, "aa:bb:cc:dd:ee:05")
	s.NoError(s.radio.Notify(5, radio.CharTemperature, []byte{1, 2}), "unsubscribed notify MUST be a silent no-op")

	n := &fakeNotifier{}
	s.radio.subscribe("aa:bb:cc:dd:ee:05", radio.CharTemperature, n)
	s.NoError(s.radio.Notify(5, radio.CharTemperature, []byte{3, 4}))
	s.NoError(s.radio.Notify(5, radio.CharKeys, []byte{0}))
	s.Equal([][]byte{{3, 4}}, n.writes)

	s.radio.disconnected(5)
	s.ErrorIs(s.radio.Notify(5, radio.CharTemperature, nil), radio.ErrUnknownConnection)
	s.Empty(s.radio.subs, "disconnect MUST drop the central's subscriptions")
}

func (s *GoBLERadioTestSuite) TestNotifyWriteFailure() {
	s.radio.connected(7, "aa:bb:cc:dd:ee:07")
	s.radio.subscribe("aa:bb:cc:dd:ee:07", radio.CharKeys, &fakeNotifier{err: errors.New("conn disconnected")})

	err := s.radio.Notify(7, radio.CharKeys, []byte{1})
	s.ErrorIs(err, radio.ErrUnknownConnection)
}

func (s *GoBLERadioTestSuite) TestUnsubscribeKeepsNewerSubscription() {
	older := &fakeNotifier{}
	newer := &fakeNotifier{}

	s.radio.subscribe("addr", radio.CharKeys, older)
	s.radio.subscribe("addr", radio.CharKeys, newer)
	s.radio.unsubscribe("addr", radio.CharKeys, older)

	s.Len(s.radio.subs, 1)
	s.radio.unsubscribe("addr", radio.CharKeys, newer)
	s.Empty(s.radio.subs)
}

func (s *GoBLERadioTestSuite) TestAdvertise() {
	// GOAL: Verify advertise replaces data and only reprograms parameters when the interval changes
	//
	// TEST SCENARIO: same interval → stop,data,enable; new interval → stop,params,data,enable

	payload := []byte{0x02, 0x01, 0x06}
	s.Require().NoError(s.radio.Advertise(payload, 500*time.Millisecond))
	s.Equal([]string{"stop", "data", "enable"}, s.device.calls)
	s.Equal(payload, s.device.advData)

	s.device.calls = nil
	s.Require().NoError(s.radio.Advertise(payload, 100*time.Millisecond))
	s.Equal([]string{"stop", "params", "data", "enable"}, s.device.calls)
	s.Require().Len(s.device.advParams, 1)
	s.Equal(uint16(160), s.device.advParams[0].AdvertisingIntervalMax)
}

func (s *GoBLERadioTestSuite) TestAdvertiseFailure() {
	s.device.advertErr = errors.New("command disallowed")
	err := s.radio.Advertise(nil, 500*time.Millisecond)
	s.ErrorContains(err, "command disallowed")
}

func (s *GoBLERadioTestSuite) TestRegister() {
	services := []radio.ServiceDef{{
		Name: "svc",
		UUID: ble.UUID16(0x1234),
		Characteristics: []radio.CharacteristicDef{
			{ID: radio.CharAccel, UUID: ble.UUID16(0x1235), Access: radio.AccessRead},
			{ID: radio.CharTemperature, UUID: ble.UUID16(0x1236), Access: radio.AccessReadNotify},
			{ID: radio.CharDisplayOn, UUID: ble.UUID16(0x1237), Access: radio.AccessWrite},
		},
	}}

	s.Require().NoError(s.radio.Register(services, attrsStub{}))
	s.Require().Len(s.device.services, 1)

	svc := s.device.services[0]
	s.True(svc.UUID.Equal(ble.UUID16(0x1234)))
	s.Require().Len(svc.Characteristics, 3)

	s.NotZero(svc.Characteristics[0].Property & ble.CharRead)
	s.Zero(svc.Characteristics[0].Property & ble.CharNotify)
	s.NotZero(svc.Characteristics[1].Property & ble.CharNotify)
	s.NotZero(svc.Characteristics[2].Property & ble.CharWrite)
	s.Zero(svc.Characteristics[2].Property & ble.CharRead)
}

func (s *GoBLERadioTestSuite) TestCloseStopsDevice() {
	s.Require().NoError(s.radio.Close())
	s.True(s.device.stopped)
}

func TestAdvParams(t *testing.T) {
	tests := []struct {
		interval time.Duration
		units    uint16
	}{
		{500 * time.Millisecond, 800},
		{20 * time.Millisecond, 32},
		{time.Millisecond, 0x20},
		{time.Minute, 0x4000},
	}
	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			p := AdvParams(tt.interval)
			assert.Equal(t, tt.units, p.AdvertisingIntervalMin)
			assert.Equal(t, tt.units, p.AdvertisingIntervalMax)
			assert.Equal(t, uint8(0x07), p.AdvertisingChannelMap)
		})
	}
}

func TestPeerAddr(t *testing.T) {
	assert.Equal(t, "06:05:04:03:02:01", peerAddr([6]byte{1, 2, 3, 4, 5, 6}))
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))
	assert.ErrorIs(t, NormalizeError(errors.New("can't init hci: operation not permitted")), radio.ErrUnsupported)
	assert.ErrorIs(t, NormalizeError(errors.New("no such device")), radio.ErrUnsupported)
	assert.ErrorIs(t, NormalizeError(errors.New("conn: Disconnected")), radio.ErrUnknownConnection)

	other := errors.New("boom")
	assert.Equal(t, other, NormalizeError(other))
}

func TestNew_FactoryError(t *testing.T) {
	original := DeviceFactory
	defer func() { DeviceFactory = original }()

	DeviceFactory = func(DeviceConfig) (Device, error) { return nil, radio.ErrUnsupported }
	_, err := New(Options{}, nil)
	require.ErrorIs(t, err, radio.ErrUnsupported)
}
