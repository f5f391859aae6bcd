package testutils

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/srg/imuble/internal/radio"
)

// MockRadio is a testify mock of radio.Radio.
type MockRadio struct {
	mock.Mock
	Handler radio.LifecycleHandler
	Attrs   radio.AttributeHandler
}

// Register records attrs and returns the configured error.
func (m *MockRadio) Register(services []radio.ServiceDef, attrs radio.AttributeHandler) error {
	m.Attrs = attrs
	return m.Called(services, attrs).Error(0)
}

// SetLifecycleHandler records h without expectations.
func (m *MockRadio) SetLifecycleHandler(h radio.LifecycleHandler) {
	m.Handler = h
}

// Advertise implements radio.Radio.
func (m *MockRadio) Advertise(payload []byte, interval time.Duration) error {
	return m.Called(payload, interval).Error(0)
}

// Notify implements radio.Radio.
func (m *MockRadio) Notify(h radio.ConnHandle, id radio.CharID, value []byte) error {
	return m.Called(h, id, value).Error(0)
}

// Close implements radio.Radio.
func (m *MockRadio) Close() error {
	return m.Called().Error(0)
}
