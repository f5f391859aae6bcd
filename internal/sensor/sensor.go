// Package sensor provides motion sources for hosts without the M5 IMU: a
// deterministic synthetic model, a fixed reading and a Lua-scripted source.
package sensor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/srg/imuble/internal/telemetry"
)

// Resting is the reading of a board lying flat at room temperature.
var Resting = telemetry.SensorSample{
	Accel:       telemetry.Vector3{X: 0, Y: 0, Z: 1},
	Mag:         telemetry.Vector3{X: 21.5, Y: -4.2, Z: 40.1},
	Gyro:        telemetry.Vector3{},
	Temperature: 24.0,
}

// Fixed returns the same sample on every read.
type Fixed struct {
	mu     sync.RWMutex
	sample telemetry.SensorSample
}

// NewFixed creates a fixed source.
func NewFixed(sample telemetry.SensorSample) *Fixed {
	return &Fixed{sample: sample}
}

// Set replaces the sample returned by later reads.
func (f *Fixed) Set(sample telemetry.SensorSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = sample
}

// Read returns the current sample unless ctx is done.
func (f *Fixed) Read(ctx context.Context) (telemetry.SensorSample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.SensorSample{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sample, nil
}

// Synthetic models a board rocking slowly around its resting orientation.
// The output is a pure function of the tick count, so runs are reproducible.
type Synthetic struct {
	// Period is the number of ticks in one full rocking cycle.
	Period int64
	// Amplitude is the peak tilt in g.
	Amplitude float64

	tick atomic.Int64
}

// DefaultPeriod is one cycle per thousand ticks, a few seconds at the default
// loop rate.
const DefaultPeriod = 1000

// NewSynthetic creates a synthetic source with default parameters.
func NewSynthetic() *Synthetic {
	return &Synthetic{Period: DefaultPeriod, Amplitude: 0.25}
}

// Read advances the model one tick.
func (s *Synthetic) Read(ctx context.Context) (telemetry.SensorSample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.SensorSample{}, err
	}
	return s.At(s.tick.Add(1) - 1), nil
}

// At returns the sample for tick without advancing the model.
func (s *Synthetic) At(tick int64) telemetry.SensorSample {
	period := s.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	phase := 2 * math.Pi * float64(tick%period) / float64(period)
	sin, cos := math.Sincos(phase)

	tilt := s.Amplitude * sin
	// deg/s, in phase with the derivative of the tilt
	rate := 90 * s.Amplitude * cos

	return telemetry.SensorSample{
		Accel: telemetry.Vector3{
			X: tilt,
			Y: 0,
			Z: math.Sqrt(math.Max(0, 1-tilt*tilt)),
		},
		Mag: telemetry.Vector3{
			X: Resting.Mag.X*cos - Resting.Mag.Y*sin*s.Amplitude,
			Y: Resting.Mag.Y,
			Z: Resting.Mag.Z,
		},
		Gyro: telemetry.Vector3{
			X: 0,
			Y: rate,
			Z: 0,
		},
		Temperature: Resting.Temperature + 0.5*sin,
	}
}

// Ticks returns the number of reads so far.
func (s *Synthetic) Ticks() int64 {
	return s.tick.Load()
}
