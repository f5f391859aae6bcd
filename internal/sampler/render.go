package sampler

import (
	"fmt"

	"github.com/srg/imuble/internal/telemetry"
)

// Line is one positioned line of the telemetry block.
type Line struct {
	X, Y int
	Text string
}

// Layout returns the telemetry text block for sample: a title and a value
// line per sensor, 30 pixels apart.
func Layout(sample telemetry.SensorSample) []Line {
	return []Line{
		{0, 0, "Accelerometer:"},
		{0, 30, fmt.Sprintf("x:%0.3f, y:%0.3f, z:%0.3f", sample.Accel.X, sample.Accel.Y, sample.Accel.Z)},
		{0, 60, "Magnetometer:"},
		{0, 90, fmt.Sprintf("x:%0.1f, y:%0.1f, z:%0.1f", sample.Mag.X, sample.Mag.Y, sample.Mag.Z)},
		{0, 120, "Gyroscope:"},
		{0, 150, fmt.Sprintf("x:%0.1f, y:%0.1f, z:%0.1f", sample.Gyro.X, sample.Gyro.Y, sample.Gyro.Z)},
	}
}

// Render draws Layout(sample) on d.
func Render(d Display, sample telemetry.SensorSample) error {
	for _, l := range Layout(sample) {
		d.SetPosition(l.X, l.Y)
		if err := d.Print(l.Text); err != nil {
			return fmt.Errorf("failed to print at (%d,%d): %w", l.X, l.Y, err)
		}
	}
	return nil
}
