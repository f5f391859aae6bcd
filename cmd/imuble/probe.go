package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/imuble/internal/lua"
	"github.com/srg/imuble/internal/radio"
	"github.com/srg/imuble/internal/sampler"
	"github.com/srg/imuble/internal/sensor"
	"github.com/srg/imuble/internal/telemetry"
	"github.com/srg/imuble/pkg/config"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Sample the sensor source without advertising",
	Long: `Reads the configured sensor source for a number of ticks and prints each
sample the way a central would decode it after the fixed-point round trip. For
a script source, everything the script printed is shown afterwards.

Examples:
  # Five ticks of the synthetic model
  imuble probe

  # Check a sensor script before serving it
  imuble probe --script examples/tilt.lua --ticks 3`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

var probeTicks int

// probeOutputBuffer bounds the script output kept for the report.
const probeOutputBuffer uint32 = 1024

func init() {
	probeCmd.Flags().IntVar(&probeTicks, "ticks", 5, "Number of samples to read")
	probeCmd.Flags().String("sensor", config.SensorSynthetic, "Sensor source (synthetic, fixed, script)")
	probeCmd.Flags().String("script", "", "Lua sensor script defining sample(tick); implies --sensor script")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	if probeTicks <= 0 {
		return fmt.Errorf("--ticks must be positive, got %d", probeTicks)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	return probe(cmd.Context(), cfg, probeTicks, cmd.OutOrStdout(), logger)
}

// probe reads ticks samples from the source cfg selects and writes a report
// to w.
func probe(ctx context.Context, cfg *config.Config, ticks int, w io.Writer, logger *logrus.Logger) error {
	var (
		source    sampler.SensorSource
		keypad    sampler.Keypad
		collector *lua.OutputCollector
	)

	switch cfg.Sensor {
	case config.SensorFixed:
		source = sensor.NewFixed(sensor.Resting)
	case config.SensorScript:
		script, err := sensor.NewScript(cfg.SensorScript, logger)
		if err != nil {
			return err
		}
		defer script.Close()

		collector, err = lua.NewOutputCollector(script.Engine().Output(), probeOutputBuffer, func(err error) {
			logger.WithError(err).Warn("Script output lost")
		})
		if err != nil {
			return err
		}
		if err := collector.Start(); err != nil {
			return err
		}
		defer collector.Stop()

		source, keypad = script, script
	default:
		source = sensor.NewSynthetic()
	}

	for tick := 0; tick < ticks; tick++ {
		sample, err := source.Read(ctx)
		if err != nil {
			return err
		}
		var keys telemetry.KeyState
		if keypad != nil {
			if keys, err = keypad.Keys(); err != nil {
				return err
			}
		}
		if err := writeProbeTick(w, tick, sample, keys); err != nil {
			return err
		}
	}

	if collector == nil {
		return nil
	}
	if err := collector.Stop(); err != nil {
		return err
	}
	records, err := collector.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintln(w, "script output:")
	for _, rec := range records {
		prefix := "  "
		if rec.Source == "stderr" {
			prefix = "! "
		}
		fmt.Fprint(w, prefix, rec.Content)
	}
	return nil
}

// writeProbeTick prints one sample as the wire round trip leaves it.
func writeProbeTick(w io.Writer, tick int, sample telemetry.SensorSample, keys telemetry.KeyState) error {
	values := []struct {
		id   radio.CharID
		data []byte
	}{
		{radio.CharAccel, telemetry.EncodeAccel(sample.Accel)},
		{radio.CharMag, telemetry.EncodeWide(sample.Mag)},
		{radio.CharGyro, telemetry.EncodeWide(sample.Gyro)},
		{radio.CharTemperature, telemetry.EncodeTemperature(sample.Temperature)},
		{radio.CharKeys, telemetry.EncodeKeys(keys)},
	}

	fmt.Fprintf(w, "tick %d\n", tick)
	for _, v := range values {
		text, err := decodeValue(v.id, v.data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-12s %s\n", v.id, text)
	}
	return nil
}
