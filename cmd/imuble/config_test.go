package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/imuble/pkg/config"
)

// newFlagCommand returns a command carrying the serve flags and the global
// ones, parsed from args.
func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().AddFlagSet(serveCmd.LocalNonPersistentFlags())
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("config", "", "")

	// serveCmd's flag objects are shared; start from their defaults.
	resetFlags(serveCmd)
	t.Cleanup(func() { resetFlags(serveCmd) })

	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "no flags keeps the file values",
			args: nil,
			verify: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.DefaultConfig(), cfg)
			},
		},
		{
			name: "every serve flag",
			args: []string{"--name", "bench", "--appearance", "832", "--interval", "1s", "--hci", "1",
				"--radio", "loopback", "--demo-central", "--sensor", "fixed", "--display", "none",
				"--yield", "10ms", "--notify=false", "--key-hold", "1s"},
			verify: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "bench", cfg.DeviceName)
				assert.Equal(t, uint16(832), cfg.Appearance)
				assert.Equal(t, time.Second, cfg.AdvertisingInterval)
				assert.Equal(t, 1, cfg.HCIDevice)
				assert.Equal(t, config.RadioLoopback, cfg.Radio)
				assert.True(t, cfg.DemoCentral)
				assert.Equal(t, "fixed", cfg.Sensor)
				assert.Equal(t, "none", cfg.Display)
				assert.Equal(t, 10*time.Millisecond, cfg.TickYield)
				assert.False(t, cfg.Notify, "--notify=false MUST override the default")
				assert.Equal(t, time.Second, cfg.KeyHold)
			},
		},
		{
			name: "script implies the script sensor",
			args: []string{"--script", "imu.lua"},
			verify: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "script", cfg.Sensor)
				assert.Equal(t, "imu.lua", cfg.SensorScript)
			},
		},
		{
			name: "explicit sensor wins over script",
			args: []string{"--script", "imu.lua", "--sensor", "fixed"},
			verify: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "fixed", cfg.Sensor)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCommand(t, tt.args...)
			cfg := config.DefaultConfig()

			require.NoError(t, applyFlags(cmd.Flags(), cfg))
			tt.verify(t, cfg)
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		cfgLevel string
		expected logrus.Level
		wantErr  bool
	}{
		{"config level", "", "warn", logrus.WarnLevel, false},
		{"flag overrides config", "debug", "warn", logrus.DebugLevel, false},
		{"invalid flag", "loud", "info", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []string
			if tt.flag != "" {
				args = []string{"--log-level", tt.flag}
			}
			cmd := newFlagCommand(t, args...)
			var stderr bytes.Buffer
			cmd.SetErr(&stderr)

			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.cfgLevel

			logger, err := configureLogger(cmd, cfg)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())

			logger.Error("to stderr")
			assert.Contains(t, stderr.String(), "to stderr", "logs MUST go to the command's stderr")
		})
	}
}
