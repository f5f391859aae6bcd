package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imuble",
	Short: "BLE IMU telemetry peripheral",
	Long: `Runs an M5Stack-style motion sensor as a Bluetooth Low Energy peripheral:

- Advertise as a motion sensor and accept centrals
- Publish accelerometer, magnetometer, gyroscope, temperature and button state
  as fixed-point GATT characteristics
- Notify linked centrals on every tick so they re-read the telemetry group
- Honour the display-control characteristic written by a central
- Emulate the board's screen and buttons on a PTY
- Drive the sensors from a synthetic model, a fixed reading or a Lua script

Use 'layout' and 'decode' to inspect the GATT table and characteristic values
during bring-up.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(probeCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.SetVersionTemplate(fmt.Sprintf("imuble {{.Version}} (commit %s, built %s)\n", commit, date))
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
