package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srg/imuble/pkg/config"
)

// loadConfig reads --config (or the defaults) and applies every flag the
// user set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies changed flags into cfg; flags a command does not define
// leave cfg alone. --script alone selects the script sensor.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || !f.Changed {
			return
		}
		switch f.Name {
		case "name":
			cfg.DeviceName = f.Value.String()
		case "appearance":
			cfg.Appearance, err = flags.GetUint16(f.Name)
		case "interval":
			cfg.AdvertisingInterval, err = flags.GetDuration(f.Name)
		case "hci":
			cfg.HCIDevice, err = flags.GetInt(f.Name)
		case "radio":
			cfg.Radio = f.Value.String()
		case "demo-central":
			cfg.DemoCentral, err = flags.GetBool(f.Name)
		case "sensor":
			cfg.Sensor = f.Value.String()
		case "script":
			cfg.SensorScript = f.Value.String()
			if !flags.Changed("sensor") {
				cfg.Sensor = config.SensorScript
			}
		case "display":
			cfg.Display = f.Value.String()
		case "yield":
			cfg.TickYield, err = flags.GetDuration(f.Name)
		case "notify":
			cfg.Notify, err = flags.GetBool(f.Name)
		case "key-hold":
			cfg.KeyHold, err = flags.GetDuration(f.Name)
		}
	})
	return err
}
