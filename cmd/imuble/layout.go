package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/go-ble/ble"
	"github.com/spf13/cobra"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/gatt"
	"github.com/srg/imuble/pkg/config"
)

// layoutCmd represents the layout command
var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the advertising payload and GATT table",
	Long: `Prints the advertising payload the peripheral would send and every service
and characteristic it hosts: UUID, access mode and wire layout. No radio is
opened.

Examples:
  # Human readable table
  imuble layout

  # Machine readable, with the device name from a config file
  imuble layout --json --config imuble.yaml`,
	Args: cobra.NoArgs,
	RunE: runLayout,
}

var layoutJSON bool

func init() {
	layoutCmd.Flags().BoolVar(&layoutJSON, "json", false, "Output as JSON")
	layoutCmd.Flags().String("name", "mpy-m5stack", "Advertised device name")
	layoutCmd.Flags().Uint16("appearance", advertising.AppearanceMotionSensor, "Advertised GAP appearance")
}

// LayoutReport is the JSON shape of the layout command.
type LayoutReport struct {
	Advertising AdvertisingReport `json:"advertising"`
	Services    []ServiceReport   `json:"services"`
}

// AdvertisingReport describes the advertising payload.
type AdvertisingReport struct {
	Name       string   `json:"name"`
	Appearance uint16   `json:"appearance"`
	Services   []string `json:"services"`
	Length     int      `json:"length"`
	MaxLength  int      `json:"max_length"`
	Payload    string   `json:"payload"`
}

// ServiceReport describes one primary service.
type ServiceReport struct {
	Name            string                 `json:"name"`
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicReport `json:"characteristics"`
}

// CharacteristicReport describes one characteristic.
type CharacteristicReport struct {
	Name   string `json:"name"`
	UUID   string `json:"uuid"`
	Access string `json:"access"`
	Layout string `json:"layout"`
}

func runLayout(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	report, err := buildLayoutReport(cfg)
	if err != nil {
		return err
	}
	if layoutJSON {
		return writeLayoutJSON(cmd.OutOrStdout(), report)
	}
	writeLayoutText(cmd.OutOrStdout(), report)
	return nil
}

func buildLayoutReport(cfg *config.Config) (*LayoutReport, error) {
	uuids := gatt.AdvertisedUUIDs()
	payload, err := advertising.BuildPayload(cfg.DeviceName, uuids, cfg.Appearance)
	if err != nil {
		return nil, err
	}
	appearance, _ := advertising.Appearance(payload)

	report := &LayoutReport{
		Advertising: AdvertisingReport{
			Name:       payload.LocalName(),
			Appearance: appearance,
			Length:     payload.Len(),
			MaxLength:  advertising.MaxPayloadLen,
			Payload:    hex.EncodeToString(payload.Bytes()),
		},
	}
	for _, u := range uuids {
		report.Advertising.Services = append(report.Advertising.Services, formatUUID(u))
	}

	for _, svc := range gatt.Services() {
		sr := ServiceReport{Name: svc.Name, UUID: formatUUID(svc.UUID)}
		for _, c := range svc.Characteristics {
			sr.Characteristics = append(sr.Characteristics, CharacteristicReport{
				Name:   string(c.ID),
				UUID:   formatUUID(c.UUID),
				Access: c.Access.String(),
				Layout: c.Layout,
			})
		}
		report.Services = append(report.Services, sr)
	}
	return report, nil
}

func writeLayoutJSON(w io.Writer, report *LayoutReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeLayoutText(w io.Writer, report *LayoutReport) {
	heading := color.New(color.FgCyan, color.Bold)
	name := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	adv := report.Advertising
	heading.Fprintln(w, "Advertising")
	fmt.Fprintf(w, "  %-12s %s\n", "name", adv.Name)
	fmt.Fprintf(w, "  %-12s %d\n", "appearance", adv.Appearance)
	fmt.Fprintf(w, "  %-12s %s\n", "services", strings.Join(adv.Services, ", "))
	fmt.Fprintf(w, "  %-12s %d/%d bytes ", "payload", adv.Length, adv.MaxLength)
	dim.Fprintln(w, adv.Payload)

	for _, svc := range report.Services {
		fmt.Fprintln(w)
		heading.Fprintf(w, "%s", svc.Name)
		fmt.Fprintf(w, " %s\n", svc.UUID)
		for _, c := range svc.Characteristics {
			fmt.Fprint(w, "  ")
			name.Fprintf(w, "%-12s", c.Name)
			fmt.Fprintf(w, " %s  %-11s %s\n", c.UUID, c.Access, c.Layout)
		}
	}
}

// formatUUID prints 128-bit UUIDs in the dashed 8-4-4-4-12 form and 16-bit
// ones as four hex digits.
func formatUUID(u ble.UUID) string {
	s := u.String()
	if len(s) != 32 {
		return s
	}
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}
