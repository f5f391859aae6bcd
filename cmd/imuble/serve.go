package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/imuble/internal/advertising"
	"github.com/srg/imuble/internal/console"
	"github.com/srg/imuble/internal/gatt"
	"github.com/srg/imuble/internal/groutine"
	"github.com/srg/imuble/internal/lua"
	"github.com/srg/imuble/internal/peripheral"
	"github.com/srg/imuble/internal/radio"
	goble "github.com/srg/imuble/internal/radio/go-ble"
	"github.com/srg/imuble/internal/radio/loopback"
	"github.com/srg/imuble/internal/sampler"
	"github.com/srg/imuble/internal/sensor"
	"github.com/srg/imuble/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry peripheral",
	Long: `Advertises the telemetry peripheral and runs the sample loop until
interrupted (Ctrl+C or SIGTERM).

Every tick the sensors are sampled, the GATT characteristics are updated, linked
centrals are notified through the temperature and keys characteristics, and the
display follows the display-control value last written by a central.

With --display pty (the default) the board's screen is emulated on a fresh
pseudo-terminal; attach to the printed path (for example 'screen /dev/pts/5')
and type a, b or c to press buttons A, B or C.

Examples:
  # Serve on hci0 with the synthetic motion model
  sudo imuble serve

  # Dry run without Bluetooth hardware, with an in-process central
  imuble serve --radio loopback --demo-central --display stdout

  # Drive the sensors from a Lua script defining sample(tick)
  imuble serve --script examples/tilt.lua`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// demoLogInterval rate-limits the demo central's snapshot log.
const demoLogInterval = time.Second

func init() {
	f := serveCmd.Flags()
	f.String("name", "mpy-m5stack", "Advertised device name")
	f.Uint16("appearance", advertising.AppearanceMotionSensor, "Advertised GAP appearance")
	f.Duration("interval", advertising.DefaultInterval, "Advertising interval")
	f.Int("hci", 0, "HCI device index (go-ble radio)")
	f.String("radio", config.RadioGoBLE, "Radio backend (go-ble, loopback)")
	f.Bool("demo-central", false, "Attach an in-process central that logs what it reads (loopback radio)")
	f.String("sensor", config.SensorSynthetic, "Sensor source (synthetic, fixed, script)")
	f.String("script", "", "Lua sensor script defining sample(tick); implies --sensor script")
	f.String("display", config.DisplayPTY, "Display (pty, stdout, none)")
	f.Duration("yield", sampler.DefaultYield, "Pause between ticks")
	f.Bool("notify", true, "Notify linked centrals on every tick")
	f.Duration("key-hold", console.DefaultKeyHold, "How long a typed key reads as pressed")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	runErr := srv.Run(ctx)
	if err := srv.Close(); err != nil {
		logger.WithError(err).Warn("Shutdown incomplete")
	}
	return runErr
}

// server is one assembled peripheral: radio, GATT session, sensors, console
// and the sample loop that drives them.
type server struct {
	cfg    *config.Config
	out    io.Writer
	logger *logrus.Logger

	radio      radio.Radio
	loopback   *loopback.Radio
	peripheral *peripheral.Peripheral
	loop       *sampler.Loop

	console *console.Console
	sensor  sampler.SensorSource
	keypad  sampler.Keypad
	drainer *lua.OutputDrainer

	closers []func() error // run in reverse order
}

// newServer builds every component but starts nothing that a central can see.
// On error everything built so far is released.
func newServer(cfg *config.Config, out io.Writer, logger *logrus.Logger) (srv *server, err error) {
	s := &server{cfg: cfg, out: out, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if err := s.openRadio(); err != nil {
		return nil, err
	}
	if err := s.openSensor(); err != nil {
		return nil, err
	}
	if err := s.openConsole(); err != nil {
		return nil, err
	}

	s.peripheral, err = peripheral.New(s.radio, peripheral.Options{
		Name:       cfg.DeviceName,
		Appearance: cfg.Appearance,
		Interval:   cfg.AdvertisingInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	s.loop, err = sampler.New(sampler.Deps{
		Sensor:      s.sensor,
		Keypad:      s.keypad,
		Backlight:   s.console,
		Display:     s.console,
		Session:     s.peripheral.Session(),
		Connections: s.peripheral.Registry(),
		Fatal:       s.peripheral.Fatal(),
	}, sampler.Config{Yield: cfg.TickYield, Notify: cfg.Notify}, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) openRadio() error {
	switch s.cfg.Radio {
	case config.RadioLoopback:
		s.loopback = loopback.New(s.logger)
		s.radio = s.loopback
	default:
		r, err := goble.New(goble.Options{DeviceID: s.cfg.HCIDevice, Interval: s.cfg.AdvertisingInterval}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open radio: %w", err)
		}
		s.radio = r
	}
	s.closers = append(s.closers, s.radio.Close)
	return nil
}

func (s *server) openSensor() error {
	switch s.cfg.Sensor {
	case config.SensorFixed:
		s.sensor = sensor.NewFixed(sensor.Resting)
	case config.SensorScript:
		script, err := sensor.NewScript(s.cfg.SensorScript, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, script.Close)

		stdout := s.logger.WriterLevel(logrus.InfoLevel)
		stderr := s.logger.WriterLevel(logrus.WarnLevel)
		s.drainer = lua.NewOutputDrainer(context.Background(), script.Engine().Output(), s.logger, stdout, stderr)
		s.closers = append(s.closers, func() error {
			s.drainer.Cancel()
			s.drainer.Wait()
			return errors.Join(stdout.Close(), stderr.Close())
		})

		s.sensor = script
		s.keypad = script
	default:
		s.sensor = sensor.NewSynthetic()
	}
	return nil
}

func (s *server) openConsole() error {
	opts := console.Options{KeyHold: s.cfg.KeyHold}

	switch s.cfg.Display {
	case config.DisplayPTY:
		c, p, err := console.OpenPTY(opts, s.logger)
		if err != nil {
			return err
		}
		s.console = c
		fmt.Fprintf(s.out, "Display: %s (type a, b or c to press a button)\n", p.TTYName())
	case config.DisplayStdout:
		s.console = console.New(s.out, opts, s.logger)
	default:
		s.console = console.New(nil, opts, s.logger)
	}
	s.closers = append(s.closers, s.console.Close)

	if s.keypad == nil {
		s.keypad = s.console
	}
	return nil
}

// Run boots the display, starts advertising and ticks until ctx is done or
// the peripheral fails. Cancellation returns nil.
func (s *server) Run(ctx context.Context) error {
	if err := s.loop.Boot(); err != nil {
		return err
	}
	if err := s.peripheral.Start(); err != nil {
		return err
	}

	var demo groutine.Group
	defer demo.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.DemoCentral && s.loopback != nil {
		central, err := loopback.Attach(s.loopback, s.logger, gatt.NotifiedCharacteristics()...)
		if err != nil {
			return fmt.Errorf("failed to attach demo central: %w", err)
		}
		demo.Go(ctx, "demo-central", func(ctx context.Context) {
			s.runDemoCentral(ctx, central)
		})
	}

	return s.loop.Run(ctx)
}

// runDemoCentral logs what a central reads, at most once per
// demoLogInterval, and toggles the display each time button B goes down.
func (s *server) runDemoCentral(ctx context.Context, c *loopback.Central) {
	var (
		last    time.Time
		display = true
		bDown   bool
	)

	err := c.Run(ctx, func(snap loopback.Snapshot) {
		if snap.Keys[1] && !bDown {
			display = !display
			if err := c.SetDisplay(display); err != nil {
				s.logger.WithError(err).Warn("Demo central: display write failed")
			}
		}
		bDown = snap.Keys[1]

		if time.Since(last) < demoLogInterval {
			return
		}
		last = time.Now()
		s.logger.WithFields(logrus.Fields{
			"conn":    snap.Handle,
			"trigger": snap.Trigger,
			"accel":   fmt.Sprintf("%.2f,%.2f,%.2f", snap.Sample.Accel.X, snap.Sample.Accel.Y, snap.Sample.Accel.Z),
			"gyro":    fmt.Sprintf("%.2f,%.2f,%.2f", snap.Sample.Gyro.X, snap.Sample.Gyro.Y, snap.Sample.Gyro.Z),
			"temp":    snap.Sample.Temperature,
			"keys":    snap.Keys,
		}).Info("Demo central read telemetry")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Warn("Demo central stopped")
	}
}

// Close releases everything in reverse order of construction.
func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
