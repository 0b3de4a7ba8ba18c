package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"

	"firefighter-core/hardware"
	"firefighter-core/navigation"
	"firefighter-core/telemetry"
	"firefighter-core/utils"
)

type RunnerConfig struct {
	Interface     string
	MapPath       string
	MissionPath   string
	LCDPath       string // empty mirrors the display into the log
	TelemetryPath string // empty disables the flight recorder
}

type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	mission Mission
	writer  utils.CANWriter
	reader  utils.CANReader
	bus     *hardware.Bus
	motors  *hardware.Motors
	sonar   *hardware.Sonar
	pump    *hardware.GPIOPump
	lcd     *hardware.SerialLCD
	store   *telemetry.Store
	ctrl    *navigation.Controller
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	mission, err := LoadMission(cfg.MissionPath)
	if err != nil {
		return nil, fmt.Errorf("load mission: %w", err)
	}

	r := &Runner{cfg: cfg, log: log, mission: mission}
	if err := r.open(ctx, cmap); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// open brings up every device. On error, whatever was already opened is left
// in r for Close.
func (r *Runner) open(ctx context.Context, cmap *utils.CANMap) error {
	cfg, log, mission := r.cfg, r.log, r.mission

	if err := hardware.InitHost(); err != nil {
		return err
	}
	pins := make(map[string]gpio.PinIO, 5)
	for _, name := range []string{
		mission.Pins.Trigger, mission.Pins.Echo, mission.Pins.LineLeft, mission.Pins.LineRight, mission.Pins.Pump,
	} {
		p, err := hardware.OpenPin(name)
		if err != nil {
			return err
		}
		pins[name] = p
	}

	echo, err := hardware.NewGPIOEcho(pins[mission.Pins.Trigger], pins[mission.Pins.Echo], mission.EchoTimeout())
	if err != nil {
		return fmt.Errorf("ranger: %w", err)
	}
	r.sonar = hardware.NewSonar(mission.Sonar, echo)

	lines, err := hardware.NewGPIOLineSensors(pins[mission.Pins.LineLeft], pins[mission.Pins.LineRight])
	if err != nil {
		return fmt.Errorf("line sensors: %w", err)
	}
	if r.pump, err = hardware.NewGPIOPump(pins[mission.Pins.Pump]); err != nil {
		return fmt.Errorf("pump: %w", err)
	}

	w, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return err
	}
	r.writer = w
	rd, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		return err
	}
	r.reader = rd
	r.bus, err = hardware.NewBus(cmap, r.writer, mission.Frames, mission.FlameMaxAge(), log.Named("bus"))
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	var display navigation.Display = hardware.LogDisplay{Log: log.Named("display")}
	if cfg.LCDPath != "" {
		if r.lcd, err = hardware.OpenSerialLCD(cfg.LCDPath, log.Named("lcd")); err != nil {
			return err
		}
		display = r.lcd
	}

	var rec navigation.Recorder
	if cfg.TelemetryPath != "" {
		if r.store, err = telemetry.Open(cfg.TelemetryPath, log.Named("telemetry")); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		rec = r.store
	}

	r.motors = hardware.NewMotors(mission.Motors, r.bus)
	dev := navigation.Devices{
		Range:   r.sonar,
		Lines:   lines,
		Flame:   r.bus,
		Head:    r.bus,
		Motors:  r.motors,
		Pump:    r.pump,
		Display: display,
	}
	if r.ctrl, err = navigation.NewController(mission.Navigation, dev, nil, rec, log); err != nil {
		return err
	}
	return nil
}

func (r *Runner) Close() {
	if r == nil {
		return
	}
	if r.pump != nil {
		if err := r.pump.Set(false); err != nil {
			r.log.Error("pump off: %v", err)
		}
	}
	if r.lcd != nil {
		_ = r.lcd.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// Run starts the CAN receive loop and drives the mission to its end. A
// failing receive loop cancels the mission.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.log.Info("Starting mission %q v%d: iface=%s wall=%s",
		r.mission.Meta.Name, r.mission.Meta.Version, r.cfg.Interface, r.mission.Navigation.WallSide)

	rxDone := make(chan error, 1)
	go func() {
		err := r.bus.Listen(ctx, r.reader)
		if err != nil && ctx.Err() == nil {
			r.log.Critical("CAN receive failed: %v", err)
			cancel()
		}
		rxDone <- err
	}()

	if r.store != nil {
		if _, err := r.store.StartRun(r.mission.Meta.Name, r.mission.Navigation.WallSide, time.Now()); err != nil {
			r.log.Error("%v", err)
		}
	}

	report, runErr := r.ctrl.Run(ctx)
	cancel()
	rxErr := <-rxDone

	if r.store != nil && r.store.RunID() != "" {
		if err := r.store.FinishRun(report, runErr, time.Now()); err != nil {
			r.log.Error("%v", err)
		}
		if n := r.store.Dropped(); n > 0 {
			r.log.Warn("telemetry dropped %d records", n)
		}
	}
	if n := r.sonar.Dropped(); n > 0 {
		r.log.Debug("last sonar measurement dropped %d pulses without echo", n)
	}

	r.log.Info("Mission finished: room=%d outcome=%s flame_side=%s cycles=%d last_drive=%s",
		report.Room, report.Outcome, report.FlameSide, report.Cycles, r.motors.Last())

	if runErr != nil && errors.Is(runErr, context.Canceled) && rxErr != nil && !errors.Is(rxErr, context.Canceled) {
		return rxErr
	}
	return runErr
}
