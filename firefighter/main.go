package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"firefighter-core/utils"
)

func main() {
	var (
		iface       = flag.String("iface", "can0", "SocketCAN interface name")
		mapPath     = flag.String("map", "config/can/can_map.csv", "Path to can_map.csv")
		missionPath = flag.String("mission", "config/mission.json", "Mission JSON file")
		logLevel    = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		lcdPath     = flag.String("lcd", "", "Serial port of the status LCD (empty logs the display instead)")
		telemetry   = flag.String("telemetry", "", "SQLite telemetry file (empty disables it)")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("firefighter.log", utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open firefighter.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:     *iface,
		MapPath:       *mapPath,
		MissionPath:   *missionPath,
		LCDPath:       *lcdPath,
		TelemetryPath: *telemetry,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		log.Close()
		os.Exit(1)
	}

	err = runner.Run(ctx)
	runner.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		log.Close()
		os.Exit(1)
	}
}
