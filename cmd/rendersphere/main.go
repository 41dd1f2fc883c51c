package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rendersphere/internal/app"
	"github.com/coreman2200/rendersphere/internal/config"
)

// overrides are the flags that replace config.yaml values when set.
type overrides struct {
	listen, monitor, driver, sensor, pattern, level string
	sim                                             bool
}

func (o overrides) apply(cfg *config.Config) {
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	if o.monitor != "" {
		cfg.MonitorListen = o.monitor
	}
	if o.driver != "" {
		cfg.Driver.Kind = o.driver
	}
	if o.sensor != "" {
		cfg.Sensor.Kind = o.sensor
	}
	if o.pattern != "" {
		cfg.StartupPattern = o.pattern
	}
	if o.level != "" {
		cfg.LogLevel = o.level
	}
	if o.sim {
		cfg.Driver.Kind = "sim"
		cfg.Sensor.Kind = "sim"
	}
	cfg.Normalize()
}

func main() {
	// ---- Flags (explicit flags win over config.yaml) ----
	var (
		o          overrides
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		initConfig = flag.Bool("init-config", false, "write the effective config to -config and exit")
	)
	flag.StringVar(&o.listen, "listen", "", "panel gateway address (default :9999)")
	flag.StringVar(&o.monitor, "monitor", "", "monitor HTTP address (default :8080)")
	flag.StringVar(&o.driver, "driver", "", "strip driver: sim | spi | nrzled")
	flag.StringVar(&o.sensor, "sensor", "", "hall sensor: sim | gpio | cdev")
	flag.StringVar(&o.pattern, "pattern", "", "startup pattern: none | quadrants | hue | rgb | gradient | white")
	flag.StringVar(&o.level, "log-level", "", "debug | info | warn | error")
	flag.BoolVar(&o.sim, "sim", false, "force simulated sensor and strips")
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", *configPath).Msg("no config file; using defaults")
	case err != nil:
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}
	o.apply(cfg)

	if *initConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config save failed")
		}
		log.Info().Str("path", *configPath).Msg("config written")
		return
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level; using info")
	}

	// ---- Hardware ----
	l, err := cfg.Layout()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid geometry")
	}
	drv, driverName, err := app.OpenDriver(cfg.Driver, l, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("strip driver")
	}
	hall, sensorName := app.OpenSensor(cfg.Sensor, log.Logger)

	core, err := app.New(cfg, app.Deps{
		Driver:     drv,
		DriverName: driverName,
		Sensor:     hall,
		SensorName: sensorName,
	}, log.Logger)
	if err != nil {
		_ = drv.Close()
		_ = hall.Close()
		log.Fatal().Err(err).Msg("startup failed")
	}

	// ---- Run until SIGINT/SIGTERM ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := core.Run(ctx); err != nil {
		log.Error().Err(err).Msg("display stopped with error")
		stop()
		os.Exit(1)
	}
}
