package app

import (
	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/config"
	"github.com/coreman2200/rendersphere/internal/layout"
	"github.com/coreman2200/rendersphere/internal/led"
	"github.com/coreman2200/rendersphere/internal/sensor"
)

// openNRZ opens the nrzled sink; tests swap in a recorded port.
var openNRZ = led.OpenNRZ

// OpenDriver builds the strip driver named by cfg.Driver.Kind. Hardware that
// fails to open falls back to the simulator so the daemon still serves
// clients; the returned name is the driver actually in use.
func OpenDriver(cfg config.Driver, l layout.Layout, log zerolog.Logger) (led.Driver, string, error) {
	var sink led.Sink
	kind := cfg.Kind
	switch kind {
	case "spi":
		s, err := led.NewSPISink(cfg.SPIDev, l.Count(), cfg.ColorOrder, cfg.SpeedHz, cfg.ResetUs)
		if err == nil {
			sink = s
		} else {
			log.Warn().Err(err).
				Str("driver", kind).
				Str("dev", cfg.SPIDev).
				Int("speed_hz", cfg.SpeedHz).
				Msg("SPI init failed; falling back to SIM")
		}
	case "nrzled":
		s, err := openNRZ(cfg.Port, l.Count())
		if err == nil {
			sink = s
		} else {
			log.Warn().Err(err).Str("driver", kind).Str("port", cfg.Port).Msg("nrzled init failed; falling back to SIM")
		}
	case "sim":
	default:
		log.Warn().Str("driver", kind).Msg("unknown driver; using SIM")
	}
	if sink == nil {
		kind = "sim"
		sink = led.NewSimSink(l.Count(), log.With().Str("component", "sim-strips").Logger())
	}
	drv, err := led.NewStrip(sink, l.Strips, l.PixelsPerStrip, log)
	if err != nil {
		_ = sink.Close()
		return nil, "", err
	}
	return drv, kind, nil
}

// OpenSensor opens the hall sensor named by cfg.Kind, falling back to a
// simulated sensor spinning at cfg.SimRPS.
func OpenSensor(cfg config.Sensor, log zerolog.Logger) (sensor.Sensor, string) {
	kind := cfg.Kind
	var (
		s   sensor.Sensor
		err error
	)
	switch kind {
	case "gpio":
		if s, err = sensor.OpenGPIO(cfg.Pin); err != nil {
			log.Warn().Err(err).Str("sensor", kind).Str("pin", cfg.Pin).Msg("GPIO sensor init failed; falling back to SIM")
		}
	case "cdev":
		if s, err = sensor.OpenCdev(cfg.Chip, cfg.Line, cfg.Debounce); err != nil {
			log.Warn().Err(err).Str("sensor", kind).Str("chip", cfg.Chip).Int("line", cfg.Line).Msg("cdev sensor init failed; falling back to SIM")
		}
	case "sim":
	default:
		log.Warn().Str("sensor", kind).Msg("unknown sensor; using SIM")
	}
	if err != nil || s == nil {
		return sensor.NewSim(cfg.SimRPS), "sim"
	}
	return s, kind
}
