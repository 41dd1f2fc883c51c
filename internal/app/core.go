// Package app wires the display together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/config"
	"github.com/coreman2200/rendersphere/internal/diagnostics"
	"github.com/coreman2200/rendersphere/internal/layout"
	"github.com/coreman2200/rendersphere/internal/led"
	"github.com/coreman2200/rendersphere/internal/monitor"
	"github.com/coreman2200/rendersphere/internal/panel"
	"github.com/coreman2200/rendersphere/internal/pattern"
	"github.com/coreman2200/rendersphere/internal/render"
	"github.com/coreman2200/rendersphere/internal/sensor"
	"github.com/coreman2200/rendersphere/internal/server"
	"github.com/coreman2200/rendersphere/internal/timing"
)

// Deps are the hardware handles. Core takes ownership and closes them when
// Run returns.
type Deps struct {
	Driver     led.Driver
	DriverName string
	Sensor     sensor.Sensor
	SensorName string
}

type Core struct {
	Layout   layout.Layout
	Format   panel.Format
	Pool     *panel.Pool
	Pacing   *timing.Pacing
	Params   *render.Params
	Timer    *timing.Timer
	Renderer *render.Renderer
	Server   *server.Server
	Monitor  *monitor.Monitor // nil when monitor_listen is empty

	cfg   *config.Config
	deps  Deps
	log   zerolog.Logger
	cron  *cron.Cron
	stale atomic.Bool
}

// rates answers the gateway's stats query.
type rates struct {
	pacing *timing.Pacing
	pool   *panel.Pool
}

func (r rates) RPS() float64 { return r.pacing.RPS() }
func (r rates) FPS() float64 { return r.pool.FPS() }

func New(cfg *config.Config, deps Deps, log zerolog.Logger) (*Core, error) {
	if deps.Driver == nil || deps.Sensor == nil {
		return nil, errors.New("app: driver and sensor are required")
	}
	l, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	format, err := cfg.Format()
	if err != nil {
		return nil, err
	}

	c := &Core{
		Layout: l,
		Format: format,
		Pool:   panel.NewPool(l.Slices(), l.Height()),
		Pacing: timing.NewPacing(cfg.Timing.MaxSliceInterval, l.Slices()),
		Params: render.NewParams(cfg.Params()),
		cfg:    cfg,
		deps:   deps,
		log:    log,
	}
	diag := diagnostics.Sink(c.emit)

	c.Timer, err = timing.NewTimer(cfg.TimerConfig(l.Slices()), deps.Sensor, c.Pacing,
		log.With().Str("component", "timer").Logger(), diag)
	if err != nil {
		return nil, err
	}

	c.Renderer, err = render.New(render.Config{Layout: l, Format: format, Limiter: cfg.Limiter()},
		deps.Driver, c.Pool, c.Pacing, c.Params, log.With().Str("component", "renderer").Logger())
	if err != nil {
		return nil, err
	}

	c.Server = server.New(server.Config{Addr: cfg.Listen, ReadTimeout: cfg.ReadTimeout},
		c.Pool, c.Params, rates{c.Pacing, c.Pool}, log.With().Str("component", "gateway").Logger(), diag)

	if cfg.MonitorListen != "" {
		c.Monitor = monitor.New(monitor.Options{
			Addr:        cfg.MonitorListen,
			Health:      c.Health,
			Controls:    c.Params,
			ShowPattern: c.ShowPattern,
		}, log.With().Str("component", "monitor").Logger())
	}

	c.cron = cron.New(cron.WithLogger(cronLogger{log.With().Str("component", "cron").Logger()}))
	if _, err := c.cron.AddFunc(cfg.StatsSchedule, c.logStats); err != nil {
		return nil, fmt.Errorf("app: stats schedule %q: %w", cfg.StatsSchedule, err)
	}
	return c, nil
}

// emit logs every diagnostic, tracks sensor health and forwards to the
// monitor feed.
func (c *Core) emit(d diagnostics.Diagnostic) {
	switch d.Code {
	case diagnostics.SensorStale:
		c.stale.Store(true)
	case diagnostics.SensorOK:
		c.stale.Store(false)
	}
	c.log.Debug().Str("code", d.Code).Str("severity", string(d.Severity)).Msg(d.Summary)
	if c.Monitor != nil {
		c.Monitor.Push(d)
	}
}

func (c *Core) Health() monitor.Health {
	status := "ok"
	if c.stale.Load() {
		status = "stale"
	}
	return monitor.Health{
		Status:          status,
		RPS:             c.Pacing.RPS(),
		FPS:             c.Pool.FPS(),
		SliceIntervalUS: float64(c.Pacing.Interval()) / float64(time.Microsecond),
		Pulses:          c.Pacing.Pulses(),
		Render:          c.Renderer.Stats(),
		Gateway:         c.Server.Counters(),
		Params:          c.Params.Snapshot(),
		Driver:          c.deps.DriverName,
		Sensor:          c.deps.SensorName,
	}
}

// ShowPattern publishes a built-in pattern through the pool as if a client
// had uploaded it.
func (c *Core) ShowPattern(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fill, err := c.Pool.BeginFill(ctx, c.Pool.Capacity())
	if err != nil {
		return err
	}
	if err := pattern.Paint(pattern.Kind(name), fill.Panel(), c.Format, c.Layout.Quadrants); err != nil {
		fill.Abort()
		return err
	}
	fill.Commit()
	c.log.Info().Str("pattern", name).Int("panel", fill.Panel().Index()).Msg("pattern published")
	return nil
}

func (c *Core) logStats() {
	st := c.Renderer.Stats()
	gw := c.Server.Counters()
	c.log.Info().
		Float64("rps", c.Pacing.RPS()).
		Float64("fps", c.Pool.FPS()).
		Uint64("rotations", st.Rotations).
		Uint64("aborted", st.Aborted).
		Uint64("panels", gw.Panels).
		Uint64("rejected", gw.Rejected).
		Int64("clients", gw.Active).
		Msg("stats")
}

// Run starts every component and blocks until ctx is done or one of them
// fails. The first failure cancels the rest and is returned. Hardware is
// closed once every goroutine has returned.
func (c *Core) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if p := c.cfg.StartupPattern; p != "" && p != string(pattern.None) {
		if err := c.ShowPattern(p); err != nil {
			c.log.Warn().Err(err).Str("pattern", p).Msg("startup pattern skipped")
		}
	}

	var (
		wg    sync.WaitGroup
		once  sync.Once
		fatal error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				c.log.Error().Err(err).Str("component", name).Msg("component failed")
				once.Do(func() { fatal = fmt.Errorf("%s: %w", name, err) })
				cancel()
			}
		}()
	}

	run("timer", c.Timer.Run)
	run("renderer", func(ctx context.Context) error {
		err := c.Renderer.Run(ctx)
		if err != nil {
			c.emit(diagnostics.Failure(diagnostics.RenderFailed, "strip submission failed", err))
		}
		return err
	})
	run("gateway", c.Server.ListenAndServe)
	if c.Monitor != nil {
		run("monitor", c.Monitor.ListenAndServe)
	}
	c.cron.Start()
	c.log.Info().
		Str("driver", c.deps.DriverName).
		Str("sensor", c.deps.SensorName).
		Int("slices", c.Layout.Slices()).
		Msg("display running")

	<-ctx.Done()
	<-c.cron.Stop().Done()
	wg.Wait()

	if err := c.deps.Driver.Close(); err != nil {
		c.log.Warn().Err(err).Msg("strip driver close")
	}
	if err := c.deps.Sensor.Close(); err != nil {
		c.log.Warn().Err(err).Msg("sensor close")
	}
	c.log.Info().Msg("display stopped")
	return fatal
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
