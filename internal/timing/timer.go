package timing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
)

const (
	DefaultMaxInterval = 100 * time.Millisecond
	DefaultPollTimeout = 250 * time.Millisecond
	DefaultDebounce    = time.Millisecond
	DefaultStaleAfter  = 3 * time.Second
)

// EdgeSource reports rising edges of the once-per-revolution sensor.
// WaitForEdge returns false without error when timeout elapses first.
type EdgeSource interface {
	WaitForEdge(timeout time.Duration) (bool, error)
}

type Config struct {
	Slices      int
	MaxInterval time.Duration
	PollTimeout time.Duration
	Debounce    time.Duration
	StaleAfter  time.Duration
}

func (c *Config) normalize() {
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
}

// Timer converts sensor pulses into slice pacing. Its state is owned by the
// goroutine running Run; Pulse must not be called concurrently with Run.
type Timer struct {
	cfg    Config
	src    EdgeSource
	pacing *Pacing
	log    zerolog.Logger
	diag   diagnostics.Sink
	now    func() time.Time

	started   time.Time
	lastPulse time.Time
	stale     bool
}

func NewTimer(cfg Config, src EdgeSource, pacing *Pacing, log zerolog.Logger, diag diagnostics.Sink) (*Timer, error) {
	if cfg.Slices <= 0 {
		return nil, fmt.Errorf("timing: invalid slice count %d", cfg.Slices)
	}
	if src == nil || pacing == nil {
		return nil, errors.New("timing: sensor and pacing are required")
	}
	cfg.normalize()
	return &Timer{
		cfg:    cfg,
		src:    src,
		pacing: pacing,
		log:    log,
		diag:   diag,
		now:    time.Now,
	}, nil
}

// Run polls the sensor until ctx is done. A sensor error ends the loop and is
// returned; a poll timeout only feeds stale detection.
func (t *Timer) Run(ctx context.Context) error {
	t.started = t.now()
	t.log.Info().Int("slices", t.cfg.Slices).Dur("max_interval", t.cfg.MaxInterval).Msg("rotation timer armed")
	for ctx.Err() == nil {
		edge, err := t.src.WaitForEdge(t.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Error().Err(err).Msg("hall sensor read failed")
			t.diag.Emit(diagnostics.Failure(diagnostics.SensorFailed, "hall sensor read failed", err))
			return fmt.Errorf("timing: wait for edge: %w", err)
		}
		now := t.now()
		if edge {
			t.Pulse(now)
			continue
		}
		t.checkStale(now)
	}
	return nil
}

// Pulse records a rising edge observed at now. It reports whether the pulse
// was accepted; pulses inside the debounce window are dropped.
func (t *Timer) Pulse(now time.Time) bool {
	n := time.Duration(t.cfg.Slices)
	interval := t.cfg.MaxInterval
	if !t.lastPulse.IsZero() {
		period := now.Sub(t.lastPulse)
		if period <= 0 || period < t.cfg.Debounce {
			return false
		}
		interval = min(period/n, t.cfg.MaxInterval)
		if interval <= 0 {
			interval = 1
		}
	}
	rps := RotationRate(interval, t.cfg.Slices)

	t.pacing.Set(interval, rps)
	t.pacing.RaiseNewFrame()
	t.lastPulse = now

	t.log.Debug().Dur("slice_interval", interval).Float64("rps", rps).Msg("pulse")
	if t.stale {
		t.stale = false
		t.log.Info().Float64("rps", rps).Msg("rotation pulses resumed")
		t.diag.Emit(diagnostics.Recovered(rps))
	}
	return true
}

func (t *Timer) checkStale(now time.Time) {
	if t.stale {
		return
	}
	ref := t.lastPulse
	if ref.IsZero() {
		ref = t.started
	}
	silent := now.Sub(ref)
	if silent < t.cfg.StaleAfter {
		return
	}
	t.stale = true
	t.log.Warn().Dur("silent", silent).Msg("no rotation pulse")
	t.diag.Emit(diagnostics.Stale(silent))
}
