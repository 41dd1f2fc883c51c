// Package render draws the published panel onto the strips one angular slice
// at a time, paced by the rotation timer.
package render

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/layout"
	"github.com/coreman2200/rendersphere/internal/led"
	"github.com/coreman2200/rendersphere/internal/panel"
)

// PanelSource hands the renderer the panel to draw for one rotation.
type PanelSource interface {
	AcquireDraw() *panel.Panel
}

// Pacer is the renderer's view of the rotation timer.
type Pacer interface {
	Interval() time.Duration
	NewFrame() bool
	ClearNewFrame()
	Notify() <-chan struct{}
}

// Hooks observe the render loop. They run on the renderer goroutine and must
// not block.
type Hooks struct {
	OnRotation func(panelIndex int)
	OnSlice    func(slice int, interval time.Duration)
}

type Config struct {
	Layout  layout.Layout
	Format  panel.Format
	Limiter Limiter
	Hooks   Hooks
}

// Stats is a snapshot of the render loop counters.
type Stats struct {
	Rotations uint64        `json:"rotations"`
	Aborted   uint64        `json:"aborted"`
	Slices    uint64        `json:"slices"`
	LastSlice time.Duration `json:"last_slice_ns"`
}

type Renderer struct {
	cfg    Config
	drv    led.Driver
	panels PanelSource
	pacing Pacer
	params *Params
	log    zerolog.Logger
	now    func() time.Time

	slot  int
	curve curve

	rotations atomic.Uint64
	aborted   atomic.Uint64
	slices    atomic.Uint64
	lastSlice atomic.Int64
}

func New(cfg Config, drv led.Driver, panels PanelSource, pacing Pacer, params *Params, log zerolog.Logger) (*Renderer, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if drv == nil || panels == nil || pacing == nil || params == nil {
		return nil, fmt.Errorf("render: driver, panels, pacing and params are required")
	}
	if drv.Strips() != cfg.Layout.Strips || drv.Pixels() != cfg.Layout.PixelsPerStrip {
		return nil, fmt.Errorf("render: driver is %dx%d, layout needs %dx%d",
			drv.Strips(), drv.Pixels(), cfg.Layout.Strips, cfg.Layout.PixelsPerStrip)
	}
	return &Renderer{
		cfg:    cfg,
		drv:    drv,
		panels: panels,
		pacing: pacing,
		params: params,
		log:    log,
		now:    time.Now,
	}, nil
}

func (r *Renderer) Stats() Stats {
	return Stats{
		Rotations: r.rotations.Load(),
		Aborted:   r.aborted.Load(),
		Slices:    r.slices.Load(),
		LastSlice: time.Duration(r.lastSlice.Load()),
	}
}

// Run renders rotations until ctx is done, then blanks the strips. A failed
// submission ends the loop with an error; the strips are left as they are
// since their state is unknown.
func (r *Renderer) Run(ctx context.Context) error {
	r.log.Info().Int("slices", r.cfg.Layout.Slices()).Int("strips", r.cfg.Layout.Strips).Msg("renderer started")
	for ctx.Err() == nil {
		if err := r.rotation(ctx); err != nil {
			r.log.Error().Err(err).Msg("strip submission failed")
			return err
		}
	}
	if err := r.Blank(); err != nil {
		return err
	}
	r.log.Info().Uint64("rotations", r.rotations.Load()).Msg("renderer stopped, strips blanked")
	return nil
}

func (r *Renderer) rotation(ctx context.Context) error {
	r.pacing.ClearNewFrame()
	pn := r.panels.AcquireDraw()
	if r.cfg.Hooks.OnRotation != nil {
		r.cfg.Hooks.OnRotation(pn.Index())
	}

	start := r.now()
	for slice := 0; slice < r.cfg.Layout.Slices(); slice++ {
		if ctx.Err() != nil {
			return nil
		}
		if r.pacing.NewFrame() {
			r.aborted.Add(1)
			return nil
		}
		interval := r.pacing.Interval()
		deadline := start.Add(time.Duration(slice+1) * interval)

		if err := r.drawSlice(pn, slice); err != nil {
			return err
		}
		if r.cfg.Hooks.OnSlice != nil {
			r.cfg.Hooks.OnSlice(slice, interval)
		}
		r.sleepUntil(ctx, deadline)
	}
	r.rotations.Add(1)
	return nil
}

func (r *Renderer) drawSlice(pn *panel.Panel, slice int) error {
	began := r.now()
	slot := r.nextSlot()
	f, err := r.drv.Frame(slot)
	if err != nil {
		return err
	}

	p := r.params.Snapshot()
	lut := r.curve.update(p.Contrast, p.Brightness)
	l := r.cfg.Layout
	for strip := 0; strip < l.Strips; strip++ {
		for pixel := 0; pixel < l.PixelsPerStrip; pixel++ {
			src := l.Map(strip, pixel, slice, p.XOffset)
			cr, cg, cb := pn.RGB(src.Y, src.X, r.cfg.Format)
			f.SetPixel(src.Strip, pixel, lut[cr], lut[cg], lut[cb])
		}
	}
	if r.cfg.Limiter.Enabled() {
		r.cfg.Limiter.Apply(f.Bytes())
	}

	if err := r.submit(slot); err != nil {
		return err
	}
	r.slices.Add(1)
	r.lastSlice.Store(int64(r.now().Sub(began)))
	return nil
}

// submit waits for the previous frame to flush, then starts flushing slot.
func (r *Renderer) submit(slot int) error {
	if err := r.drv.Wait(); err != nil {
		return fmt.Errorf("render: wait for previous frame: %w", err)
	}
	if err := r.drv.Draw(slot); err != nil {
		return fmt.Errorf("render: draw slot %d: %w", slot, err)
	}
	return nil
}

func (r *Renderer) nextSlot() int {
	s := r.slot
	r.slot = (r.slot + 1) % led.Slots
	return s
}

// sleepUntil blocks until deadline, a new rotation or cancellation.
func (r *Renderer) sleepUntil(ctx context.Context, deadline time.Time) {
	d := deadline.Sub(r.now())
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.pacing.Notify():
	case <-ctx.Done():
	}
}

// Blank writes an all-black frame and waits for it to reach the strips.
func (r *Renderer) Blank() error {
	slot := r.nextSlot()
	f, err := r.drv.Frame(slot)
	if err != nil {
		return err
	}
	f.Clear()
	if err := r.submit(slot); err != nil {
		return err
	}
	if err := r.drv.Wait(); err != nil {
		return fmt.Errorf("render: flush blank frame: %w", err)
	}
	return nil
}
