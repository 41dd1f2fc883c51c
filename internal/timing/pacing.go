// Package timing turns hall sensor pulses into the per-slice pacing used by
// the renderer.
package timing

import (
	"math"
	"sync/atomic"
	"time"
)

// Pacing holds the scalars shared between the timer and the renderer. Every
// field is individually atomic; readers never block the timer.
type Pacing struct {
	interval atomic.Int64  // nanoseconds per slice
	rpsBits  atomic.Uint64 // math.Float64bits(rps)
	newFrame atomic.Bool
	pulses   atomic.Uint64

	// notify wakes a renderer sleeping between slices when a pulse arrives.
	notify chan struct{}
}

// NewPacing starts with the given slice interval, which is what the renderer
// uses until the first pulse. The initial rate is derived from it.
func NewPacing(initial time.Duration, slices int) *Pacing {
	p := &Pacing{notify: make(chan struct{}, 1)}
	p.Set(initial, RotationRate(initial, slices))
	return p
}

// RotationRate converts a slice interval into revolutions per second.
func RotationRate(interval time.Duration, slices int) float64 {
	if interval <= 0 || slices <= 0 {
		return 0
	}
	return float64(time.Second) / float64(interval*time.Duration(slices))
}

func (p *Pacing) Interval() time.Duration { return time.Duration(p.interval.Load()) }

// RPS is the most recently measured rotation rate.
func (p *Pacing) RPS() float64 { return math.Float64frombits(p.rpsBits.Load()) }

// Pulses is the number of accepted sensor pulses.
func (p *Pacing) Pulses() uint64 { return p.pulses.Load() }

// Set publishes a new slice interval and rotation rate.
func (p *Pacing) Set(interval time.Duration, rps float64) {
	p.interval.Store(int64(interval))
	p.rpsBits.Store(math.Float64bits(rps))
}

// RaiseNewFrame marks the start of a rotation and wakes the renderer.
func (p *Pacing) RaiseNewFrame() {
	p.pulses.Add(1)
	p.newFrame.Store(true)
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pacing) NewFrame() bool { return p.newFrame.Load() }

// ClearNewFrame acknowledges the flag at the start of a rotation.
func (p *Pacing) ClearNewFrame() {
	p.newFrame.Store(false)
	select {
	case <-p.notify:
	default:
	}
}

// Notify returns a channel that receives after RaiseNewFrame.
func (p *Pacing) Notify() <-chan struct{} { return p.notify }
