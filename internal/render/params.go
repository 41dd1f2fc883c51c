package render

import (
	"math"
	"sync/atomic"
)

// Params are the live colour and calibration controls. Each value is read
// independently; a reader may see a mix of old and new values for one slice.
type Params struct {
	xOffset    atomic.Uint32
	brightness atomic.Uint32 // math.Float32bits
	contrast   atomic.Uint32
}

// Snapshot is a copy of Params taken once per slice.
type Snapshot struct {
	XOffset    uint32  `json:"x_offset"`
	Brightness float32 `json:"brightness"`
	Contrast   float32 `json:"contrast"`
}

func NewParams(s Snapshot) *Params {
	p := &Params{}
	p.Apply(s)
	return p
}

func (p *Params) Apply(s Snapshot) {
	p.SetXOffset(s.XOffset)
	p.SetBrightness(s.Brightness)
	p.SetContrast(s.Contrast)
}

func (p *Params) SetXOffset(v uint32)     { p.xOffset.Store(v) }
func (p *Params) SetBrightness(v float32) { p.brightness.Store(math.Float32bits(v)) }
func (p *Params) SetContrast(v float32)   { p.contrast.Store(math.Float32bits(v)) }

func (p *Params) Snapshot() Snapshot {
	return Snapshot{
		XOffset:    p.xOffset.Load(),
		Brightness: math.Float32frombits(p.brightness.Load()),
		Contrast:   math.Float32frombits(p.contrast.Load()),
	}
}
