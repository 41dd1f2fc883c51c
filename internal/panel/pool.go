package panel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Slots is the number of panels in the pool.
const Slots = 3

// Indices is a snapshot of the hand-off state.
type Indices struct {
	Draw   int
	ToDraw int
	Fill   int
}

// Pool is the triple-buffered panel ring. The renderer reads the draw panel
// for a whole rotation while ingestion fills a third panel; a completed fill
// becomes the next panel to draw.
type Pool struct {
	mu     sync.Mutex
	panels [Slots]*Panel
	idx    Indices

	// fillSlot admits one ingestion at a time so only one panel is writable.
	fillSlot chan struct{}

	published   uint64
	lastPublish time.Time
	prevPublish time.Time
	now         func() time.Time
}

func NewPool(width, height int) *Pool {
	p := &Pool{
		fillSlot: make(chan struct{}, 1),
		now:      time.Now,
	}
	for i := range p.panels {
		p.panels[i] = New(i, width, height)
	}
	p.idx.Fill = p.freeIndex()
	return p
}

// Capacity is the size in bytes of every panel.
func (p *Pool) Capacity() int { return p.panels[0].Len() }

func (p *Pool) Width() int  { return p.panels[0].Width() }
func (p *Pool) Height() int { return p.panels[0].Height() }

func (p *Pool) Indices() Indices {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

// freeIndex returns the lowest index naming neither the draw nor the to-draw
// panel. Callers hold mu.
func (p *Pool) freeIndex() int {
	for i := 0; i < Slots; i++ {
		if i != p.idx.Draw && i != p.idx.ToDraw {
			return i
		}
	}
	panic("panel: no free slot")
}

// AcquireDraw promotes the most recently published panel to the draw panel
// and returns it. The renderer calls this once per rotation.
func (p *Pool) AcquireDraw() *Panel {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx.Draw = p.idx.ToDraw
	return p.panels[p.idx.Draw]
}

// BeginFill reserves the writable panel for an inbound image of n bytes.
// An oversize request is rejected before any state changes. BeginFill blocks
// while another fill is in progress.
func (p *Pool) BeginFill(ctx context.Context, n int) (*Fill, error) {
	if n < 0 || n > p.Capacity() {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversize, n, p.Capacity())
	}
	select {
	case p.fillSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrFillBusy, ctx.Err())
	}

	p.mu.Lock()
	p.idx.Fill = p.freeIndex()
	target := p.panels[p.idx.Fill]
	p.mu.Unlock()

	return &Fill{pool: p, panel: target, size: n}, nil
}

func (p *Pool) publish(f *Fill) {
	p.mu.Lock()
	p.idx.ToDraw = f.panel.index
	p.idx.Fill = p.freeIndex()
	p.published++
	p.prevPublish, p.lastPublish = p.lastPublish, p.now()
	p.mu.Unlock()
	<-p.fillSlot
}

// Published is the number of completed ingestions.
func (p *Pool) Published() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// FPS is the rate of panel publications measured over the two most recent
// ones. It is zero until two panels have been published.
func (p *Pool) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prevPublish.IsZero() {
		return 0
	}
	d := p.lastPublish.Sub(p.prevPublish)
	if d <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}

// Fill is an in-progress ingestion into the writable panel. Exactly one of
// Commit or Abort releases it.
type Fill struct {
	pool  *Pool
	panel *Panel
	size  int
	done  bool
}

func (f *Fill) Panel() *Panel { return f.panel }

// Load copies the declared payload into the panel. It runs without the pool
// lock, concurrently with rendering of the draw panel.
func (f *Fill) Load(r io.Reader) error {
	return f.panel.Load(r, f.size)
}

// Commit publishes the panel as the next one to draw.
func (f *Fill) Commit() {
	if f.done {
		return
	}
	f.done = true
	f.pool.publish(f)
}

// Abort releases the fill slot without publishing anything.
func (f *Fill) Abort() {
	if f.done {
		return
	}
	f.done = true
	<-f.pool.fillSlot
}
