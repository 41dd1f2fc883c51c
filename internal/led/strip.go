package led

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Slots is the number of frame buffers per Strip.
const Slots = 2

// Strip implements Driver over a Sink. Draw hands a slot to a background
// flush; the other slot stays writable meanwhile.
type Strip struct {
	sink   Sink
	strips int
	pixels int
	frames [Slots]*Frame
	log    zerolog.Logger

	mu       sync.Mutex
	pending  chan error
	inflight int
	closed   bool
	lastDraw time.Duration
}

func NewStrip(sink Sink, strips, pixels int, log zerolog.Logger) (*Strip, error) {
	if sink == nil {
		return nil, fmt.Errorf("led: nil sink")
	}
	if strips <= 0 || pixels <= 0 {
		return nil, fmt.Errorf("led: invalid geometry %dx%d", strips, pixels)
	}
	s := &Strip{sink: sink, strips: strips, pixels: pixels, inflight: -1, log: log}
	for i := range s.frames {
		s.frames[i] = NewFrame(strips, pixels)
	}
	return s, nil
}

func (s *Strip) Strips() int { return s.strips }
func (s *Strip) Pixels() int { return s.pixels }

// Frame returns the writable buffer of slot. The slot being flushed is not
// writable until Wait returns.
func (s *Strip) Frame(slot int) (*Frame, error) {
	if slot < 0 || slot >= Slots {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.inflight == slot {
		return nil, fmt.Errorf("%w: %d", ErrBusy, slot)
	}
	return s.frames[slot], nil
}

// Draw starts flushing slot to the sink. Only one flush may be in flight;
// call Wait before the next Draw.
func (s *Strip) Draw(slot int) error {
	if slot < 0 || slot >= Slots {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.pending != nil {
		return ErrBusy
	}
	done := make(chan error, 1)
	s.pending = done
	s.inflight = slot
	buf := s.frames[slot].Bytes()
	go func() {
		start := time.Now()
		err := s.sink.Write(buf)
		s.mu.Lock()
		s.lastDraw = time.Since(start)
		s.mu.Unlock()
		done <- err
	}()
	return nil
}

// Wait blocks until the flush started by the last Draw completes and returns
// its error. It returns nil when nothing is in flight.
func (s *Strip) Wait() error {
	s.mu.Lock()
	done := s.pending
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	err := <-done
	s.mu.Lock()
	s.pending = nil
	s.inflight = -1
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("strip flush failed")
		return fmt.Errorf("led: flush: %w", err)
	}
	return nil
}

// LastDraw is the duration of the most recent completed flush.
func (s *Strip) LastDraw() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDraw
}

func (s *Strip) Close() error {
	werr := s.Wait()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if err := s.sink.Close(); err != nil {
		return err
	}
	return werr
}
