// Package led drives the strips. A Strip double-buffers frames over a Sink
// that pushes bytes to the hardware.
package led

import (
	"errors"
	"fmt"
)

var (
	ErrClosed      = errors.New("led: driver closed")
	ErrInvalidSlot = errors.New("led: invalid frame slot")
	ErrFrameSize   = errors.New("led: frame size does not match strip length")
	ErrBusy        = errors.New("led: frame slot is being flushed")
)

// Sink abstracts an LED output.
type Sink interface {
	// Write pushes an RGB frame to hardware. len(rgb) must be 3*N.
	Write(rgb []byte) error
	// Close releases resources.
	Close() error
}

// Driver is what the renderer needs from the strips: two frame slots, an
// asynchronous flush of one slot and a way to wait for it to finish.
type Driver interface {
	Strips() int
	Pixels() int
	Frame(slot int) (*Frame, error)
	Draw(slot int) error
	Wait() error
	Close() error
}

// Frame is one RGB image for every strip, strip-major.
type Frame struct {
	strips int
	pixels int
	rgb    []byte
}

func NewFrame(strips, pixels int) *Frame {
	return &Frame{strips: strips, pixels: pixels, rgb: make([]byte, strips*pixels*3)}
}

func (f *Frame) SetPixel(strip, pixel int, r, g, b uint8) {
	if strip < 0 || strip >= f.strips || pixel < 0 || pixel >= f.pixels {
		return
	}
	i := (strip*f.pixels + pixel) * 3
	f.rgb[i], f.rgb[i+1], f.rgb[i+2] = r, g, b
}

func (f *Frame) Pixel(strip, pixel int) (r, g, b uint8) {
	if strip < 0 || strip >= f.strips || pixel < 0 || pixel >= f.pixels {
		return 0, 0, 0
	}
	i := (strip*f.pixels + pixel) * 3
	return f.rgb[i], f.rgb[i+1], f.rgb[i+2]
}

func (f *Frame) Clear() { clear(f.rgb) }

func (f *Frame) Bytes() []byte { return f.rgb }

func checkLen(rgb []byte, count int) error {
	if len(rgb) != count*3 {
		return fmt.Errorf("%w: got %d bytes for %d pixels", ErrFrameSize, len(rgb), count)
	}
	return nil
}
