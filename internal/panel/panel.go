// Package panel holds captured sphere images and the triple-buffer hand-off
// between network ingestion and the slice renderer.
package panel

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// PixelSize is the number of bytes stored per pixel on the wire and in memory.
const PixelSize = 4

var (
	ErrOversize   = errors.New("panel: payload exceeds panel capacity")
	ErrShortPanel = errors.New("panel: payload ended before declared length")
	ErrFillBusy   = errors.New("panel: gave up waiting for the fill slot")
)

// Format gives the byte offset of each colour channel inside a 4-byte pixel.
type Format struct {
	R, G, B int
}

var (
	// XRGB leaves byte 0 unused and stores red, green, blue in bytes 1..3.
	XRGB = Format{R: 1, G: 2, B: 3}
	// BGRX stores blue, green, red in bytes 0..2 and leaves byte 3 unused.
	BGRX = Format{R: 2, G: 1, B: 0}
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "", "XRGB":
		return XRGB, nil
	case "BGRX":
		return BGRX, nil
	default:
		return Format{}, fmt.Errorf("panel: unknown pixel format %q", s)
	}
}

// Panel is one full-sphere image addressed by (y, x), where y runs over every
// pixel row of every strip row and x is the slice.
type Panel struct {
	index  int
	width  int
	height int
	buf    []byte
}

func New(index, width, height int) *Panel {
	return &Panel{
		index:  index,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*PixelSize),
	}
}

func (p *Panel) Index() int  { return p.index }
func (p *Panel) Width() int  { return p.width }
func (p *Panel) Height() int { return p.height }

// Len is the panel capacity in bytes.
func (p *Panel) Len() int { return len(p.buf) }

// Bytes exposes the raw buffer, e.g. for sending a locally built panel.
func (p *Panel) Bytes() []byte { return p.buf }

func (p *Panel) offset(y, x int) (int, bool) {
	if y < 0 || y >= p.height || x < 0 || x >= p.width {
		return 0, false
	}
	return (y*p.width + x) * PixelSize, true
}

// RGB reads one pixel. Coordinates outside the panel read as black.
func (p *Panel) RGB(y, x int, f Format) (r, g, b uint8) {
	off, ok := p.offset(y, x)
	if !ok {
		return 0, 0, 0
	}
	px := p.buf[off : off+PixelSize]
	return px[f.R], px[f.G], px[f.B]
}

// Set writes one pixel. Coordinates outside the panel are ignored.
func (p *Panel) Set(y, x int, f Format, r, g, b uint8) {
	off, ok := p.offset(y, x)
	if !ok {
		return
	}
	px := p.buf[off : off+PixelSize]
	px[f.R], px[f.G], px[f.B] = r, g, b
}

func (p *Panel) Clear() {
	clear(p.buf)
}

// Load replaces the panel content with exactly n bytes read from r. Bytes
// beyond n are zeroed.
func (p *Panel) Load(r io.Reader, n int) error {
	if n < 0 || n > len(p.buf) {
		return fmt.Errorf("%w: %d > %d", ErrOversize, n, len(p.buf))
	}
	clear(p.buf[n:])
	if _, err := io.ReadFull(r, p.buf[:n]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrShortPanel, err)
		}
		return err
	}
	return nil
}
