package led

import (
	"fmt"
	"strings"
)

// Encoder expands RGB bytes into the WS2812-over-SPI bit pattern: every data
// bit becomes three SPI bits, 110 for a one and 100 for a zero, so one colour
// byte occupies three SPI bytes.
type Encoder struct {
	order [3]int // source channel for each wire position
	lut   [256][3]byte
}

// EncodedPixel is the number of SPI bytes per LED.
const EncodedPixel = 9

// NewEncoder builds an encoder for a wire colour order such as "GRB".
func NewEncoder(colorOrder string) (*Encoder, error) {
	if colorOrder == "" {
		colorOrder = "GRB"
	}
	e := &Encoder{}
	seen := map[int]bool{}
	for i, c := range strings.ToUpper(colorOrder) {
		if i >= 3 {
			return nil, fmt.Errorf("led: colour order %q is not three channels", colorOrder)
		}
		ch := strings.IndexRune("RGB", c)
		if ch < 0 || seen[ch] {
			return nil, fmt.Errorf("led: bad colour order %q", colorOrder)
		}
		seen[ch] = true
		e.order[i] = ch
	}
	if len(seen) != 3 {
		return nil, fmt.Errorf("led: colour order %q is not three channels", colorOrder)
	}

	for v := 0; v < 256; v++ {
		var out uint32
		for i := 7; i >= 0; i-- {
			tri := uint32(0b100)
			if (v>>i)&1 == 1 {
				tri = 0b110
			}
			out = out<<3 | tri
		}
		e.lut[v] = [3]byte{byte(out >> 16), byte(out >> 8), byte(out)}
	}
	return e, nil
}

// Encode writes the expansion of rgb into dst, which must hold
// len(rgb)/3*EncodedPixel bytes.
func (e *Encoder) Encode(dst, rgb []byte) {
	for i := 0; i+2 < len(rgb); i += 3 {
		px := dst[i/3*EncodedPixel:]
		for w := 0; w < 3; w++ {
			copy(px[w*3:w*3+3], e.lut[rgb[i+e.order[w]]][:])
		}
	}
}
