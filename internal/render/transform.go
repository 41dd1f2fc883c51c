package render

import "math"

// Transform applies contrast then additive brightness to one channel value,
// rounding and clamping to 0..255. Non-finite results map to 0.
func Transform(in uint8, contrast, brightness float32) uint8 {
	v := math.Round(float64(in)*float64(contrast) + float64(brightness))
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// curve caches Transform for one (contrast, brightness) pair.
type curve struct {
	contrast   float32
	brightness float32
	valid      bool
	lut        [256]uint8
}

func (c *curve) update(contrast, brightness float32) *[256]uint8 {
	if c.valid && c.contrast == contrast && c.brightness == brightness {
		return &c.lut
	}
	for i := range c.lut {
		c.lut[i] = Transform(uint8(i), contrast, brightness)
	}
	c.contrast, c.brightness, c.valid = contrast, brightness, true
	return &c.lut
}
