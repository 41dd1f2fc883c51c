// Package pattern builds calibration and test panels.
package pattern

import (
	"fmt"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/rendersphere/internal/panel"
)

type Kind string

const (
	None      Kind = "none"
	White     Kind = "white"
	Hue       Kind = "hue"
	Quadrants Kind = "quadrants"
	Channels  Kind = "rgb"
	Gradient  Kind = "gradient"
)

var painters = map[Kind]func(pn *panel.Panel, f panel.Format, quadrants int){
	None:      func(pn *panel.Panel, _ panel.Format, _ int) { pn.Clear() },
	White:     func(pn *panel.Panel, f panel.Format, _ int) { solid(pn, f, colorful.Color{R: 1, G: 1, B: 1}) },
	Hue:       hueWheel,
	Quadrants: quadrantMarks,
	Channels:  channelBands,
	Gradient:  gradient,
}

// Kinds lists the known patterns.
func Kinds() []Kind {
	out := make([]Kind, 0, len(painters))
	for k := range painters {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Paint fills pn with pattern k. quadrants is the number of wiring quadrants
// around the sphere.
func Paint(k Kind, pn *panel.Panel, f panel.Format, quadrants int) error {
	p, ok := painters[k]
	if !ok {
		return fmt.Errorf("pattern: unknown pattern %q", k)
	}
	if quadrants <= 0 {
		quadrants = 1
	}
	p(pn, f, quadrants)
	return nil
}

// Bytes renders pattern k into a fresh panel buffer of the given size, ready
// to send on the wire.
func Bytes(k Kind, width, height int, f panel.Format, quadrants int) ([]byte, error) {
	pn := panel.New(0, width, height)
	if err := Paint(k, pn, f, quadrants); err != nil {
		return nil, err
	}
	return pn.Bytes(), nil
}

func set(pn *panel.Panel, y, x int, f panel.Format, c colorful.Color) {
	r, g, b := c.Clamped().RGB255()
	pn.Set(y, x, f, r, g, b)
}

func solid(pn *panel.Panel, f panel.Format, c colorful.Color) {
	for y := 0; y < pn.Height(); y++ {
		for x := 0; x < pn.Width(); x++ {
			set(pn, y, x, f, c)
		}
	}
}

// hueWheel sweeps the hue once around the sphere.
func hueWheel(pn *panel.Panel, f panel.Format, _ int) {
	for x := 0; x < pn.Width(); x++ {
		c := colorful.Hsv(360*float64(x)/float64(pn.Width()), 1, 1)
		for y := 0; y < pn.Height(); y++ {
			set(pn, y, x, f, c)
		}
	}
}

// quadrantMarks gives every quadrant its own hue and draws a white seam at
// slice 0, which makes the x offset easy to calibrate by eye.
func quadrantMarks(pn *panel.Panel, f panel.Format, quadrants int) {
	w := pn.Width()
	for x := 0; x < w; x++ {
		q := x * quadrants / w
		c := colorful.Hsv(360*float64(q)/float64(quadrants), 1, 0.6)
		if x == 0 {
			c = colorful.Color{R: 1, G: 1, B: 1}
		}
		for y := 0; y < pn.Height(); y++ {
			set(pn, y, x, f, c)
		}
	}
}

// channelBands splits the rows into red, green and blue bands to check the
// strip colour order.
func channelBands(pn *panel.Panel, f panel.Format, _ int) {
	h := pn.Height()
	bands := [3]colorful.Color{{R: 1}, {G: 1}, {B: 1}}
	for y := 0; y < h; y++ {
		c := bands[min(2, y*3/max(1, h))]
		for x := 0; x < pn.Width(); x++ {
			set(pn, y, x, f, c)
		}
	}
}

// gradient blends pole to pole so the hemisphere inversion is visible.
func gradient(pn *panel.Panel, f panel.Format, _ int) {
	top, _ := colorful.Hex("#1e64ff")
	bottom, _ := colorful.Hex("#ff5a1e")
	h := pn.Height()
	for y := 0; y < h; y++ {
		c := top.BlendLuv(bottom, float64(y)/float64(max(1, h-1)))
		for x := 0; x < pn.Width(); x++ {
			set(pn, y, x, f, c)
		}
	}
}
