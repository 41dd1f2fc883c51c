package layout

import (
	"errors"
	"fmt"
)

// Reference geometry of the sphere: 24 strips of 17 pixels in 6 rows of 4,
// and 4 quadrants of 56 slices per rotation.
const (
	DefaultStrips         = 24
	DefaultStripsPerRow   = 4
	DefaultPixelsPerStrip = 17
	DefaultQuadrantWidth  = 56
	DefaultQuadrants      = 4
	DefaultUpperRows      = 3
)

// Layout describes how logical strips are grouped into rows and how panel
// data maps onto physical strips for every angular slice.
type Layout struct {
	Strips         int
	StripsPerRow   int
	PixelsPerStrip int
	QuadrantWidth  int
	Quadrants      int
	// UpperRows is the number of rows, counted from the top, whose pixels run
	// top to bottom. The remaining rows are mounted inverted.
	UpperRows int
	// StripMap corrects the physical wiring order: StripMap[logical] = physical.
	StripMap []int
}

// Source is the result of mapping one logical pixel for one slice: the
// physical strip to drive and the panel coordinate to read from.
type Source struct {
	Strip int
	Y, X  int
}

func Default() Layout {
	return Layout{
		Strips:         DefaultStrips,
		StripsPerRow:   DefaultStripsPerRow,
		PixelsPerStrip: DefaultPixelsPerStrip,
		QuadrantWidth:  DefaultQuadrantWidth,
		Quadrants:      DefaultQuadrants,
		UpperRows:      DefaultUpperRows,
		StripMap:       Identity(DefaultStrips),
	}
}

// Identity returns the strip map for hardware wired in logical order.
func Identity(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// Slices is the number of angular slices in one rotation.
func (l Layout) Slices() int { return l.QuadrantWidth * l.Quadrants }

func (l Layout) Rows() int {
	if l.StripsPerRow == 0 {
		return 0
	}
	return l.Strips / l.StripsPerRow
}

// Height is the number of panel rows (pixel rows across all strip rows).
func (l Layout) Height() int { return l.Rows() * l.PixelsPerStrip }

// Count is the number of physical LEDs.
func (l Layout) Count() int { return l.Strips * l.PixelsPerStrip }

func (l Layout) Validate() error {
	switch {
	case l.Strips <= 0 || l.StripsPerRow <= 0 || l.PixelsPerStrip <= 0:
		return errors.New("layout: strips, strips per row and pixels per strip must be positive")
	case l.QuadrantWidth <= 0 || l.Quadrants <= 0:
		return errors.New("layout: quadrant width and quadrant count must be positive")
	case l.Strips%l.StripsPerRow != 0:
		return fmt.Errorf("layout: %d strips do not divide into rows of %d", l.Strips, l.StripsPerRow)
	case l.Quadrants != l.StripsPerRow:
		return fmt.Errorf("layout: %d quadrants cannot be spread over rows of %d strips", l.Quadrants, l.StripsPerRow)
	case l.UpperRows < 0 || l.UpperRows > l.Rows():
		return fmt.Errorf("layout: upper rows %d out of range 0..%d", l.UpperRows, l.Rows())
	case len(l.StripMap) != l.Strips:
		return fmt.Errorf("layout: strip map has %d entries, want %d", len(l.StripMap), l.Strips)
	}
	seen := make([]bool, l.Strips)
	for i, s := range l.StripMap {
		if s < 0 || s >= l.Strips || seen[s] {
			return fmt.Errorf("layout: strip map entry %d (%d) is not a permutation of 0..%d", i, s, l.Strips-1)
		}
		seen[s] = true
	}
	return nil
}

// Map converts a logical (strip, pixel) for the given slice into the physical
// strip to drive and the panel coordinate holding its colour. The pixel index
// along the physical strip is unchanged. xOffset rotates the image by whole
// slices and is reduced modulo Slices.
func (l Layout) Map(strip, pixel, slice int, xOffset uint32) Source {
	n := l.Slices()
	row := strip / l.StripsPerRow
	column := strip - row*l.StripsPerRow
	quadrant := slice / l.QuadrantWidth
	origin := row * l.StripsPerRow

	y := row * l.PixelsPerStrip
	if row < l.UpperRows {
		y += pixel
	} else {
		y += l.PixelsPerStrip - 1 - pixel
	}

	turn := (int(xOffset%uint32(n)) + slice + column*l.QuadrantWidth) % n

	return Source{
		Strip: l.StripMap[origin+(column+quadrant)%l.StripsPerRow],
		Y:     y,
		X:     n - 1 - turn,
	}
}
