package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	l := Default()
	require.NoError(t, l.Validate())
	assert.Equal(t, 224, l.Slices())
	assert.Equal(t, 6, l.Rows())
	assert.Equal(t, 102, l.Height())
	assert.Equal(t, 408, l.Count())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(l *Layout){
		"uneven rows":       func(l *Layout) { l.Strips = 23; l.StripMap = Identity(23) },
		"quadrant mismatch": func(l *Layout) { l.Quadrants = 3 },
		"upper rows":        func(l *Layout) { l.UpperRows = 7 },
		"short strip map":   func(l *Layout) { l.StripMap = Identity(10) },
		"duplicate strip":   func(l *Layout) { l.StripMap[3] = 2 },
		"zero pixels":       func(l *Layout) { l.PixelsPerStrip = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			l := Default()
			mutate(&l)
			assert.Error(t, l.Validate())
		})
	}
}

func TestMapInjectiveWithinSlice(t *testing.T) {
	l := Default()
	l.StripMap = []int{3, 2, 1, 0, 4, 5, 6, 7, 11, 10, 9, 8, 12, 13, 14, 15, 16, 17, 18, 19, 23, 22, 21, 20}
	require.NoError(t, l.Validate())

	type phys struct{ strip, pixel int }
	type src struct{ y, x int }

	for _, off := range []uint32{0, 1, 57, 223, 1000} {
		for slice := 0; slice < l.Slices(); slice++ {
			physical := map[phys]bool{}
			sources := map[src]bool{}
			for strip := 0; strip < l.Strips; strip++ {
				for pixel := 0; pixel < l.PixelsPerStrip; pixel++ {
					s := l.Map(strip, pixel, slice, off)
					p := phys{s.Strip, pixel}
					require.False(t, physical[p], "slice %d offset %d: physical %v reused", slice, off, p)
					physical[p] = true

					c := src{s.Y, s.X}
					require.False(t, sources[c], "slice %d offset %d: source %v reused", slice, off, c)
					sources[c] = true

					require.True(t, s.Y >= 0 && s.Y < l.Height())
					require.True(t, s.X >= 0 && s.X < l.Slices())
				}
			}
			require.Len(t, physical, l.Count())
		}
	}
}

func TestMapOffsetRoundTrip(t *testing.T) {
	l := Default()
	n := uint32(l.Slices())
	for slice := 0; slice < l.Slices(); slice += 7 {
		for strip := 0; strip < l.Strips; strip++ {
			for pixel := 0; pixel < l.PixelsPerStrip; pixel++ {
				a := l.Map(strip, pixel, slice, 0)
				b := l.Map(strip, pixel, slice, n)
				c := l.Map(strip, pixel, slice, 0)
				assert.Equal(t, a, b)
				assert.Equal(t, a, c)
			}
		}
	}
}

func TestMapOffsetRoundTripPartialTurn(t *testing.T) {
	l := Default()
	for _, n := range []uint32{1, 57, uint32(l.Slices()) + 3} {
		for slice := 0; slice < l.Slices(); slice += 11 {
			for strip := 0; strip < l.Strips; strip++ {
				for pixel := 0; pixel < l.PixelsPerStrip; pixel += 4 {
					a := l.Map(strip, pixel, slice, 0)
					b := l.Map(strip, pixel, slice, n)
					c := l.Map(strip, pixel, slice, 0)
					require.NotEqual(t, a, b, "offset %d must move slice %d", n, slice)
					assert.Equal(t, a.Strip, b.Strip, "offset never changes the strip")
					assert.Equal(t, a.Y, b.Y)
					assert.Equal(t, a, c)
				}
			}
		}
	}
}

func TestMapReferencePoints(t *testing.T) {
	l := Default()

	// Upper hemisphere: pixel order is kept.
	assert.Equal(t, Source{Strip: 0, Y: 5, X: 223}, l.Map(0, 5, 0, 0))
	// Lower hemisphere: row 3 starts at y=51 and runs inverted.
	assert.Equal(t, Source{Strip: 12, Y: 51 + 16, X: 223}, l.Map(12, 0, 0, 0))
	// Column 1 of row 0 is a quarter turn ahead.
	assert.Equal(t, Source{Strip: 1, Y: 0, X: 223 - 56}, l.Map(1, 0, 0, 0))
	// Second quadrant rotates strips within the row.
	assert.Equal(t, Source{Strip: 1, Y: 0, X: 223 - 56}, l.Map(0, 0, 56, 0))
	assert.Equal(t, Source{Strip: 0, Y: 0, X: 223 - (3*56 + 56)%224}, l.Map(3, 0, 56, 0))
	// Offset shifts the source column backwards.
	assert.Equal(t, Source{Strip: 0, Y: 0, X: 213}, l.Map(0, 0, 0, 10))
}
