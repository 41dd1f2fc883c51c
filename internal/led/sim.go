package led

import (
	"sync"

	"github.com/rs/zerolog"
)

// SimSink stands in for hardware: it counts frames and keeps a copy of the
// last one. With Verbose set every frame is summarised at debug level.
type SimSink struct {
	Verbose bool

	mu    sync.Mutex
	count int
	last  []byte
	log   zerolog.Logger
	n     int
}

func NewSimSink(count int, log zerolog.Logger) *SimSink {
	return &SimSink{n: count, log: log}
}

func (d *SimSink) Write(rgb []byte) error {
	if err := checkLen(rgb, d.n); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.last = append(d.last[:0], rgb...)
	if d.Verbose {
		var r, g, b int
		for i := 0; i+2 < len(rgb); i += 3 {
			r += int(rgb[i])
			g += int(rgb[i+1])
			b += int(rgb[i+2])
		}
		n := max(1, d.n)
		d.log.Debug().Int("frame", d.count).
			Ints("avg", []int{r / n, g / n, b / n}).
			Ints("first", []int{int(rgb[0]), int(rgb[1]), int(rgb[2])}).
			Msg("sim frame")
	}
	return nil
}

func (d *SimSink) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Last returns a copy of the most recent frame.
func (d *SimSink) Last() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.last...)
}

func (d *SimSink) Close() error { return nil }
