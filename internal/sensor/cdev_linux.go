//go:build linux

package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Cdev watches a line through the GPIO character device.
type Cdev struct {
	line *gpiocdev.Line
	q    *edgeQueue
	once sync.Once
}

// OpenCdev requests rising-edge events for offset on chip, e.g. "gpiochip0".
// A non-zero debounce is applied by the kernel.
func OpenCdev(chip string, offset int, debounce time.Duration) (*Cdev, error) {
	c := &Cdev{q: newEdgeQueue()}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("rendersphere"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { c.q.push() }),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("sensor: request %s:%d: %w", chip, offset, err)
	}
	c.line = line
	return c, nil
}

func (c *Cdev) WaitForEdge(timeout time.Duration) (bool, error) {
	return c.q.wait(timeout)
}

func (c *Cdev) Close() error {
	var err error
	c.once.Do(func() {
		c.q.close()
		err = c.line.Close()
	})
	return err
}
