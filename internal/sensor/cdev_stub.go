//go:build !linux

package sensor

import "time"

type Cdev struct{}

func OpenCdev(chip string, offset int, debounce time.Duration) (*Cdev, error) {
	return nil, ErrUnsupported
}

func (c *Cdev) WaitForEdge(time.Duration) (bool, error) { return false, ErrUnsupported }

func (c *Cdev) Close() error { return nil }
