package sensor

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIO watches a pin through periph's host drivers.
type GPIO struct {
	pin  gpio.PinIO
	once sync.Once
}

// OpenGPIO initialises the periph host and arms rising-edge detection on the
// named pin, e.g. "GPIO17".
func OpenGPIO(name string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("sensor: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("sensor: unknown gpio %q", name)
	}
	return NewGPIO(pin)
}

// NewGPIO arms an already resolved pin.
func NewGPIO(pin gpio.PinIO) (*GPIO, error) {
	if err := pin.In(gpio.Float, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("sensor: arm %s: %w", pin.Name(), err)
	}
	return &GPIO{pin: pin}, nil
}

func (g *GPIO) WaitForEdge(timeout time.Duration) (bool, error) {
	return g.pin.WaitForEdge(timeout), nil
}

func (g *GPIO) Close() error {
	var err error
	g.once.Do(func() { err = g.pin.Halt() })
	return err
}
