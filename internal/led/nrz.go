package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// NRZClock is the SPI clock nrzled requires.
const NRZClock = 2500 * physic.KiloHertz

// NRZSink drives WS281x strips through periph's nrzled encoder on an SPI
// port.
type NRZSink struct {
	mu    sync.Mutex
	port  spi.PortCloser
	dev   *nrzled.Dev
	count int
}

// OpenNRZ initialises the periph host and opens the SPI port by name; an
// empty name picks the first registered port.
func OpenNRZ(portName string, count int) (*NRZSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("led: periph host init: %w", err)
	}
	p, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("led: open spi port %q: %w", portName, err)
	}
	s, err := NewNRZSink(p, count)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

// NewNRZSink wraps an opened port. The sink owns the port and closes it.
func NewNRZSink(p spi.PortCloser, count int) (*NRZSink, error) {
	if count <= 0 {
		return nil, fmt.Errorf("led: invalid LED count: %d", count)
	}
	opts := nrzled.DefaultOpts
	opts.NumPixels = count
	opts.Channels = 3
	// NewSPI takes the SPI clock, three symbols per 800kHz LED bit, not the
	// LED bit rate.
	opts.Freq = NRZClock
	dev, err := nrzled.NewSPI(p, &opts)
	if err != nil {
		return nil, fmt.Errorf("led: %w", err)
	}
	return &NRZSink{port: p, dev: dev, count: count}, nil
}

func (s *NRZSink) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrClosed
	}
	if err := checkLen(rgb, s.count); err != nil {
		return err
	}
	if _, err := s.dev.Write(rgb); err != nil {
		return fmt.Errorf("led: %w", err)
	}
	return nil
}

func (s *NRZSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	herr := s.dev.Halt()
	s.dev = nil
	if err := s.port.Close(); err != nil {
		return err
	}
	return herr
}
