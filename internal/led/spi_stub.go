//go:build !linux

package led

import "errors"

var errNoSPIDev = errors.New("led: spidev not supported on this platform")

type SPISink struct{}

func NewSPISink(spiDev string, count int, colorOrder string, speedHz, resetUs int) (*SPISink, error) {
	return nil, errNoSPIDev
}

func (s *SPISink) Write(rgb []byte) error { return errNoSPIDev }

func (s *SPISink) Close() error { return nil }
