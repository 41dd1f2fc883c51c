//go:build linux

package led

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"
)

const (
	spiIOCWriteMode        = 0x40016b01
	spiIOCWriteBitsPerWord = 0x40016b03
	spiIOCWriteMaxSpeedHz  = 0x40046b04
)

// SPISink drives a WS2812 chain from a spidev node using the 3-bit
// expansion of Encoder.
type SPISink struct {
	mu    sync.Mutex
	f     *os.File
	count int
	enc   *Encoder
	buf   []byte // encoded pixels followed by the latch
}

// NewSPISink opens spiDev (e.g. "/dev/spidev0.0"). speedHz in the
// 2.4-3.2MHz range suits the 3x expansion. resetUs is the latch time,
// usually at least 280µs.
func NewSPISink(spiDev string, count int, colorOrder string, speedHz, resetUs int) (*SPISink, error) {
	if count <= 0 {
		return nil, fmt.Errorf("led: invalid LED count: %d", count)
	}
	if speedHz <= 0 {
		speedHz = 2400000
	}
	if resetUs <= 0 {
		resetUs = 300
	}
	enc, err := NewEncoder(colorOrder)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(spiDev, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("led: open spidev: %w", err)
	}
	mode := byte(0)
	bpw := byte(8)
	speed := uint32(speedHz)
	for _, op := range []struct {
		name string
		req  uintptr
		arg  unsafe.Pointer
	}{
		{"mode", spiIOCWriteMode, unsafe.Pointer(&mode)},
		{"bits-per-word", spiIOCWriteBitsPerWord, unsafe.Pointer(&bpw)},
		{"speed", spiIOCWriteMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if _, _, e := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), op.req, uintptr(op.arg)); e != 0 {
			_ = f.Close()
			return nil, fmt.Errorf("led: spi set %s: %v", op.name, e)
		}
	}

	// Hold the line low for resetUs after the data.
	latch := (resetUs*speedHz/8 + 999999) / 1000000
	return &SPISink{
		f:     f,
		count: count,
		enc:   enc,
		buf:   make([]byte, count*EncodedPixel+latch),
	}, nil
}

func (s *SPISink) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := checkLen(rgb, s.count); err != nil {
		return err
	}
	s.enc.Encode(s.buf, rgb)
	if _, err := s.f.Write(s.buf); err != nil {
		return fmt.Errorf("led: spi write: %w", err)
	}
	return nil
}

func (s *SPISink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
