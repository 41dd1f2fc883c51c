package server

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Command bytes of the display protocol. Every multi-byte field is
// big-endian.
const (
	CmdPanel      byte = '0' // u32 byte length, then the panel bytes
	CmdStats      byte = '?' // reply: f64 rps, f64 fps
	CmdXOffset    byte = 'x' // u32 slice offset
	CmdBrightness byte = 'b' // f32 additive brightness
	CmdContrast   byte = 'c' // f32 contrast multiplier
)

// StatsReplySize is the size of the reply to CmdStats.
const StatsReplySize = 16

var (
	ErrInvalidCommand = errors.New("server: invalid command")
	ErrInvalidValue   = errors.New("server: value is not a finite number")
)

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readF32(r io.Reader) (float32, error) {
	v, err := readU32(r)
	if err != nil {
		return 0, err
	}
	f := math.Float32frombits(v)
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return 0, ErrInvalidValue
	}
	return f, nil
}

// AppendStats encodes a CmdStats reply.
func AppendStats(b []byte, rps, fps float64) []byte {
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(rps))
	return binary.BigEndian.AppendUint64(b, math.Float64bits(fps))
}

// ParseStats decodes a CmdStats reply.
func ParseStats(b []byte) (rps, fps float64, err error) {
	if len(b) != StatsReplySize {
		return 0, 0, io.ErrUnexpectedEOF
	}
	rps = math.Float64frombits(binary.BigEndian.Uint64(b[:8]))
	fps = math.Float64frombits(binary.BigEndian.Uint64(b[8:]))
	return rps, fps, nil
}

// AppendPanel encodes a CmdPanel request carrying data.
func AppendPanel(b, data []byte) []byte {
	b = append(b, CmdPanel)
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func AppendXOffset(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(append(b, CmdXOffset), v)
}

func AppendBrightness(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(append(b, CmdBrightness), math.Float32bits(v))
}

func AppendContrast(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(append(b, CmdContrast), math.Float32bits(v))
}
