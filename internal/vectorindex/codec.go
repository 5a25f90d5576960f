package vectorindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptIndex is returned when a serialized index cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt index data")

const (
	codecMagic   = "TRFX"
	codecVersion = uint16(1)
	headerSize   = 4 + 2 + 4 + 8
)

// MarshalBinary encodes the index as:
//
//	magic "TRFX" | version uint16 | dim uint32 | rows uint64 | rows*dim float32
//
// All integers and floats are little-endian; floats round-trip exactly.
func (f *Flat) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize+4*len(f.data))
	copy(buf[0:4], codecMagic)
	binary.LittleEndian.PutUint16(buf[4:6], codecVersion)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(f.dim))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(f.Size()))

	off := headerSize
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf, nil
}

// UnmarshalBinary replaces the index contents with the decoded data.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: short header (%d bytes)", ErrCorruptIndex, len(data))
	}
	if string(data[0:4]) != codecMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != codecVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}

	dim := int(binary.LittleEndian.Uint32(data[6:10]))
	rows := binary.LittleEndian.Uint64(data[10:18])
	if dim == 0 && rows != 0 {
		return fmt.Errorf("%w: rows without dimension", ErrCorruptIndex)
	}

	payload := uint64(len(data) - headerSize)
	if dim > 0 && rows > payload/(4*uint64(dim)) {
		return fmt.Errorf("%w: %d rows of dimension %d exceed %d payload bytes", ErrCorruptIndex, rows, dim, payload)
	}
	if want := rows * uint64(dim) * 4; payload != want {
		return fmt.Errorf("%w: expected %d payload bytes, got %d", ErrCorruptIndex, want, payload)
	}

	vals := make([]float32, int(rows)*dim)
	off := headerSize
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}

	f.dim = dim
	f.data = vals
	if len(vals) == 0 {
		f.data = nil
	}
	return nil
}
