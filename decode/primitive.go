package decode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Primitive decoders read little-endian scalars and arrays out of a byte
// slice at an explicit offset, returning the value and the offset just past
// it. Every reader fails with ErrTruncated (wrapped with the offending
// range) rather than panicking, so a parser can treat a short buffer the
// same way it treats any other malformed telegram.

func need(buf []byte, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > len(buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, offset, len(buf))
	}
	return nil
}

// ReadU8 reads a single byte at offset.
func ReadU8(buf []byte, offset int) (uint8, int, error) {
	if err := need(buf, offset, 1); err != nil {
		return 0, offset, err
	}
	return buf[offset], offset + 1, nil
}

// ReadU16 reads a little-endian uint16 at offset.
func ReadU16(buf []byte, offset int) (uint16, int, error) {
	if err := need(buf, offset, 2); err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint16(buf[offset : offset+2]), offset + 2, nil
}

// ReadI16 reads a little-endian int16 at offset.
func ReadI16(buf []byte, offset int) (int16, int, error) {
	v, next, err := ReadU16(buf, offset)
	if err != nil {
		return 0, offset, err
	}
	return int16(v), next, nil
}

// ReadU32 reads a little-endian uint32 at offset.
func ReadU32(buf []byte, offset int) (uint32, int, error) {
	if err := need(buf, offset, 4); err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+4]), offset + 4, nil
}

// ReadU64 reads a little-endian uint64 at offset.
func ReadU64(buf []byte, offset int) (uint64, int, error) {
	if err := need(buf, offset, 8); err != nil {
		return 0, offset, err
	}
	return binary.LittleEndian.Uint64(buf[offset : offset+8]), offset + 8, nil
}

// ReadF32 reads an IEEE-754 single-precision little-endian float at offset.
func ReadF32(buf []byte, offset int) (float32, int, error) {
	bits, next, err := ReadU32(buf, offset)
	if err != nil {
		return 0, offset, err
	}
	return math.Float32frombits(bits), next, nil
}

// ReadU16Array reads n consecutive little-endian uint16 values.
func ReadU16Array(buf []byte, offset int, n int) ([]uint16, int, error) {
	if err := need(buf, offset, n*2); err != nil {
		return nil, offset, err
	}
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint16(buf[offset+i*2 : offset+i*2+2])
	}
	return out, offset + n*2, nil
}

// ReadU32Array reads n consecutive little-endian uint32 values.
func ReadU32Array(buf []byte, offset int, n int) ([]uint32, int, error) {
	if err := need(buf, offset, n*4); err != nil {
		return nil, offset, err
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint32(buf[offset+i*4 : offset+i*4+4])
	}
	return out, offset + n*4, nil
}

// ReadU64Array reads n consecutive little-endian uint64 values.
func ReadU64Array(buf []byte, offset int, n int) ([]uint64, int, error) {
	if err := need(buf, offset, n*8); err != nil {
		return nil, offset, err
	}
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[offset+i*8 : offset+i*8+8])
	}
	return out, offset + n*8, nil
}

// ReadF32Array reads n consecutive IEEE-754 single-precision little-endian
// floats.
func ReadF32Array(buf []byte, offset int, n int) ([]float32, int, error) {
	raw, next, err := ReadU32Array(buf, offset, n)
	if err != nil {
		return nil, offset, err
	}
	out := make([]float32, n)
	for i, bits := range raw {
		out[i] = math.Float32frombits(bits)
	}
	return out, next, nil
}
