package decode

import "fmt"

// ElemType tags the scalar type backing a channel's dense byte payload.
type ElemType uint8

const (
	ElemF32 ElemType = iota
	ElemU32
	ElemU16
	ElemI16
	ElemU8
)

// String names an ElemType the way the keyword table spells it on the wire.
func (t ElemType) String() string {
	switch t {
	case ElemF32:
		return "float32"
	case ElemU32:
		return "uint32"
	case ElemU16:
		return "uint16"
	case ElemI16:
		return "int16"
	case ElemU8:
		return "uint8"
	default:
		return "unknown"
	}
}

// ElemSize returns the on-wire byte width of t.
func (t ElemType) ElemSize() int {
	switch t {
	case ElemF32, ElemU32:
		return 4
	case ElemU16, ElemI16:
		return 2
	case ElemU8:
		return 1
	default:
		return 0
	}
}

func checkChannelLength(count uint32, data []byte, t ElemType) error {
	want := int(count) * t.ElemSize()
	if len(data) != want {
		return fmt.Errorf("%w: %s channel declares count=%d (%d bytes), got %d bytes",
			ErrChannelLengthMismatch, t, count, want, len(data))
	}
	return nil
}

// DecodeF32Channel interprets data as count little-endian float32 values.
func DecodeF32Channel(count uint32, data []byte) ([]float32, error) {
	if err := checkChannelLength(count, data, ElemF32); err != nil {
		return nil, err
	}
	out, _, err := ReadF32Array(data, 0, int(count))
	return out, err
}

// DecodeU32Channel interprets data as count little-endian uint32 values.
func DecodeU32Channel(count uint32, data []byte) ([]uint32, error) {
	if err := checkChannelLength(count, data, ElemU32); err != nil {
		return nil, err
	}
	out, _, err := ReadU32Array(data, 0, int(count))
	return out, err
}

// DecodeU16Channel interprets data as count little-endian uint16 values.
func DecodeU16Channel(count uint32, data []byte) ([]uint16, error) {
	if err := checkChannelLength(count, data, ElemU16); err != nil {
		return nil, err
	}
	out, _, err := ReadU16Array(data, 0, int(count))
	return out, err
}

// DecodeI16Channel interprets data as count little-endian int16 values.
func DecodeI16Channel(count uint32, data []byte) ([]int16, error) {
	if err := checkChannelLength(count, data, ElemI16); err != nil {
		return nil, err
	}
	u16, _, err := ReadU16Array(data, 0, int(count))
	if err != nil {
		return nil, err
	}
	out := make([]int16, len(u16))
	for i, v := range u16 {
		out[i] = int16(v)
	}
	return out, nil
}

// DecodeU8Channel interprets data as count raw bytes.
func DecodeU8Channel(count uint32, data []byte) ([]uint8, error) {
	if err := checkChannelLength(count, data, ElemU8); err != nil {
		return nil, err
	}
	out := make([]uint8, count)
	copy(out, data)
	return out, nil
}
