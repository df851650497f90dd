package scansegment

import (
	"fmt"

	"github.com/sixy6e/go-scansegment/decode"
)

// ValidateCompactEnvelope checks a full Compact telegram (start marker
// through the trailing CRC) and returns the payload to hand to
// decode.ParseCompact: everything up to, but excluding, the CRC.
func ValidateCompactEnvelope(telegram []byte) ([]byte, error) {
	if !hasStartMarker(telegram) {
		return nil, decode.ErrInvalidStartMarker
	}
	if len(telegram) < 8 {
		return nil, decode.ErrTruncated
	}

	bodyEnd := len(telegram) - 4
	wantCrc, _, err := decode.ReadU32(telegram, bodyEnd)
	if err != nil {
		return nil, err
	}

	got := crc32IEEE(telegram[:bodyEnd])
	if got != wantCrc {
		return nil, fmt.Errorf("%w: computed 0x%08x, wire 0x%08x", decode.ErrCrcMismatch, got, wantCrc)
	}

	return telegram[:bodyEnd], nil
}

// ValidateMsgPackEnvelope checks a full MsgPack telegram (start marker,
// u32 length, MsgPack body, trailing CRC) and returns the MsgPack body to
// hand to decode.ParseMsgPack.
func ValidateMsgPackEnvelope(telegram []byte) ([]byte, error) {
	if !hasStartMarker(telegram) {
		return nil, decode.ErrInvalidStartMarker
	}
	if len(telegram) < 12 {
		return nil, decode.ErrTruncated
	}

	declared, _, err := decode.ReadU32(telegram, 4)
	if err != nil {
		return nil, err
	}

	bodyEnd := len(telegram) - 4
	body := telegram[8:bodyEnd]
	if uint32(len(body)) != declared {
		return nil, fmt.Errorf("%w: declared %d, body is %d bytes", decode.ErrLengthMismatch, declared, len(body))
	}

	wantCrc, _, err := decode.ReadU32(telegram, bodyEnd)
	if err != nil {
		return nil, err
	}

	got := crc32IEEE(body)
	if got != wantCrc {
		return nil, fmt.Errorf("%w: computed 0x%08x, wire 0x%08x", decode.ErrCrcMismatch, got, wantCrc)
	}

	return body, nil
}
