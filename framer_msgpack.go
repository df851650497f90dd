package scansegment

import (
	"bytes"
	"log"

	"github.com/sixy6e/go-scansegment/decode"
)

type msgpackState int

const (
	msgpackWaitStx msgpackState = iota
	msgpackWaitSize
	msgpackWaitCrc
)

// MsgPackFramer recovers discrete, CRC-validated MsgPack telegrams from an
// arbitrarily chunked byte stream using the explicit length prefix, rather
// than chaining module sizes the way the Compact framer does.
type MsgPackFramer struct {
	buf   []byte
	state msgpackState

	msgpackSize uint32

	maxReasonableSize uint32
}

// NewMsgPackFramer constructs a framer using DefaultMaxReasonableSize as
// its oversized-payload warning threshold.
func NewMsgPackFramer() *MsgPackFramer {
	return NewMsgPackFramerWithOptions(DefaultMaxReasonableSize)
}

// NewMsgPackFramerWithOptions constructs a framer with an explicit
// oversized-payload warning threshold.
func NewMsgPackFramerWithOptions(maxReasonableSize uint32) *MsgPackFramer {
	return &MsgPackFramer{state: msgpackWaitStx, maxReasonableSize: maxReasonableSize}
}

// Feed appends newly arrived bytes and extracts every telegram that is now
// fully buffered and CRC-valid.
func (f *MsgPackFramer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var telegrams [][]byte

	for {
		switch f.state {
		case msgpackWaitStx:
			idx := bytes.Index(f.buf, startMarker[:])
			if idx < 0 {
				if len(f.buf) > 3 {
					f.buf = f.buf[len(f.buf)-3:]
				}
				return telegrams, nil
			}
			f.buf = f.buf[idx:]
			f.state = msgpackWaitSize

		case msgpackWaitSize:
			if len(f.buf) < 8 {
				return telegrams, nil
			}
			size, _, err := decode.ReadU32(f.buf, 4)
			if err != nil {
				return telegrams, err
			}
			if size == 0 {
				f.buf = f.buf[4:]
				f.state = msgpackWaitStx
				continue
			}
			if size > f.maxReasonableSize {
				log.Printf("scansegment: msgpack framer: payload size %d exceeds %d bytes, honoring anyway",
					size, f.maxReasonableSize)
			}
			f.msgpackSize = size
			f.state = msgpackWaitCrc

		case msgpackWaitCrc:
			total := 8 + int(f.msgpackSize)
			if len(f.buf) < total+4 {
				return telegrams, nil
			}
			wantCrc, _, err := decode.ReadU32(f.buf, total)
			if err != nil {
				return telegrams, err
			}
			body := f.buf[8:total]
			got := crc32IEEE(body)
			if got != wantCrc {
				log.Printf("scansegment: msgpack framer: crc mismatch (computed 0x%08x, wire 0x%08x), resyncing",
					got, wantCrc)
				f.buf = f.buf[4:]
				f.state = msgpackWaitStx
				continue
			}

			telegram := make([]byte, total+4)
			copy(telegram, f.buf[:total+4])
			telegrams = append(telegrams, telegram)

			f.buf = f.buf[total+4:]
			f.state = msgpackWaitStx
		}
	}
}
