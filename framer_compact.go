package scansegment

import (
	"bytes"
	"encoding/binary"
	"log"

	"github.com/sixy6e/go-scansegment/decode"
)

// DefaultMaxReasonableSize bounds what a next_module_size field can
// declare before the framer logs a warning. The value is advisory only:
// an oversized module is still honored, never rejected.
const DefaultMaxReasonableSize = 5 * 1024 * 1024

// CompactDelimiter is a (start marker, command id) pair the Compact framer
// treats as a resync boundary. The wire format only ever emits command id
// 1 today; this is a table rather than a single constant so a future
// protocol variant with additional command ids doesn't require reworking
// the framer.
type CompactDelimiter struct {
	CommandID uint32
}

func (d CompactDelimiter) pattern() []byte {
	b := make([]byte, 8)
	copy(b, startMarker[:])
	binary.LittleEndian.PutUint32(b[4:], d.CommandID)
	return b
}

// CompactDelimiters is the default resync table: start marker followed by
// the documented Compact command id.
var CompactDelimiters = []CompactDelimiter{{CommandID: 1}}

type compactState int

const (
	compactWaitStx compactState = iota
	compactWaitHeader
	compactWaitModuleData
	compactWaitCrc
)

// CompactFramer recovers discrete, CRC-validated Compact telegrams from an
// arbitrarily chunked byte stream. It owns no resources beyond its
// internal buffer and is meant to be exclusively owned by one Receiver.
type CompactFramer struct {
	buf   []byte
	state compactState

	payloadSize      uint32 // cumulative size of all modules seen so far
	moduleMetaCursor int    // offset of the current module's metadata

	maxReasonableSize uint32
	delimiters        [][]byte
}

// NewCompactFramer constructs a framer using CompactDelimiters and
// DefaultMaxReasonableSize.
func NewCompactFramer() *CompactFramer {
	return NewCompactFramerWithOptions(CompactDelimiters, DefaultMaxReasonableSize)
}

// NewCompactFramerWithOptions constructs a framer with an explicit
// delimiter table and oversized-module warning threshold.
func NewCompactFramerWithOptions(delims []CompactDelimiter, maxReasonableSize uint32) *CompactFramer {
	patterns := make([][]byte, len(delims))
	for i, d := range delims {
		patterns[i] = d.pattern()
	}
	return &CompactFramer{
		state:             compactWaitStx,
		maxReasonableSize: maxReasonableSize,
		delimiters:        patterns,
	}
}

func (f *CompactFramer) findDelimiter() int {
	best := -1
	for _, pattern := range f.delimiters {
		idx := bytes.Index(f.buf, pattern)
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

// Feed appends newly arrived bytes and extracts every telegram that is now
// fully buffered and CRC-valid. Bytes that don't yet form a complete
// telegram are retained for the next call.
func (f *CompactFramer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var telegrams [][]byte

	for {
		switch f.state {
		case compactWaitStx:
			idx := f.findDelimiter()
			if idx < 0 {
				if len(f.buf) > 7 {
					f.buf = f.buf[len(f.buf)-7:]
				}
				return telegrams, nil
			}
			f.buf = f.buf[idx:]
			f.state = compactWaitHeader

		case compactWaitHeader:
			if len(f.buf) < 32 {
				return telegrams, nil
			}
			firstModuleSize, _, err := decode.ReadU32(f.buf, 28)
			if err != nil {
				return telegrams, err
			}
			if firstModuleSize == 0 {
				f.buf = f.buf[4:]
				f.state = compactWaitStx
				continue
			}
			f.payloadSize = firstModuleSize
			f.moduleMetaCursor = 32
			f.state = compactWaitModuleData

		case compactWaitModuleData:
			if len(f.buf) < 32+int(f.payloadSize) {
				return telegrams, nil
			}
			if f.moduleMetaCursor+20+4 > len(f.buf) {
				return telegrams, nil
			}
			numLayers, _, err := decode.ReadU32(f.buf, f.moduleMetaCursor+20)
			if err != nil {
				return telegrams, err
			}
			nextSizeOffset := f.moduleMetaCursor + 36 + 28*int(numLayers)
			if len(f.buf) < nextSizeOffset+4 {
				return telegrams, nil
			}
			nextModuleSize, _, err := decode.ReadU32(f.buf, nextSizeOffset)
			if err != nil {
				return telegrams, err
			}
			if nextModuleSize > f.maxReasonableSize {
				log.Printf("scansegment: compact framer: next_module_size %d exceeds %d bytes, honoring anyway",
					nextModuleSize, f.maxReasonableSize)
			}
			if nextModuleSize == 0 {
				f.state = compactWaitCrc
			} else {
				f.moduleMetaCursor = 32 + int(f.payloadSize)
				f.payloadSize += nextModuleSize
			}

		case compactWaitCrc:
			total := 32 + int(f.payloadSize)
			if len(f.buf) < total+4 {
				return telegrams, nil
			}
			wantCrc, _, err := decode.ReadU32(f.buf, total)
			if err != nil {
				return telegrams, err
			}
			got := crc32IEEE(f.buf[:total])
			if got != wantCrc {
				log.Printf("scansegment: compact framer: crc mismatch (computed 0x%08x, wire 0x%08x), resyncing",
					got, wantCrc)
				f.buf = f.buf[4:]
				f.state = compactWaitStx
				continue
			}

			telegram := make([]byte, total+4)
			copy(telegram, f.buf[:total+4])
			telegrams = append(telegrams, telegram)

			f.buf = f.buf[total+4:]
			f.state = compactWaitStx
		}
	}
}
