package scansegment

import (
	"context"
	"io"
	"log"

	"github.com/sixy6e/go-scansegment/decode"
)

// frameFeeder is the shape both CompactFramer and MsgPackFramer satisfy.
type frameFeeder interface {
	Feed(data []byte) ([][]byte, error)
}

// Receiver pulls byte chunks from a Transport, validates each telegram's
// envelope, invokes the format-specific parser, and accumulates segment
// records. One Receiver exclusively owns one Transport and one framer for
// its lifetime.
type Receiver struct {
	transport Transport
	format    decode.Format
	framer    frameFeeder

	validateEnvelope func([]byte) ([]byte, error)
	parse            func([]byte) (*decode.SegmentRecord, error)

	telegramsReceived uint64
	telegramsFailed   uint64
	segmentsReceived  uint64

	noError          bool
	lastErrorCode    int
	lastErrorMessage string
}

// NewCompactReceiver builds a Receiver for the Compact wire encoding.
func NewCompactReceiver(transport Transport) *Receiver {
	return &Receiver{
		transport:        transport,
		format:           decode.FormatCompact,
		framer:           NewCompactFramer(),
		validateEnvelope: ValidateCompactEnvelope,
		parse:            decode.ParseCompact,
		noError:          true,
	}
}

// NewMsgPackReceiver builds a Receiver for the MsgPack wire encoding.
func NewMsgPackReceiver(transport Transport) *Receiver {
	return &Receiver{
		transport:        transport,
		format:           decode.FormatMsgPack,
		framer:           NewMsgPackFramer(),
		validateEnvelope: ValidateMsgPackEnvelope,
		parse:            decode.ParseMsgPack,
		noError:          true,
	}
}

// Format reports which wire encoding this Receiver decodes.
func (r *Receiver) Format() decode.Format {
	return r.format
}

// ReceiveSegments pulls from the transport until n segments have been
// decoded or a transport read yields nothing, returning three parallel
// sequences of equal length: the segment records, their frame numbers,
// and their segment counters. A telegram that fails envelope validation
// or parsing is logged and skipped, not fatal; a transport fault sets the
// error flag (see NoError) and ends the call with whatever was already
// accumulated. Callers must not assume the returned length equals n.
func (r *Receiver) ReceiveSegments(ctx context.Context, n int) ([]*decode.SegmentRecord, []uint64, []uint64) {
	var segments []*decode.SegmentRecord
	var frameNumbers []uint64
	var segmentCounters []uint64

	r.noError = true
	for len(segments) < n {
		data, _ := r.transport.Receive(ctx)
		if len(data) == 0 {
			if !r.transport.NoError() {
				r.noError = false
				r.lastErrorCode = r.transport.LastErrorCode()
				r.lastErrorMessage = r.transport.LastErrorMessage()
			}
			return segments, frameNumbers, segmentCounters
		}

		telegrams, err := r.framer.Feed(data)
		if err != nil {
			log.Printf("scansegment: receiver: framer error: %v", err)
			continue
		}

		for _, telegram := range telegrams {
			r.telegramsReceived++

			payload, err := r.validateEnvelope(telegram)
			if err != nil {
				log.Printf("scansegment: receiver: envelope validation failed: %v", err)
				r.telegramsFailed++
				continue
			}

			rec, err := r.parse(payload)
			if err != nil {
				log.Printf("scansegment: receiver: parse failed: %v", err)
				r.telegramsFailed++
				continue
			}

			segments = append(segments, rec)
			frameNumbers = append(frameNumbers, rec.FrameNumber)
			segmentCounters = append(segmentCounters, rec.SegmentCounter)
			r.segmentsReceived++

			if len(segments) == n {
				break
			}
		}
	}

	return segments, frameNumbers, segmentCounters
}

// NoError reports whether the underlying transport is free of faults as of
// the most recent ReceiveSegments call.
func (r *Receiver) NoError() bool { return r.noError }

// LastError returns the most recently observed transport error code and
// message. Only meaningful when NoError reports false.
func (r *Receiver) LastError() (code int, message string) {
	return r.lastErrorCode, r.lastErrorMessage
}

// Counters returns the running telegram/segment tallies for this receiver.
func (r *Receiver) Counters() (telegramsReceived, telegramsFailed, segmentsReceived uint64) {
	return r.telegramsReceived, r.telegramsFailed, r.segmentsReceived
}

// Close releases the transport handle, if the transport supports it.
func (r *Receiver) Close() error {
	if closer, ok := r.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
