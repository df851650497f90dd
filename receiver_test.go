package scansegment

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalCompactModule builds the smallest valid module: one layer,
// one beam, one echo, distance only.
func buildMinimalCompactModule(segmentCounter, frameNumber uint64, senderID uint32, rawDistance uint16) []byte {
	buf := make([]byte, 0, 96)
	buf = binary.LittleEndian.AppendUint64(buf, segmentCounter)
	buf = binary.LittleEndian.AppendUint64(buf, frameNumber)
	buf = binary.LittleEndian.AppendUint32(buf, senderID)
	buf = binary.LittleEndian.AppendUint32(buf, 1) // num_layers
	buf = binary.LittleEndian.AppendUint32(buf, 1) // num_beams
	buf = binary.LittleEndian.AppendUint32(buf, 1) // num_echos

	buf = binary.LittleEndian.AppendUint64(buf, 10) // timestamp_start
	buf = binary.LittleEndian.AppendUint64(buf, 20) // timestamp_stop
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0))   // phi
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0))   // theta_start
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.1)) // theta_stop
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(1.0)) // distance_scaling_factor

	buf = binary.LittleEndian.AppendUint32(buf, 0) // next_module_size
	buf = append(buf, 1)                           // availability
	buf = append(buf, 0x01)                        // data_content_echos: distance only
	buf = append(buf, 0x00)                         // data_content_beams: none
	buf = append(buf, 0)                            // reserved

	buf = binary.LittleEndian.AppendUint16(buf, rawDistance)

	return buf
}

func buildMinimalCompactTelegram(t *testing.T, telegramCounter, segmentCounter, frameNumber uint64) []byte {
	t.Helper()

	module := buildMinimalCompactModule(segmentCounter, frameNumber, 1, 7)

	body := append([]byte{}, startMarker[:]...)
	body = binary.LittleEndian.AppendUint32(body, 1) // command_id
	body = binary.LittleEndian.AppendUint64(body, telegramCounter)
	body = binary.LittleEndian.AppendUint64(body, 0) // timestamp_transmit
	body = binary.LittleEndian.AppendUint32(body, 1) // version
	body = binary.LittleEndian.AppendUint32(body, uint32(len(module)))
	body = append(body, module...)

	crc := crc32IEEE(body)
	return binary.LittleEndian.AppendUint32(body, crc)
}

type fakeTransport struct {
	chunks [][]byte
	idx    int
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, string) {
	if f.idx >= len(f.chunks) {
		return nil, ""
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, "fake"
}

func (f *fakeTransport) NoError() bool            { return true }
func (f *fakeTransport) LastErrorCode() int        { return 0 }
func (f *fakeTransport) LastErrorMessage() string  { return "" }

func TestReceiverReceivesSegmentsInOrder(t *testing.T) {
	t1 := buildMinimalCompactTelegram(t, 1, 100, 1)
	t2 := buildMinimalCompactTelegram(t, 2, 101, 1)

	transport := &fakeTransport{chunks: [][]byte{append(append([]byte{}, t1...), t2...)}}
	receiver := NewCompactReceiver(transport)

	segments, frameNumbers, segmentCounters := receiver.ReceiveSegments(context.Background(), 2)

	require.Len(t, segments, 2)
	assert.Equal(t, uint64(1), segments[0].TelegramCounter)
	assert.Equal(t, uint64(2), segments[1].TelegramCounter)
	assert.Equal(t, []uint64{1, 1}, frameNumbers)
	assert.Equal(t, []uint64{100, 101}, segmentCounters)
	assert.True(t, receiver.NoError())

	received, failed, segRecv := receiver.Counters()
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, uint64(0), failed)
	assert.Equal(t, uint64(2), segRecv)
}

// TestReceiverRecoversFromCrcFailure is scenario E.
func TestReceiverRecoversFromCrcFailure(t *testing.T) {
	good1 := buildMinimalCompactTelegram(t, 1, 100, 1)
	bad := buildMinimalCompactTelegram(t, 2, 101, 1)
	bad[len(bad)-1] ^= 0xff
	good2 := buildMinimalCompactTelegram(t, 3, 102, 1)

	stream := append(append(append([]byte{}, good1...), bad...), good2...)
	transport := &fakeTransport{chunks: [][]byte{stream}}
	receiver := NewCompactReceiver(transport)

	segments, _, segmentCounters := receiver.ReceiveSegments(context.Background(), 2)

	require.Len(t, segments, 2)
	assert.Equal(t, []uint64{100, 102}, segmentCounters)
}

func TestReceiverStopsOnEmptyTransport(t *testing.T) {
	transport := &fakeTransport{chunks: nil}
	receiver := NewCompactReceiver(transport)

	segments, _, _ := receiver.ReceiveSegments(context.Background(), 5)
	assert.Empty(t, segments)
}

func TestReceiverCloseIsNoopWithoutCloser(t *testing.T) {
	transport := &fakeTransport{}
	receiver := NewCompactReceiver(transport)
	assert.NoError(t, receiver.Close())
}
