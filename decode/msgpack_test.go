package decode

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func f32Bytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(v))
	}
	return out
}

func encodeChannel(enc *msgpack.Encoder, count int, data []byte) {
	mustNil(enc.EncodeMapLen(2))
	mustNil(enc.EncodeUint64(uint64(TagNumOfElems)))
	mustNil(enc.EncodeUint64(uint64(count)))
	mustNil(enc.EncodeUint64(uint64(TagData)))
	mustNil(enc.EncodeBytes(data))
}

func mustNil(err error) {
	if err != nil {
		panic(err)
	}
}

// TestParseMsgPackSingleLayer encodes a single-layer telegram body directly
// with the library's low-level encoder, using integer tag keys the way the
// wire format actually does (vmihailenco's generic interface{} path would
// coerce these to strings, which is exactly why ParseMsgPack never uses it).
func TestParseMsgPackSingleLayer(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	mustNil(enc.EncodeMapLen(8))
	mustNil(enc.EncodeUint64(uint64(TagAvailability)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagFrameNumber)))
	mustNil(enc.EncodeUint64(999))
	mustNil(enc.EncodeUint64(uint64(TagSegmentCounter)))
	mustNil(enc.EncodeUint64(666))
	mustNil(enc.EncodeUint64(uint64(TagSenderID)))
	mustNil(enc.EncodeUint64(555))
	mustNil(enc.EncodeUint64(uint64(TagTelegramCounter)))
	mustNil(enc.EncodeUint64(333))
	mustNil(enc.EncodeUint64(uint64(TagTimestampTransmit)))
	mustNil(enc.EncodeUint64(444))
	mustNil(enc.EncodeUint64(uint64(TagLayerID)))
	mustNil(enc.EncodeUint64(0))
	mustNil(enc.EncodeUint64(uint64(TagSegmentData)))
	mustNil(enc.EncodeArrayLen(1))

	mustNil(enc.EncodeMapLen(10))
	mustNil(enc.EncodeUint64(uint64(TagTimestampStart)))
	mustNil(enc.EncodeUint64(1000))
	mustNil(enc.EncodeUint64(uint64(TagTimestampStop)))
	mustNil(enc.EncodeUint64(2000))
	mustNil(enc.EncodeUint64(uint64(TagThetaStart)))
	mustNil(enc.EncodeFloat32(0))
	mustNil(enc.EncodeUint64(uint64(TagThetaStop)))
	mustNil(enc.EncodeFloat32(degToRad(9)))
	mustNil(enc.EncodeUint64(uint64(TagScanNumber)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagModuleID)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagBeamCount)))
	mustNil(enc.EncodeUint64(3))
	mustNil(enc.EncodeUint64(uint64(TagEchoCount)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagChannelPhi)))
	encodeChannel(enc, 1, f32Bytes(0))
	mustNil(enc.EncodeUint64(uint64(TagDistValues)))
	mustNil(enc.EncodeArrayLen(1))
	encodeChannel(enc, 3, f32Bytes(1, 2, 3))

	rec, err := ParseMsgPack(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, FormatMsgPack, rec.Format)
	assert.Equal(t, uint64(333), rec.TelegramCounter)
	assert.Equal(t, uint64(444), rec.TimestampTransmit)
	assert.Equal(t, uint64(666), rec.SegmentCounter)
	assert.Equal(t, uint64(999), rec.FrameNumber)
	assert.Equal(t, uint32(555), rec.SenderID)
	assert.Equal(t, uint8(1), rec.Availability)

	require.Len(t, rec.Layers, 1)
	layer := rec.Layers[0]
	assert.Equal(t, uint32(3), layer.BeamCount)
	assert.Equal(t, uint32(1), layer.EchoCount)
	assert.InDelta(t, 0, layer.Phi, 1e-6)
	assert.InDelta(t, degToRad(9), layer.ThetaStop, 1e-6)

	require.Len(t, layer.SegmentData.Distance, 1)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, toFloat64(layer.SegmentData.Distance[0]), 1e-6)
	assert.Nil(t, layer.SegmentData.Rssi)
	assert.Nil(t, layer.SegmentData.Properties)
}

func TestParseMsgPackMissingDistValuesFails(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	mustNil(enc.EncodeMapLen(8))
	mustNil(enc.EncodeUint64(uint64(TagAvailability)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagFrameNumber)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagSegmentCounter)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagSenderID)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagTelegramCounter)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagTimestampTransmit)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagLayerID)))
	mustNil(enc.EncodeUint64(0))
	mustNil(enc.EncodeUint64(uint64(TagSegmentData)))
	mustNil(enc.EncodeArrayLen(1))

	mustNil(enc.EncodeMapLen(9))
	mustNil(enc.EncodeUint64(uint64(TagTimestampStart)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagTimestampStop)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagThetaStart)))
	mustNil(enc.EncodeFloat32(0))
	mustNil(enc.EncodeUint64(uint64(TagThetaStop)))
	mustNil(enc.EncodeFloat32(0))
	mustNil(enc.EncodeUint64(uint64(TagScanNumber)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagModuleID)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagBeamCount)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagEchoCount)))
	mustNil(enc.EncodeUint64(1))
	mustNil(enc.EncodeUint64(uint64(TagChannelPhi)))
	encodeChannel(enc, 1, f32Bytes(0))
	// dist_values omitted.

	_, err := ParseMsgPack(buf.Bytes())
	assert.ErrorIs(t, err, ErrMissingField)
}
