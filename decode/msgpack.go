package decode

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack wire-format leader bytes this decoder cares about. The generic
// interface{} decode path of vmihailenco/msgpack/v5 is deliberately not
// used here: it coerces non-string map keys to strings, which would lose
// the integer keyword tags before RewriteTags ever sees them. Classifying
// the leader byte ourselves and driving the low-level Decoder keeps map
// keys as the small integers the wire format actually uses.
const (
	codeNil     = 0xc0
	codeFalse   = 0xc2
	codeTrue    = 0xc3
	codeBin8    = 0xc4
	codeBin16   = 0xc5
	codeBin32   = 0xc6
	codeFloat32 = 0xca
	codeFloat64 = 0xcb
	codeUint8   = 0xcc
	codeUint16  = 0xcd
	codeUint32  = 0xce
	codeUint64  = 0xcf
	codeInt8    = 0xd0
	codeInt16   = 0xd1
	codeInt32   = 0xd2
	codeInt64   = 0xd3
	codeStr8    = 0xd9
	codeStr16   = 0xda
	codeStr32   = 0xdb
	codeArray16 = 0xdc
	codeArray32 = 0xdd
	codeMap16   = 0xde
	codeMap32   = 0xdf
)

// decodeNode decodes the next MsgPack value off dec into a Node, recursing
// into maps and sequences. Map keys are always decoded as tags; a
// non-integer key is a TypeMismatch.
func decodeNode(dec *msgpack.Decoder) (*Node, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case code == codeNil:
		if err := dec.DecodeNil(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeNil}, nil

	case code == codeFalse || code == codeTrue:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeBool, Bool: b}, nil

	case code <= 0x7f, code >= 0xe0, code == codeUint8, code == codeUint16, code == codeUint32, code == codeUint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUint, Uint: u}, nil

	case code == codeInt8, code == codeInt16, code == codeInt32, code == codeInt64:
		i, err := dec.DecodeInt64()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeInt, Int: i}, nil

	case code == codeFloat32:
		f, err := dec.DecodeFloat32()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeFloat, Float: float64(f)}, nil

	case code == codeFloat64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeFloat, Float: f}, nil

	case (code >= 0xa0 && code <= 0xbf) || code == codeStr8 || code == codeStr16 || code == codeStr32:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeStr, Str: s}, nil

	case code == codeBin8 || code == codeBin16 || code == codeBin32:
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeBytes, Bytes: b}, nil

	case (code >= 0x90 && code <= 0x9f) || code == codeArray16 || code == codeArray32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		seq := make([]*Node, n)
		for i := 0; i < n; i++ {
			child, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			seq[i] = child
		}
		return &Node{Kind: NodeSeq, Seq: seq}, nil

	case (code >= 0x80 && code <= 0x8f) || code == codeMap16 || code == codeMap32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		entries := make([]MapEntry, n)
		for i := 0; i < n; i++ {
			key, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			tag, err := key.AsTag()
			if err != nil {
				return nil, err
			}
			value, err := decodeNode(dec)
			if err != nil {
				return nil, err
			}
			entries[i] = MapEntry{KeyTag: tag, Value: value}
		}
		return &Node{Kind: NodeMap, Entries: entries}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported msgpack leader byte 0x%02x", ErrTypeMismatch, code)
	}
}

func scalarUint(n *Node, name string) (uint64, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch n.Kind {
	case NodeUint:
		return n.Uint, nil
	case NodeInt:
		if n.Int < 0 {
			return 0, fmt.Errorf("%w: %s is negative", ErrTypeMismatch, name)
		}
		return uint64(n.Int), nil
	default:
		return 0, fmt.Errorf("%w: %s expected an integer, got node kind %d", ErrTypeMismatch, name, n.Kind)
	}
}

func scalarFloat(n *Node, name string) (float32, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch n.Kind {
	case NodeFloat:
		return float32(n.Float), nil
	case NodeUint:
		return float32(n.Uint), nil
	case NodeInt:
		return float32(n.Int), nil
	default:
		return 0, fmt.Errorf("%w: %s expected a number, got node kind %d", ErrTypeMismatch, name, n.Kind)
	}
}

// channelBytes pulls the num_of_elems/data pair out of a rewritten channel
// map node, ready for the generic channel decoders in channel.go.
func channelBytes(n *Node, name string) (uint32, []byte, error) {
	if n == nil {
		return 0, nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	if n.Kind != NodeMap {
		return 0, nil, fmt.Errorf("%w: %s must be a map", ErrTypeMismatch, name)
	}

	count, err := scalarUint(n.Get("num_of_elems"), name+".num_of_elems")
	if err != nil {
		return 0, nil, err
	}

	data := n.Get("data")
	if data == nil {
		return 0, nil, fmt.Errorf("%w: %s.data", ErrMissingField, name)
	}
	if data.Kind != NodeBytes {
		return 0, nil, fmt.Errorf("%w: %s.data must be bytes", ErrTypeMismatch, name)
	}

	return uint32(count), data.Bytes, nil
}

func decodeF32ChannelNode(n *Node, name string) ([]float32, error) {
	count, data, err := channelBytes(n, name)
	if err != nil {
		return nil, err
	}
	return DecodeF32Channel(count, data)
}

func decodeU16ChannelNode(n *Node, name string) ([]uint16, error) {
	count, data, err := channelBytes(n, name)
	if err != nil {
		return nil, err
	}
	return DecodeU16Channel(count, data)
}

func decodeU8ChannelNode(n *Node, name string) ([]uint8, error) {
	count, data, err := channelBytes(n, name)
	if err != nil {
		return nil, err
	}
	return DecodeU8Channel(count, data)
}

// ParseMsgPack decodes a CRC-validated MsgPack payload (the body between
// the length prefix and the trailing CRC) into a SegmentRecord.
func ParseMsgPack(payload []byte) (*SegmentRecord, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))

	tree, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if tree.Kind != NodeMap {
		return nil, fmt.Errorf("%w: telegram root must be a map", ErrTypeMismatch)
	}

	root, err := RewriteTags(tree)
	if err != nil {
		return nil, err
	}

	availability, err := scalarUint(root.Get("availability"), "availability")
	if err != nil {
		return nil, err
	}
	frameNumber, err := scalarUint(root.Get("frame_number"), "frame_number")
	if err != nil {
		return nil, err
	}
	segmentCounter, err := scalarUint(root.Get("segment_counter"), "segment_counter")
	if err != nil {
		return nil, err
	}
	senderID, err := scalarUint(root.Get("sender_id"), "sender_id")
	if err != nil {
		return nil, err
	}
	telegramCounter, err := scalarUint(root.Get("telegram_counter"), "telegram_counter")
	if err != nil {
		return nil, err
	}
	timestampTransmit, err := scalarUint(root.Get("timestamp_transmit"), "timestamp_transmit")
	if err != nil {
		return nil, err
	}
	layerID, err := scalarUint(root.Get("layer_id"), "layer_id")
	if err != nil {
		return nil, err
	}

	segmentData := root.Get("segment_data")
	if segmentData == nil {
		return nil, fmt.Errorf("%w: segment_data", ErrMissingField)
	}
	if segmentData.Kind != NodeSeq {
		return nil, fmt.Errorf("%w: segment_data must be a sequence", ErrTypeMismatch)
	}

	rec := &SegmentRecord{
		Format:            FormatMsgPack,
		Availability:       uint8(availability),
		FrameNumber:        frameNumber,
		SegmentCounter:     segmentCounter,
		SenderID:           uint32(senderID),
		TelegramCounter:    telegramCounter,
		TimestampTransmit:  timestampTransmit,
		LayerID:            uint32(layerID),
	}

	for _, entry := range segmentData.Seq {
		layer, err := parseMsgPackLayer(entry)
		if err != nil {
			return nil, err
		}
		rec.Layers = append(rec.Layers, *layer)
	}

	return rec, nil
}

func parseMsgPackLayer(n *Node) (*Layer, error) {
	if n == nil || n.Kind != NodeMap {
		return nil, fmt.Errorf("%w: segment_data entry must be a map", ErrTypeMismatch)
	}

	timestampStart, err := scalarUint(n.Get("timestamp_start"), "timestamp_start")
	if err != nil {
		return nil, err
	}
	timestampStop, err := scalarUint(n.Get("timestamp_stop"), "timestamp_stop")
	if err != nil {
		return nil, err
	}
	thetaStart, err := scalarFloat(n.Get("theta_start"), "theta_start")
	if err != nil {
		return nil, err
	}
	thetaStop, err := scalarFloat(n.Get("theta_stop"), "theta_stop")
	if err != nil {
		return nil, err
	}
	scanNumber, err := scalarUint(n.Get("scan_number"), "scan_number")
	if err != nil {
		return nil, err
	}
	moduleID, err := scalarUint(n.Get("module_id"), "module_id")
	if err != nil {
		return nil, err
	}
	beamCount, err := scalarUint(n.Get("beam_count"), "beam_count")
	if err != nil {
		return nil, err
	}
	echoCount, err := scalarUint(n.Get("echo_count"), "echo_count")
	if err != nil {
		return nil, err
	}

	phiChannel, err := decodeF32ChannelNode(n.Get("channel_phi"), "channel_phi")
	if err != nil {
		return nil, err
	}
	if len(phiChannel) == 0 {
		return nil, fmt.Errorf("%w: channel_phi has no elements", ErrMissingField)
	}

	distValues := n.Get("dist_values")
	if distValues == nil {
		return nil, fmt.Errorf("%w: dist_values", ErrMissingField)
	}
	if distValues.Kind != NodeSeq {
		return nil, fmt.Errorf("%w: dist_values must be a sequence", ErrTypeMismatch)
	}
	distance := make([][]float32, len(distValues.Seq))
	for i, c := range distValues.Seq {
		ch, err := decodeF32ChannelNode(c, "dist_values[]")
		if err != nil {
			return nil, err
		}
		distance[i] = ch
	}

	var rssi [][]uint16
	if rssiValues := n.Get("rssi_values"); rssiValues != nil {
		if rssiValues.Kind != NodeSeq {
			return nil, fmt.Errorf("%w: rssi_values must be a sequence", ErrTypeMismatch)
		}
		rssi = make([][]uint16, len(rssiValues.Seq))
		for i, c := range rssiValues.Seq {
			ch, err := decodeU16ChannelNode(c, "rssi_values[]")
			if err != nil {
				return nil, err
			}
			rssi[i] = ch
		}
	}

	var channelTheta []float32
	if node := n.Get("channel_theta"); node != nil {
		channelTheta, err = decodeF32ChannelNode(node, "channel_theta")
		if err != nil {
			return nil, err
		}
	}

	var properties []uint8
	if node := n.Get("properties_values"); node != nil {
		if node.Kind != NodeSeq {
			return nil, fmt.Errorf("%w: properties_values must be a sequence", ErrTypeMismatch)
		}
		if len(node.Seq) != 1 {
			return nil, fmt.Errorf("%w: properties_values must have exactly one entry, got %d", ErrTypeMismatch, len(node.Seq))
		}
		properties, err = decodeU8ChannelNode(node.Seq[0], "properties_values[0]")
		if err != nil {
			return nil, err
		}
	}

	layer := &Layer{
		TimestampStart: timestampStart,
		TimestampStop:  timestampStop,
		ThetaStart:     thetaStart,
		ThetaStop:      thetaStop,
		ScanNumber:     uint32(scanNumber),
		ModuleID:       uint32(moduleID),
		BeamCount:      uint32(beamCount),
		EchoCount:      uint32(echoCount),
		Phi:            phiChannel[0],
		SegmentData: SegmentData{
			Distance:     distance,
			Rssi:         rssi,
			ChannelTheta: channelTheta,
			Properties:   properties,
		},
	}

	return layer, nil
}
