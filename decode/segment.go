package decode

// Format distinguishes which wire encoding produced a SegmentRecord.
type Format int

const (
	FormatCompact Format = iota
	FormatMsgPack
)

func (f Format) String() string {
	if f == FormatMsgPack {
		return "msgpack"
	}
	return "compact"
}

// SegmentData holds the beam-resolved measurements of one layer, common to
// both wire encodings. Distance is always present; the rest are optional
// depending on the content flags (Compact) or which channels the sender
// chose to include (MsgPack).
type SegmentData struct {
	Distance     [][]float32 // [num_echos][num_beams], physical units
	Rssi         [][]uint16  // [num_echos][num_beams], optional
	ChannelTheta []float32   // [num_beams] radians, optional
	Properties   []uint8     // [num_beams], optional
}

// Module is one Compact physical group: a set of layers sharing a segment
// and sender, with the beam data for each layer held in SegmentData.
type Module struct {
	SegmentCounter uint64
	FrameNumber    uint64
	SenderID       uint32
	NumLayers      uint32
	NumBeams       uint32
	NumEchos       uint32

	TimestampStart []uint64 // len == NumLayers
	TimestampStop  []uint64
	Phi            []float32
	ThetaStart     []float32
	ThetaStop      []float32

	DistanceScalingFactor float32
	Availability          uint8
	DataContentEchos      uint8
	DataContentBeams      uint8

	HasDistance   bool
	HasRssi       bool
	HasProperties bool
	HasTheta      bool

	// SegmentData holds one entry per layer (len == NumLayers), since the
	// Compact wire format multiplexes every layer's beam data together.
	SegmentData []SegmentData
}

// Layer is one MsgPack scan: a single elevation sweep at a constant Phi.
type Layer struct {
	TimestampStart uint64
	TimestampStop  uint64
	ThetaStart     float32
	ThetaStop      float32
	ScanNumber     uint32
	ModuleID       uint32
	BeamCount      uint32
	EchoCount      uint32
	Phi            float32

	SegmentData SegmentData
}

// SegmentRecord is the canonical decoded telegram, populated by either
// telegram parser. CommandID and Version are only meaningful for Compact;
// Modules is populated by the Compact parser, Layers by the MsgPack parser.
type SegmentRecord struct {
	Format Format

	TelegramCounter   uint64
	TimestampTransmit uint64
	CommandID         uint32
	Version           uint32

	Availability   uint8
	SenderID       uint32
	FrameNumber    uint64
	SegmentCounter uint64
	LayerID        uint32 // MsgPack only

	Modules []Module
	Layers  []Layer
}
