package scansegment

import (
	"github.com/samber/lo"

	"github.com/sixy6e/go-scansegment/decode"
)

// QualityInfo summarizes a batch of decoded segment records the way a
// sanity check over a receive run would: beam-count consistency and
// duplicate segment counters, rather than anything about the wire bytes
// themselves (the framer and envelope validator already rejected those).
type QualityInfo struct {
	Min_Max_Beams               [2]uint32
	Consistent_Beam_Counts      bool
	Duplicate_Segment_Counters  []uint64
	Consistent_Segment_Counters bool
}

// Summarize computes QualityInfo over a slice of decoded segment records,
// typically the output of one or more Receiver.ReceiveSegments calls.
func Summarize(records []*decode.SegmentRecord) QualityInfo {
	var qa QualityInfo
	if len(records) == 0 {
		return qa
	}

	var beamCounts []uint32
	segmentCounters := make([]uint64, len(records))

	for i, rec := range records {
		segmentCounters[i] = rec.SegmentCounter

		for _, m := range rec.Modules {
			beamCounts = append(beamCounts, m.NumBeams)
		}
		for _, l := range rec.Layers {
			beamCounts = append(beamCounts, l.BeamCount)
		}
	}

	if len(beamCounts) > 0 {
		maxBeams := lo.Max(beamCounts)
		minBeams := lo.Min(beamCounts)
		qa.Min_Max_Beams = [2]uint32{minBeams, maxBeams}
		qa.Consistent_Beam_Counts = minBeams == maxBeams
	}

	qa.Duplicate_Segment_Counters = lo.FindDuplicates(segmentCounters)

	// a run with no duplicates reduces to its own unique set under union
	unique := lo.Union(segmentCounters)
	qa.Consistent_Segment_Counters = len(unique) == len(segmentCounters)

	return qa
}
