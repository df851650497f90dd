package decode

import "fmt"

// Compact content-flag masks.
const (
	maskDistanceAvailable = 0x01 // data_content_echos
	maskRssiAvailable     = 0x02 // data_content_echos
	maskPropertiesAvailable = 0x01 // data_content_beams
	maskThetaAvailable      = 0x02 // data_content_beams
)

// Theta affine mapping constants: theta_rad = (raw - thetaZero) / thetaScale.
const (
	thetaZero  = 16384
	thetaScale = 5215.0
)

const compactHeaderSize = 32

// metadataFixedPrefixSize is segment_counter(8) + frame_number(8) +
// sender_id(4) + num_layers(4) + num_beams(4) + num_echos(4).
const metadataFixedPrefixSize = 32

// metadataSuffixSize is next_module_size(4) + availability(1) +
// data_content_echos(1) + data_content_beams(1) + reserved(1).
const metadataSuffixSize = 8

// ParseCompact decodes a CRC-validated Compact payload (the start marker
// through the final module, excluding the trailing CRC) into a
// SegmentRecord.
func ParseCompact(payload []byte) (*SegmentRecord, error) {
	if len(payload) < 4 || payload[0] != 0x02 || payload[1] != 0x02 || payload[2] != 0x02 || payload[3] != 0x02 {
		return nil, ErrInvalidStartMarker
	}

	offset := 4
	commandID, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, err
	}
	telegramCounter, offset, err := ReadU64(payload, offset)
	if err != nil {
		return nil, err
	}
	timestampTransmit, offset, err := ReadU64(payload, offset)
	if err != nil {
		return nil, err
	}
	version, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, err
	}
	moduleSize, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, err
	}
	if offset != compactHeaderSize {
		return nil, fmt.Errorf("%w: header decoded to %d bytes, want %d", ErrTruncated, offset, compactHeaderSize)
	}

	rec := &SegmentRecord{
		Format:            FormatCompact,
		CommandID:         commandID,
		TelegramCounter:   telegramCounter,
		TimestampTransmit: timestampTransmit,
		Version:           version,
	}

	cursor := offset
	for moduleSize > 0 {
		module, nextModuleSize, next, err := parseCompactModule(payload, cursor, moduleSize)
		if err != nil {
			return nil, err
		}

		rec.Modules = append(rec.Modules, *module)
		if len(rec.Modules) == 1 {
			rec.SegmentCounter = module.SegmentCounter
			rec.FrameNumber = module.FrameNumber
			rec.SenderID = module.SenderID
			rec.Availability = module.Availability
		}

		cursor = next
		moduleSize = nextModuleSize
	}

	if cursor != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing bytes after final module", ErrTruncated, len(payload)-cursor)
	}

	return rec, nil
}

// parseCompactModule decodes one module starting at cursor, whose declared
// byte span is declaredSize (either the header's first_module_size or the
// previous module's next_module_size). It returns the decoded module, the
// next_module_size field read from this module's own suffix, and the
// cursor just past this module.
func parseCompactModule(payload []byte, cursor int, declaredSize uint32) (*Module, uint32, int, error) {
	if err := need(payload, cursor, metadataFixedPrefixSize); err != nil {
		return nil, 0, 0, err
	}

	offset := cursor
	segmentCounter, offset, err := ReadU64(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	frameNumber, offset, err := ReadU64(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	senderID, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	numLayers, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	numBeams, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	numEchos, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	timestampStart, offset, err := ReadU64Array(payload, offset, int(numLayers))
	if err != nil {
		return nil, 0, 0, err
	}
	timestampStop, offset, err := ReadU64Array(payload, offset, int(numLayers))
	if err != nil {
		return nil, 0, 0, err
	}
	phi, offset, err := ReadF32Array(payload, offset, int(numLayers))
	if err != nil {
		return nil, 0, 0, err
	}
	thetaStart, offset, err := ReadF32Array(payload, offset, int(numLayers))
	if err != nil {
		return nil, 0, 0, err
	}
	thetaStop, offset, err := ReadF32Array(payload, offset, int(numLayers))
	if err != nil {
		return nil, 0, 0, err
	}
	distanceScalingFactor, offset, err := ReadF32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}

	nextModuleSize, offset, err := ReadU32(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	availability, offset, err := ReadU8(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	dataContentEchos, offset, err := ReadU8(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	dataContentBeams, offset, err := ReadU8(payload, offset)
	if err != nil {
		return nil, 0, 0, err
	}
	_, offset, err = ReadU8(payload, offset) // reserved: ignore-on-read, zero-on-write
	if err != nil {
		return nil, 0, 0, err
	}

	hasDistance := dataContentEchos&maskDistanceAvailable != 0
	hasRssi := dataContentEchos&maskRssiAvailable != 0
	hasProperties := dataContentBeams&maskPropertiesAvailable != 0
	hasTheta := dataContentBeams&maskThetaAvailable != 0

	if !hasDistance {
		return nil, 0, 0, ErrMissingDistance
	}

	beamDataStart := offset
	tupleSize := 2 * int(numEchos)
	if hasRssi {
		tupleSize += 2 * int(numEchos)
	}
	if hasProperties {
		tupleSize++
	}
	if hasTheta {
		tupleSize += 2
	}
	beamDataSize := int(numBeams) * int(numLayers) * tupleSize

	computedSize := uint32(metadataFixedPrefixSize+28*int(numLayers)+4+metadataSuffixSize) + uint32(beamDataSize)
	if computedSize != declaredSize {
		return nil, 0, 0, fmt.Errorf(
			"%w: module declares size %d, computed %d (num_layers=%d num_beams=%d num_echos=%d)",
			ErrTruncated, declaredSize, computedSize, numLayers, numBeams, numEchos,
		)
	}

	segData := make([]SegmentData, numLayers)
	for l := range segData {
		segData[l].Distance = make([][]float32, numEchos)
		for e := range segData[l].Distance {
			segData[l].Distance[e] = make([]float32, numBeams)
		}
		if hasRssi {
			segData[l].Rssi = make([][]uint16, numEchos)
			for e := range segData[l].Rssi {
				segData[l].Rssi[e] = make([]uint16, numBeams)
			}
		}
		if hasTheta {
			segData[l].ChannelTheta = make([]float32, numBeams)
		}
		if hasProperties {
			segData[l].Properties = make([]uint8, numBeams)
		}
	}

	pos := beamDataStart
	for beam := 0; beam < int(numBeams); beam++ {
		for layer := 0; layer < int(numLayers); layer++ {
			distances, next, err := ReadU16Array(payload, pos, int(numEchos))
			if err != nil {
				return nil, 0, 0, err
			}
			pos = next
			for e, raw := range distances {
				segData[layer].Distance[e][beam] = float32(raw) * distanceScalingFactor
			}

			if hasRssi {
				rssi, next, err := ReadU16Array(payload, pos, int(numEchos))
				if err != nil {
					return nil, 0, 0, err
				}
				pos = next
				for e, raw := range rssi {
					segData[layer].Rssi[e][beam] = raw
				}
			}

			if hasProperties {
				property, next, err := ReadU8(payload, pos)
				if err != nil {
					return nil, 0, 0, err
				}
				pos = next
				segData[layer].Properties[beam] = property
			}

			if hasTheta {
				rawTheta, next, err := ReadU16(payload, pos)
				if err != nil {
					return nil, 0, 0, err
				}
				pos = next
				segData[layer].ChannelTheta[beam] = (float32(rawTheta) - thetaZero) / thetaScale
			}
		}
	}

	module := &Module{
		SegmentCounter:        segmentCounter,
		FrameNumber:           frameNumber,
		SenderID:              senderID,
		NumLayers:             numLayers,
		NumBeams:              numBeams,
		NumEchos:              numEchos,
		TimestampStart:        timestampStart,
		TimestampStop:         timestampStop,
		Phi:                   phi,
		ThetaStart:            thetaStart,
		ThetaStop:             thetaStop,
		DistanceScalingFactor: distanceScalingFactor,
		Availability:          availability,
		DataContentEchos:      dataContentEchos,
		DataContentBeams:      dataContentBeams,
		HasDistance:           hasDistance,
		HasRssi:               hasRssi,
		HasProperties:         hasProperties,
		HasTheta:              hasTheta,
		SegmentData:           segData,
	}

	return module, nextModuleSize, pos, nil
}
