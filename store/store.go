// Package store archives decoded scan-segment telegrams to TileDB arrays.
// It sits downstream of a Receiver: nothing here touches the framer, the
// transport, or the wire bytes, only already-decoded SegmentRecords.
package store

import (
	"errors"
	"reflect"
	"strconv"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"

	"github.com/sixy6e/go-scansegment/decode"
)

var (
	ErrCreateAttr = errors.New("store: error creating tiledb attribute")
	ErrSetBuffer  = errors.New("store: error setting tiledb query buffer")
	ErrDims       = errors.New("store: field has unsupported slice nesting")
	ErrDtype      = errors.New("store: field has unsupported element type")
)

// SegmentColumns is the columnar (struct-of-slices) form of a batch of
// segment headers, one slice element per telegram.
type SegmentColumns struct {
	Telegram_Counter   []uint64 `tiledb:"dtype=uint64,ftype=dim"`
	Frame_Number       []uint64 `tiledb:"dtype=uint64,ftype=attr" filters:"zstd(level=16)"`
	Segment_Counter    []uint64 `tiledb:"dtype=uint64,ftype=attr" filters:"zstd(level=16)"`
	Sender_ID          []uint32 `tiledb:"dtype=uint32,ftype=attr" filters:"zstd(level=16)"`
	Availability       []uint8  `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
	Timestamp_Transmit []uint64 `tiledb:"dtype=uint64,ftype=attr" filters:"zstd(level=16)"`
}

// BeamColumns is the columnar form of every module/layer's beam data, one
// slice element per (segment, layer, beam) triple. Distance and Rssi are
// variable-length attributes: each beam keeps its full per-echo vector.
type BeamColumns struct {
	Segment_Counter []uint64    `tiledb:"dtype=uint64,ftype=dim"`
	Layer_Index     []uint32    `tiledb:"dtype=uint32,ftype=dim"`
	Beam_Index      []uint32    `tiledb:"dtype=uint32,ftype=dim"`
	Distance        [][]float32 `tiledb:"dtype=float32,ftype=attr,var" filters:"zstd(level=16)"`
	Rssi            [][]uint16  `tiledb:"dtype=uint16,ftype=attr,var" filters:"zstd(level=16)"`
	Channel_Theta   []float32   `tiledb:"dtype=float32,ftype=attr" filters:"zstd(level=16)"`
	Properties      []uint8     `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
}

// BuildColumns transposes a batch of decoded segment records into the two
// columnar shapes Archive writes to TileDB. Compact modules and MsgPack
// layers are both flattened into the same BeamColumns rows, indexed by
// Layer_Index, so the two wire encodings share one archive schema.
func BuildColumns(records []*decode.SegmentRecord) (SegmentColumns, BeamColumns) {
	var segs SegmentColumns
	var beams BeamColumns

	for _, rec := range records {
		segs.Telegram_Counter = append(segs.Telegram_Counter, rec.TelegramCounter)
		segs.Frame_Number = append(segs.Frame_Number, rec.FrameNumber)
		segs.Segment_Counter = append(segs.Segment_Counter, rec.SegmentCounter)
		segs.Sender_ID = append(segs.Sender_ID, rec.SenderID)
		segs.Availability = append(segs.Availability, rec.Availability)
		segs.Timestamp_Transmit = append(segs.Timestamp_Transmit, rec.TimestampTransmit)

		layerIndex := uint32(0)
		for _, m := range rec.Modules {
			for layer := 0; layer < int(m.NumLayers); layer++ {
				appendBeamRows(&beams, rec.SegmentCounter, layerIndex, m.SegmentData[layer], int(m.NumBeams))
				layerIndex++
			}
		}

		for layerIdx, l := range rec.Layers {
			appendBeamRows(&beams, rec.SegmentCounter, uint32(layerIdx), l.SegmentData, int(l.BeamCount))
		}
	}

	return segs, beams
}

func appendBeamRows(beams *BeamColumns, segmentCounter uint64, layerIndex uint32, data decode.SegmentData, numBeams int) {
	distanceByBeam := transposeF32(data.Distance, numBeams)
	rssiByBeam := transposeU16(data.Rssi, numBeams)

	for beam := 0; beam < numBeams; beam++ {
		beams.Segment_Counter = append(beams.Segment_Counter, segmentCounter)
		beams.Layer_Index = append(beams.Layer_Index, layerIndex)
		beams.Beam_Index = append(beams.Beam_Index, uint32(beam))
		beams.Distance = append(beams.Distance, distanceByBeam[beam])

		if rssiByBeam != nil {
			beams.Rssi = append(beams.Rssi, rssiByBeam[beam])
		} else {
			beams.Rssi = append(beams.Rssi, nil)
		}

		if len(data.ChannelTheta) == numBeams {
			beams.Channel_Theta = append(beams.Channel_Theta, data.ChannelTheta[beam])
		} else {
			beams.Channel_Theta = append(beams.Channel_Theta, 0)
		}

		if len(data.Properties) == numBeams {
			beams.Properties = append(beams.Properties, data.Properties[beam])
		} else {
			beams.Properties = append(beams.Properties, 0)
		}
	}
}

// transposeF32 turns an [num_echos][num_beams] matrix into [num_beams][num_echos].
func transposeF32(matrix [][]float32, numBeams int) [][]float32 {
	out := make([][]float32, numBeams)
	for b := 0; b < numBeams; b++ {
		out[b] = make([]float32, len(matrix))
		for e, row := range matrix {
			out[b][e] = row[b]
		}
	}
	return out
}

// transposeU16 turns an [num_echos][num_beams] matrix into [num_beams][num_echos].
// Returns nil when the channel wasn't present (rssi is optional).
func transposeU16(matrix [][]uint16, numBeams int) [][]uint16 {
	if len(matrix) == 0 {
		return nil
	}
	out := make([][]uint16, numBeams)
	for b := 0; b < numBeams; b++ {
		out[b] = make([]uint16, len(matrix))
		for e, row := range matrix {
			out[b][e] = row[b]
		}
	}
	return out
}

// zstdFilter builds the one compression filter this archive wires up.
// Every other TileDB filter kind the teacher codebase supported (gzip,
// lz4, rle, bzip2, bit-width reduction) has no attribute in this schema
// that calls for something other than zstd, so those constructors were
// dropped rather than kept unreachable; see DESIGN.md.
func zstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// createAttr creates one TileDB attribute from a struct field's `tiledb`
// and `filters` tags, parsed with stagparser the way the teacher's
// CreateAttr does. Only the zstd filter and the "var" cell flag are
// recognized; this archive never asks for anything else.
func createAttr(ctx *tiledb.Context, schema *tiledb.ArraySchema, fieldName string, tiledbDefs map[string]stgpsr.Definition, filterDefs []stgpsr.Definition) error {
	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttr, errors.New(fieldName+": missing dtype tag"))
	}
	dtypeName, _ := def.Attribute("dtype")

	var dtype tiledb.Datatype
	switch dtypeName {
	case "uint8":
		dtype = tiledb.TILEDB_UINT8
	case "uint16":
		dtype = tiledb.TILEDB_UINT16
	case "uint32":
		dtype = tiledb.TILEDB_UINT32
	case "uint64":
		dtype = tiledb.TILEDB_UINT64
	case "float32":
		dtype = tiledb.TILEDB_FLOAT32
	default:
		return errors.Join(ErrDtype, errors.New(fieldName+": "+dtypeName.(string)))
	}

	filterList, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer filterList.Free()

	for _, f := range filterDefs {
		if f.Name() != "zstd" {
			continue
		}
		level, ok := f.Attribute("level")
		if !ok {
			return errors.Join(ErrCreateAttr, errors.New(fieldName+": zstd level not set"))
		}
		filt, err := zstdFilter(ctx, int32(level.(int64)))
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
		defer filt.Free()
		if err := filterList.AddFilter(filt); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, dtype)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr.Free()

	if _, varLen := tiledbDefs["var"]; varLen {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	if err := attr.SetFilterList(filterList); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	return schema.AddAttributes(attr)
}

// sliceDims reports how many levels of slice nesting a reflect.Type has
// and the scalar type underneath, mirroring the teacher's sliceDimsType.
func sliceDims(t reflect.Type, dims *int) reflect.Type {
	if t.Kind() == reflect.Slice {
		*dims++
		return sliceDims(t.Elem(), dims)
	}
	return t
}

// sliceOffsets computes TileDB's variable-length offset buffer for a
// jagged [][]T column.
func sliceOffsets[T any](rows [][]T, elemSize uint64) []uint64 {
	offsets := make([]uint64, len(rows))
	offset := uint64(0)
	for i, row := range rows {
		offsets[i] = offset
		offset += uint64(len(row)) * elemSize
	}
	return offsets
}

// setColumnBuffers binds every exported field of a columnar struct (a
// pointer to a struct of slices) to the query as a data or offsets+data
// buffer, exactly as the teacher's setStructFieldBuffers does, generalized
// to this archive's float32/uint16/uint32/uint64/uint8 column types.
func setColumnBuffers(query *tiledb.Query, columns any) error {
	values := reflect.ValueOf(columns).Elem()
	types := reflect.TypeOf(columns).Elem()

	for i := 0; i < values.NumField(); i++ {
		field := values.Field(i)
		name := types.Field(i).Name
		if !types.Field(i).IsExported() {
			continue
		}

		dims := 0
		elem := sliceDims(field.Type(), &dims)

		switch dims {
		case 1:
			var err error
			switch elem.Kind() {
			case reflect.Uint8:
				_, err = query.SetDataBuffer(name, field.Interface().([]uint8))
			case reflect.Uint16:
				_, err = query.SetDataBuffer(name, field.Interface().([]uint16))
			case reflect.Uint32:
				_, err = query.SetDataBuffer(name, field.Interface().([]uint32))
			case reflect.Uint64:
				_, err = query.SetDataBuffer(name, field.Interface().([]uint64))
			case reflect.Float32:
				_, err = query.SetDataBuffer(name, field.Interface().([]float32))
			default:
				return errors.Join(ErrDtype, errors.New(name))
			}
			if err != nil {
				return errors.Join(ErrSetBuffer, err, errors.New(name))
			}

		case 2:
			switch elem.Kind() {
			case reflect.Float32:
				rows := field.Interface().([][]float32)
				flat := lo.Flatten(rows)
				if _, err := query.SetOffsetsBuffer(name, sliceOffsets(rows, 4)); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flat); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
			case reflect.Uint16:
				rows := field.Interface().([][]uint16)
				flat := lo.Flatten(rows)
				if _, err := query.SetOffsetsBuffer(name, sliceOffsets(rows, 2)); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flat); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
			default:
				return errors.Join(ErrDtype, errors.New(name))
			}

		default:
			return errors.Join(ErrDims, errors.New(name+": "+strconv.Itoa(dims)))
		}
	}

	return nil
}

// createSchema builds a dense 1D array schema keyed by a synthetic "row"
// dimension, with one attribute per attr-tagged field; dim-tagged fields
// get no attribute.
func createSchema(ctx *tiledb.Context, columns any, numRows uint64) (*tiledb.ArraySchema, error) {
	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, err
	}

	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, err
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "row", tiledb.TILEDB_UINT64, []uint64{0, numRows}, uint64(numRows+1))
	if err != nil {
		return nil, err
	}
	if err := domain.AddDimensions(dim); err != nil {
		return nil, err
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, err
	}

	types := reflect.TypeOf(columns).Elem()
	filterDefs, _ := stgpsr.ParseStruct(columns, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(columns, "tiledb")

	for i := 0; i < types.NumField(); i++ {
		field := types.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldTdbDefs := make(map[string]stgpsr.Definition, len(tdbDefs[field.Name]))
		for _, d := range tdbDefs[field.Name] {
			fieldTdbDefs[d.Name()] = d
		}

		ftype, ok := fieldTdbDefs["ftype"]
		if !ok {
			continue
		}
		if v, _ := ftype.Attribute("ftype"); v == "dim" {
			continue // dimension fields are modeled by the schema's own "row" dimension
		}

		if err := createAttr(ctx, schema, field.Name, fieldTdbDefs, filterDefs[field.Name]); err != nil {
			return nil, err
		}
	}

	return schema, nil
}

// Archive writes a batch of decoded segment records to two TileDB arrays:
// one row per telegram header, one row per (segment, layer, beam) beam
// measurement. Both schemas are created if the arrays don't already exist.
func Archive(ctx *tiledb.Context, segmentsURI, beamsURI string, records []*decode.SegmentRecord) error {
	segCols, beamCols := BuildColumns(records)

	if err := writeColumns(ctx, segmentsURI, &segCols, uint64(len(segCols.Telegram_Counter))); err != nil {
		return err
	}
	return writeColumns(ctx, beamsURI, &beamCols, uint64(len(beamCols.Segment_Counter)))
}

func writeColumns(ctx *tiledb.Context, uri string, columns any, numRows uint64) error {
	if numRows == 0 {
		return nil
	}

	schema, err := createSchema(ctx, columns, numRows)
	if err != nil {
		return err
	}
	defer schema.Free()

	if err := tiledb.CreateArray(ctx, uri, schema); err != nil {
		return err
	}

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return err
	}
	defer array.Free()

	if err := array.Open(tiledb.TILEDB_WRITE); err != nil {
		return err
	}
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return err
	}
	if err := setColumnBuffers(query, columns); err != nil {
		return err
	}

	return query.Submit()
}

// ArchiveBatches archives several independent batches concurrently using a
// bounded worker pool, the same shape as the teacher's ping-writing pool
// in its now-removed CLI entry point. Workers never touch the receive
// pipeline; they only ever see already-decoded records.
func ArchiveBatches(ctx *tiledb.Context, segmentsURI, beamsURI string, batches [][]*decode.SegmentRecord, workers int) []error {
	pool := pond.New(workers, len(batches))
	defer pool.StopAndWait()

	errs := make([]error, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		pool.Submit(func() {
			errs[i] = Archive(ctx, segmentsURI, beamsURI, batch)
		})
	}
	pool.StopAndWait()

	return errs
}
