package tflite

import (
	"errors"
	"fmt"
	"os"

	flatbuffers "github.com/google/flatbuffers/go"
)

var errOutOfBounds = errors.New("offset out of bounds")

// Decode parses and validates a TFLite flatbuffer. Truncated or corrupted
// input yields an error wrapping ErrMalformed.
func Decode(data []byte) (m *Model, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the file header", ErrMalformed, len(data))
	}
	if id := string(data[4:8]); id != FileIdentifier {
		return nil, fmt.Errorf("%w: file identifier %q, want %q", ErrMalformed, id, FileIdentifier)
	}

	// The flatbuffers runtime indexes slices without bounds checks of its
	// own, so a bad offset surfaces as a runtime panic.
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	root := flatbuffers.GetUOffsetT(data)
	if int(root)+4 > len(data) {
		return nil, fmt.Errorf("%w: root offset %d beyond %d bytes", ErrMalformed, root, len(data))
	}
	m = decodeModel(newTable(data, root))
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// ReadFile loads and decodes a model file.
func ReadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// table wraps a flatbuffers table with slot-indexed, bounds-checked accessors.
type table struct {
	flatbuffers.Table
}

func newTable(buf []byte, pos flatbuffers.UOffsetT) table {
	return table{flatbuffers.Table{Bytes: buf, Pos: pos}}
}

func (t table) check(pos flatbuffers.UOffsetT, n int) {
	if int(pos) < 0 || int(pos)+n > len(t.Bytes) {
		panic(errOutOfBounds)
	}
}

// field returns the offset of slot relative to the table start, or 0 if absent.
func (t table) field(slot int) flatbuffers.UOffsetT {
	t.check(t.Pos, 4)
	vtable := flatbuffers.UOffsetT(flatbuffers.SOffsetT(t.Pos) - t.GetSOffsetT(t.Pos))
	t.check(vtable, 4)
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (t table) getUint32(slot int, d uint32) uint32 {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 4)
		return t.GetUint32(o + t.Pos)
	}
	return d
}

func (t table) getInt32(slot int, d int32) int32 {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 4)
		return t.GetInt32(o + t.Pos)
	}
	return d
}

func (t table) getInt8(slot int, d int8) int8 {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 1)
		return t.GetInt8(o + t.Pos)
	}
	return d
}

func (t table) getByte(slot int, d byte) byte {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 1)
		return t.GetByte(o + t.Pos)
	}
	return d
}

func (t table) getBool(slot int, d bool) bool {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 1)
		return t.GetBool(o + t.Pos)
	}
	return d
}

func (t table) getFloat32(slot int, d float32) float32 {
	if o := t.field(slot); o != 0 {
		t.check(o+t.Pos, 4)
		return t.GetFloat32(o + t.Pos)
	}
	return d
}

// vector returns the element start and length of the vector in slot.
func (t table) vector(slot int, elemSize int) (flatbuffers.UOffsetT, int) {
	o := t.field(slot)
	if o == 0 {
		return 0, 0
	}
	t.check(o+t.Pos, 4)
	vec := o + t.Pos + t.GetUOffsetT(o+t.Pos)
	t.check(vec, 4)
	n := int(t.GetUOffsetT(vec))
	start := vec + flatbuffers.SizeUOffsetT
	if n < 0 || n > (len(t.Bytes)-int(start))/elemSize {
		panic(errOutOfBounds)
	}
	return start, n
}

func (t table) getBytes(slot int) []byte {
	start, n := t.vector(slot, 1)
	if n == 0 {
		return nil
	}
	return append([]byte(nil), t.Bytes[start:int(start)+n]...)
}

func (t table) getString(slot int) string {
	start, n := t.vector(slot, 1)
	return string(t.Bytes[start : int(start)+n])
}

func (t table) getInt32s(slot int) []int32 {
	start, n := t.vector(slot, 4)
	if n == 0 {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = t.GetInt32(start + flatbuffers.UOffsetT(i*4))
	}
	return out
}

func (t table) getTables(slot int) []table {
	start, n := t.vector(slot, 4)
	out := make([]table, n)
	for i := range out {
		elem := start + flatbuffers.UOffsetT(i*4)
		pos := elem + t.GetUOffsetT(elem)
		t.check(pos, 4)
		out[i] = newTable(t.Bytes, pos)
	}
	return out
}

func (t table) getTable(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	t.check(o+t.Pos, 4)
	pos := o + t.Pos + t.GetUOffsetT(o+t.Pos)
	t.check(pos, 4)
	return newTable(t.Bytes, pos), true
}

func decodeModel(t table) *Model {
	m := &Model{
		Version:     t.getUint32(0, 0),
		Description: t.getString(3),
	}
	for _, oc := range t.getTables(1) {
		code := BuiltinOperator(oc.getInt32(3, 0))
		if deprecated := BuiltinOperator(oc.getInt8(0, 0)); code < deprecated {
			code = deprecated
		}
		m.OperatorCodes = append(m.OperatorCodes, OperatorCode{
			BuiltinCode: code,
			CustomCode:  oc.getString(1),
			Version:     oc.getInt32(2, 1),
		})
	}
	for _, sg := range t.getTables(2) {
		m.Subgraphs = append(m.Subgraphs, decodeSubGraph(sg))
	}
	for _, buf := range t.getTables(4) {
		m.Buffers = append(m.Buffers, Buffer{Data: buf.getBytes(0)})
	}
	for _, md := range t.getTables(6) {
		m.Metadata = append(m.Metadata, Metadata{Name: md.getString(0), Buffer: md.getUint32(1, 0)})
	}
	for _, sig := range t.getTables(7) {
		m.SignatureDefs = append(m.SignatureDefs, SignatureDef{
			Inputs:        decodeTensorMaps(sig.getTables(0)),
			Outputs:       decodeTensorMaps(sig.getTables(1)),
			Key:           sig.getString(2),
			SubgraphIndex: sig.getUint32(4, 0),
		})
	}
	return m
}

func decodeSubGraph(t table) SubGraph {
	sg := SubGraph{
		Inputs:  t.getInt32s(1),
		Outputs: t.getInt32s(2),
		Name:    t.getString(4),
	}
	for _, tt := range t.getTables(0) {
		sg.Tensors = append(sg.Tensors, Tensor{
			Shape:          tt.getInt32s(0),
			Type:           TensorType(tt.getInt8(1, 0)),
			Buffer:         tt.getUint32(2, 0),
			Name:           tt.getString(3),
			ShapeSignature: tt.getInt32s(7),
		})
	}
	for _, ot := range t.getTables(3) {
		op := Operator{
			OpcodeIndex: ot.getUint32(0, 0),
			Inputs:      ot.getInt32s(1),
			Outputs:     ot.getInt32s(2),
		}
		if opts, ok := ot.getTable(4); ok {
			op.Options = decodeOptions(BuiltinOptionsType(ot.getByte(3, 0)), opts)
		}
		sg.Operators = append(sg.Operators, op)
	}
	return sg
}

func decodeOptions(typ BuiltinOptionsType, t table) BuiltinOptions {
	switch typ {
	case OptionsFullyConnected:
		return &FullyConnectedOptions{
			FusedActivation: ActivationFunctionType(t.getInt8(0, 0)),
			KeepNumDims:     t.getBool(2, false),
		}
	case OptionsSoftmax:
		return &SoftmaxOptions{Beta: t.getFloat32(0, 0)}
	case OptionsGather:
		return &GatherOptions{Axis: t.getInt32(0, 0), BatchDims: t.getInt32(1, 0)}
	case OptionsReducer:
		return &ReducerOptions{KeepDims: t.getBool(0, false)}
	case OptionsCast:
		return &CastOptions{
			InDataType:  TensorType(t.getInt8(0, 0)),
			OutDataType: TensorType(t.getInt8(1, 0)),
		}
	case OptionsDequantize:
		return &DequantizeOptions{}
	default:
		// Options this package does not model are dropped; the interpreter
		// rejects operators it cannot run anyway.
		return nil
	}
}

func decodeTensorMaps(tables []table) []TensorMap {
	out := make([]TensorMap, 0, len(tables))
	for _, t := range tables {
		out = append(out, TensorMap{Name: t.getString(0), TensorIndex: t.getUint32(1, 0)})
	}
	return out
}
