package tflite

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func float32Bytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// tinyModel is y = softmax(x W^T + b) with x [1,3] and W [2,3].
func tinyModel() *Model {
	return &Model{
		Version:     SchemaVersion,
		Description: "tiny",
		OperatorCodes: []OperatorCode{
			{BuiltinCode: OpFullyConnected, Version: 1},
			{BuiltinCode: OpSoftmax, Version: 1},
		},
		Buffers: []Buffer{
			{},
			{Data: float32Bytes(1, 0, 0, 0, 1, 0)},
			{Data: float32Bytes(0.5, -0.5)},
			{Data: []byte("1.14.0\x00\x00")},
		},
		Subgraphs: []SubGraph{{
			Name: "main",
			Tensors: []Tensor{
				{Name: "x", Shape: []int32{1, 3}, Type: TensorTypeFloat32},
				{Name: "w", Shape: []int32{2, 3}, Type: TensorTypeFloat32, Buffer: 1},
				{Name: "b", Shape: []int32{2}, Type: TensorTypeFloat32, Buffer: 2},
				{Name: "logits", Shape: []int32{1, 2}, Type: TensorTypeFloat32},
				{Name: "probs", Shape: []int32{1, 2}, Type: TensorTypeFloat32, ShapeSignature: []int32{-1, 2}},
			},
			Inputs:  []int32{0},
			Outputs: []int32{4},
			Operators: []Operator{
				{OpcodeIndex: 0, Inputs: []int32{0, 1, 2}, Outputs: []int32{3}, Options: &FullyConnectedOptions{FusedActivation: ActivationRelu}},
				{OpcodeIndex: 1, Inputs: []int32{3}, Outputs: []int32{4}, Options: &SoftmaxOptions{Beta: 1}},
			},
		}},
		Metadata: []Metadata{{Name: "min_runtime_version", Buffer: 3}},
		SignatureDefs: []SignatureDef{{
			Key:     "serving_default",
			Inputs:  []TensorMap{{Name: "x", TensorIndex: 0}},
			Outputs: []TensorMap{{Name: "output_0", TensorIndex: 4}},
		}},
	}
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(tinyModel())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data[4:8]) != FileIdentifier {
		t.Fatalf("expected identifier %s, got %q", FileIdentifier, data[4:8])
	}

	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Version != SchemaVersion || m.Description != "tiny" {
		t.Errorf("header mismatch: version=%d description=%q", m.Version, m.Description)
	}
	if len(m.OperatorCodes) != 2 || m.OperatorCodes[1].BuiltinCode != OpSoftmax {
		t.Errorf("operator codes mismatch: %+v", m.OperatorCodes)
	}

	sg := m.Subgraphs[0]
	if sg.Name != "main" || len(sg.Tensors) != 5 || len(sg.Operators) != 2 {
		t.Fatalf("subgraph mismatch: %+v", sg)
	}
	if got := sg.Tensors[1]; got.Name != "w" || got.Buffer != 1 || len(got.Shape) != 2 || got.Shape[1] != 3 {
		t.Errorf("tensor w mismatch: %+v", got)
	}
	if sig := sg.Tensors[4].ShapeSignature; len(sig) != 2 || sig[0] != -1 {
		t.Errorf("expected shape signature [-1 2], got %v", sig)
	}

	fc, ok := sg.Operators[0].Options.(*FullyConnectedOptions)
	if !ok || fc.FusedActivation != ActivationRelu {
		t.Errorf("expected fused relu options, got %#v", sg.Operators[0].Options)
	}
	sm, ok := sg.Operators[1].Options.(*SoftmaxOptions)
	if !ok || sm.Beta != 1 {
		t.Errorf("expected softmax beta 1, got %#v", sg.Operators[1].Options)
	}

	w := m.Buffers[1].Data
	if math.Float32frombits(binary.LittleEndian.Uint32(w[16:])) != 1 {
		t.Errorf("weight buffer corrupted: %v", w)
	}
	if v, ok := m.MetadataBytes("min_runtime_version"); !ok || string(v[:6]) != "1.14.0" {
		t.Errorf("metadata mismatch: %q %v", v, ok)
	}
	if sig, ok := m.Signature("serving_default"); !ok || sig.Outputs[0].TensorIndex != 4 {
		t.Errorf("signature mismatch: %+v", sig)
	}
}

func TestAllOptionsSurviveEncoding(t *testing.T) {
	m := tinyModel()
	opts := []BuiltinOptions{
		&GatherOptions{Axis: 1, BatchDims: 0},
		&ReducerOptions{KeepDims: true},
		&CastOptions{InDataType: TensorTypeFloat32, OutDataType: TensorTypeInt32},
		&DequantizeOptions{},
	}
	for _, o := range opts {
		m.Subgraphs[0].Operators = append(m.Subgraphs[0].Operators, Operator{
			OpcodeIndex: 0, Inputs: []int32{3}, Outputs: []int32{3}, Options: o,
		})
	}

	data, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	ops := got.Subgraphs[0].Operators[2:]
	if g := ops[0].Options.(*GatherOptions); g.Axis != 1 {
		t.Errorf("gather axis = %d", g.Axis)
	}
	if r := ops[1].Options.(*ReducerOptions); !r.KeepDims {
		t.Error("reducer keep_dims lost")
	}
	if c := ops[2].Options.(*CastOptions); c.InDataType != TensorTypeFloat32 || c.OutDataType != TensorTypeInt32 {
		t.Errorf("cast options = %+v", c)
	}
	if _, ok := ops[3].Options.(*DequantizeOptions); !ok {
		t.Errorf("expected dequantize options, got %#v", ops[3].Options)
	}
}

func TestBufferAlignment(t *testing.T) {
	data, err := Encode(tinyModel())
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	want := m.Buffers[1].Data
	for off := 0; off+len(want) <= len(data); off++ {
		if string(data[off:off+len(want)]) == string(want) {
			if off%BufferAlignment != 0 {
				t.Errorf("weight data at offset %d is not %d-byte aligned", off, BufferAlignment)
			}
			return
		}
	}
	t.Fatal("weight data not found in encoded bytes")
}

func TestLargeBuiltinCodeUsesExtendedField(t *testing.T) {
	m := tinyModel()
	m.OperatorCodes = append(m.OperatorCodes, OperatorCode{BuiltinCode: 150})
	data, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.OperatorCodes[2].BuiltinCode != 150 {
		t.Errorf("expected code 150, got %d", got.OperatorCodes[2].BuiltinCode)
	}
	if got.OperatorCodes[2].Version != 1 {
		t.Errorf("expected default version 1, got %d", got.OperatorCodes[2].Version)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	valid, err := Encode(tinyModel())
	if err != nil {
		t.Fatal(err)
	}

	badID := append([]byte(nil), valid...)
	copy(badID[4:8], "GGUF")

	badRoot := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badRoot, uint32(len(valid)+100))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 2, 3}},
		{"wrong identifier", badID},
		{"root beyond end", badRoot},
		{"truncated half", valid[:len(valid)/2]},
		{"truncated header", valid[:12]},
		{"garbage", append([]byte{0xff, 0xff, 0xff, 0x7f, 'T', 'F', 'L', '3'}, make([]byte, 64)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.data)
			if err == nil {
				t.Fatalf("expected error, got model %+v", m)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeSurvivesEveryTruncation(t *testing.T) {
	valid, err := Encode(tinyModel())
	if err != nil {
		t.Fatal(err)
	}
	// Constant data is written first and so ends up at the tail of the file:
	// every strict prefix loses some of it and must fail without panicking.
	for n := 0; n < len(valid); n += 7 {
		if _, err := Decode(valid[:n]); !errors.Is(err, ErrMalformed) {
			t.Fatalf("prefix of %d bytes: expected ErrMalformed, got %v", n, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"wrong version", func(m *Model) { m.Version = 2 }},
		{"no subgraphs", func(m *Model) { m.Subgraphs = nil }},
		{"no sentinel buffer", func(m *Model) { m.Buffers = nil }},
		{"non-empty sentinel", func(m *Model) { m.Buffers[0].Data = []byte{1} }},
		{"buffer index", func(m *Model) { m.Subgraphs[0].Tensors[1].Buffer = 99 }},
		{"buffer size", func(m *Model) { m.Subgraphs[0].Tensors[1].Shape = []int32{3, 3} }},
		{"negative dim", func(m *Model) { m.Subgraphs[0].Tensors[0].Shape = []int32{-1, 3} }},
		{"input index", func(m *Model) { m.Subgraphs[0].Inputs = []int32{17} }},
		{"output index", func(m *Model) { m.Subgraphs[0].Outputs = []int32{-1} }},
		{"opcode index", func(m *Model) { m.Subgraphs[0].Operators[0].OpcodeIndex = 5 }},
		{"operator input", func(m *Model) { m.Subgraphs[0].Operators[0].Inputs[0] = 9 }},
		{"operator output", func(m *Model) { m.Subgraphs[0].Operators[1].Outputs[0] = -1 }},
		{"metadata buffer", func(m *Model) { m.Metadata[0].Buffer = 9 }},
		{"signature subgraph", func(m *Model) { m.SignatureDefs[0].SubgraphIndex = 1 }},
		{"signature tensor", func(m *Model) { m.SignatureDefs[0].Outputs[0].TensorIndex = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tinyModel()
			tt.mutate(m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := Encode(m); err == nil {
				t.Error("expected Encode to refuse an invalid model")
			}
		})
	}
}

func TestOptionalOperatorInput(t *testing.T) {
	m := tinyModel()
	m.Subgraphs[0].Operators[0].Inputs[2] = -1
	if err := m.Validate(); err != nil {
		t.Errorf("omitted bias should be valid: %v", err)
	}
}

func TestReadFile(t *testing.T) {
	data, err := Encode(tinyModel())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tiny.tflite")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(m.Subgraphs) != 1 {
		t.Errorf("expected 1 subgraph, got %d", len(m.Subgraphs))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.tflite")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTensorTypeSizeAndString(t *testing.T) {
	tests := []struct {
		typ  TensorType
		size int
		name string
	}{
		{TensorTypeFloat32, 4, "FLOAT32"},
		{TensorTypeFloat16, 2, "FLOAT16"},
		{TensorTypeInt32, 4, "INT32"},
		{TensorTypeInt8, 1, "INT8"},
		{TensorTypeInt64, 8, "INT64"},
		{TensorTypeString, 0, "STRING"},
		{TensorType(42), 0, "UNKNOWN_TYPE_42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.typ.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}
}

func TestBuiltinOperatorString(t *testing.T) {
	cases := map[BuiltinOperator]string{
		OpDequantize:         "DEQUANTIZE",
		OpFullyConnected:     "FULLY_CONNECTED",
		OpGather:             "GATHER",
		OpMean:               "MEAN",
		OpCast:               "CAST",
		OpSoftmax:            "SOFTMAX",
		BuiltinOperator(200): "BUILTIN_200",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", op, got, want)
		}
	}
}
