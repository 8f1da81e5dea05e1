package tflite

import (
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed tflite model")

// Model is the in-memory form of a TFLite flatbuffer.
type Model struct {
	Version       uint32
	OperatorCodes []OperatorCode
	Subgraphs     []SubGraph
	Description   string
	// Buffers[0] is always the empty sentinel buffer.
	Buffers       []Buffer
	Metadata      []Metadata
	SignatureDefs []SignatureDef
}

type OperatorCode struct {
	BuiltinCode BuiltinOperator
	CustomCode  string
	Version     int32
}

type SubGraph struct {
	Tensors   []Tensor
	Inputs    []int32
	Outputs   []int32
	Operators []Operator
	Name      string
}

type Tensor struct {
	Shape          []int32
	Type           TensorType
	Buffer         uint32
	Name           string
	ShapeSignature []int32
}

func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// ByteSize is the size of the tensor's dense data.
func (t *Tensor) ByteSize() int {
	return t.NumElements() * t.Type.Size()
}

type Buffer struct {
	Data []byte
}

type Operator struct {
	OpcodeIndex uint32
	// Inputs may contain -1 for an omitted optional input.
	Inputs  []int32
	Outputs []int32
	Options BuiltinOptions
}

type Metadata struct {
	Name   string
	Buffer uint32
}

type SignatureDef struct {
	Inputs        []TensorMap
	Outputs       []TensorMap
	Key           string
	SubgraphIndex uint32
}

type TensorMap struct {
	Name        string
	TensorIndex uint32
}

// MetadataBytes returns the buffer attached to the named metadata entry.
func (m *Model) MetadataBytes(name string) ([]byte, bool) {
	for _, md := range m.Metadata {
		if md.Name == name && int(md.Buffer) < len(m.Buffers) {
			return m.Buffers[md.Buffer].Data, true
		}
	}
	return nil, false
}

// Signature looks up a signature def by key.
func (m *Model) Signature(key string) (*SignatureDef, bool) {
	for i := range m.SignatureDefs {
		if m.SignatureDefs[i].Key == key {
			return &m.SignatureDefs[i], true
		}
	}
	return nil, false
}

// Validate checks every cross reference inside the model.
func (m *Model) Validate() error {
	if m.Version != SchemaVersion {
		return fmt.Errorf("unsupported schema version: %d", m.Version)
	}
	if len(m.Subgraphs) == 0 {
		return errors.New("model has no subgraphs")
	}
	if len(m.Buffers) == 0 || len(m.Buffers[0].Data) != 0 {
		return errors.New("buffer 0 must exist and be empty")
	}
	for i, oc := range m.OperatorCodes {
		if oc.BuiltinCode < 0 {
			return fmt.Errorf("operator code %d: negative builtin code %d", i, oc.BuiltinCode)
		}
	}
	for si := range m.Subgraphs {
		if err := m.validateSubgraph(si); err != nil {
			return fmt.Errorf("subgraph %d: %w", si, err)
		}
	}
	for _, md := range m.Metadata {
		if int(md.Buffer) >= len(m.Buffers) {
			return fmt.Errorf("metadata %q: buffer %d out of range", md.Name, md.Buffer)
		}
	}
	for _, sig := range m.SignatureDefs {
		if int(sig.SubgraphIndex) >= len(m.Subgraphs) {
			return fmt.Errorf("signature %q: subgraph %d out of range", sig.Key, sig.SubgraphIndex)
		}
		n := len(m.Subgraphs[sig.SubgraphIndex].Tensors)
		for _, tm := range append(append([]TensorMap(nil), sig.Inputs...), sig.Outputs...) {
			if int(tm.TensorIndex) >= n {
				return fmt.Errorf("signature %q: tensor %q index %d out of range", sig.Key, tm.Name, tm.TensorIndex)
			}
		}
	}
	return nil
}

func (m *Model) validateSubgraph(si int) error {
	sg := &m.Subgraphs[si]
	n := int32(len(sg.Tensors))
	inRange := func(idx int32, optional bool) bool {
		if optional && idx == -1 {
			return true
		}
		return idx >= 0 && idx < n
	}

	for ti := range sg.Tensors {
		t := &sg.Tensors[ti]
		for _, d := range t.Shape {
			if d < 0 {
				return fmt.Errorf("tensor %q: negative dimension in %v", t.Name, t.Shape)
			}
		}
		if int(t.Buffer) >= len(m.Buffers) {
			return fmt.Errorf("tensor %q: buffer %d out of range", t.Name, t.Buffer)
		}
		data := m.Buffers[t.Buffer].Data
		if len(data) == 0 {
			continue
		}
		if t.Type.Size() == 0 {
			return fmt.Errorf("tensor %q: constant data for variable-size type %s", t.Name, t.Type)
		}
		if len(data) != t.ByteSize() {
			return fmt.Errorf("tensor %q: buffer holds %d bytes, shape %v of %s needs %d", t.Name, len(data), t.Shape, t.Type, t.ByteSize())
		}
	}
	for _, idx := range sg.Inputs {
		if !inRange(idx, false) {
			return fmt.Errorf("input tensor %d out of range", idx)
		}
	}
	for _, idx := range sg.Outputs {
		if !inRange(idx, false) {
			return fmt.Errorf("output tensor %d out of range", idx)
		}
	}
	for oi, op := range sg.Operators {
		if int(op.OpcodeIndex) >= len(m.OperatorCodes) {
			return fmt.Errorf("operator %d: opcode index %d out of range", oi, op.OpcodeIndex)
		}
		for _, idx := range op.Inputs {
			if !inRange(idx, true) {
				return fmt.Errorf("operator %d: input tensor %d out of range", oi, idx)
			}
		}
		for _, idx := range op.Outputs {
			if !inRange(idx, false) {
				return fmt.Errorf("operator %d: output tensor %d out of range", oi, idx)
			}
		}
	}
	return nil
}
