// Package interpreter runs exported classifier graphs on the CPU. It
// implements the builtin operators the converter emits and nothing more.
package interpreter

import (
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/metrics"
	"github.com/23skdu/smsmodel/internal/tflite"
)

var (
	ErrUnsupportedOp   = errors.New("unsupported operator")
	ErrUnsupportedType = errors.New("unsupported tensor type")
	ErrNotAllocated    = errors.New("tensors are not allocated")
)

// TensorDetail describes one graph input or output.
type TensorDetail struct {
	Name  string
	Index int
	Shape []int32
	Type  tflite.TensorType
}

type Interpreter struct {
	model   *tflite.Model
	sub     *tflite.SubGraph
	tensors []*tensor
	nodes   []*node
	log     *logger.Logger
}

// NewFromFile loads and validates a model file.
func NewFromFile(path string) (*Interpreter, error) {
	m, err := tflite.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newInterpreter(m)
}

// New decodes and validates a serialized model.
func New(data []byte) (*Interpreter, error) {
	m, err := tflite.Decode(data)
	if err != nil {
		return nil, err
	}
	return newInterpreter(m)
}

func newInterpreter(m *tflite.Model) (*Interpreter, error) {
	if len(m.Subgraphs) != 1 {
		return nil, fmt.Errorf("%w: model has %d subgraphs", ErrUnsupportedOp, len(m.Subgraphs))
	}
	return &Interpreter{
		model: m,
		sub:   &m.Subgraphs[0],
		log:   logger.Log.With("component", "interpreter"),
	}, nil
}

// AllocateTensors materializes constants, allocates activations and
// binds every operator to a kernel. It must succeed before Invoke.
func (it *Interpreter) AllocateTensors() error {
	tensors := make([]*tensor, len(it.sub.Tensors))
	var total int64
	for i := range it.sub.Tensors {
		meta := &it.sub.Tensors[i]
		t, err := allocTensor(meta, it.model.Buffers[meta.Buffer].Data)
		if err != nil {
			return fmt.Errorf("allocate tensor %d: %w", i, err)
		}
		tensors[i] = t
		total += t.bytes()
	}

	nodes := make([]*node, 0, len(it.sub.Operators))
	for i := range it.sub.Operators {
		op := &it.sub.Operators[i]
		code := it.model.OperatorCodes[op.OpcodeIndex]
		prepare, ok := registry[code.BuiltinCode]
		if !ok || code.CustomCode != "" {
			name := code.BuiltinCode.String()
			if code.CustomCode != "" {
				name = code.CustomCode
			}
			return fmt.Errorf("operator %d: %w: %s", i, ErrUnsupportedOp, name)
		}
		n := &node{op: code.BuiltinCode, options: op.Options}
		for _, idx := range op.Inputs {
			if idx < 0 {
				n.inputs = append(n.inputs, nil)
				continue
			}
			n.inputs = append(n.inputs, tensors[idx])
		}
		for _, idx := range op.Outputs {
			if idx < 0 {
				return fmt.Errorf("operator %d (%s): omitted output", i, n.op)
			}
			n.outputs = append(n.outputs, tensors[idx])
		}
		eval, err := prepare(n)
		if err != nil {
			return fmt.Errorf("operator %d: %w", i, err)
		}
		n.eval = eval
		nodes = append(nodes, n)
	}

	it.tensors = tensors
	it.nodes = nodes
	metrics.RecordAllocation(total)
	it.log.Debug("tensors allocated", "tensors", len(tensors), "operators", len(nodes), "bytes", total)
	return nil
}

func (it *Interpreter) details(indices []int32) []TensorDetail {
	out := make([]TensorDetail, 0, len(indices))
	for _, idx := range indices {
		t := &it.sub.Tensors[idx]
		out = append(out, TensorDetail{
			Name:  t.Name,
			Index: int(idx),
			Shape: append([]int32(nil), t.Shape...),
			Type:  t.Type,
		})
	}
	return out
}

func (it *Interpreter) InputDetails() []TensorDetail  { return it.details(it.sub.Inputs) }
func (it *Interpreter) OutputDetails() []TensorDetail { return it.details(it.sub.Outputs) }

func (it *Interpreter) io(indices []int32, i int, kind string) (*tensor, error) {
	if it.tensors == nil {
		return nil, ErrNotAllocated
	}
	if i < 0 || i >= len(indices) {
		return nil, fmt.Errorf("%s %d out of range: model has %d", kind, i, len(indices))
	}
	t := it.tensors[indices[i]]
	if t.meta.Type != tflite.TensorTypeFloat32 {
		return nil, fmt.Errorf("%s %d is %s, not FLOAT32", kind, i, t.meta.Type)
	}
	return t, nil
}

// SetInputFloat32 copies data into the i-th graph input.
func (it *Interpreter) SetInputFloat32(i int, data []float32) error {
	t, err := it.io(it.sub.Inputs, i, "input")
	if err != nil {
		return err
	}
	if len(data) != len(t.f32) {
		return fmt.Errorf("input %d expects %d values (shape %v), got %d", i, len(t.f32), t.meta.Shape, len(data))
	}
	copy(t.f32, data)
	return nil
}

// Invoke runs every operator in graph order.
func (it *Interpreter) Invoke() error {
	if it.tensors == nil {
		return ErrNotAllocated
	}
	start := time.Now()
	for i, n := range it.nodes {
		if err := n.eval(n); err != nil {
			return fmt.Errorf("operator %d: %w", i, err)
		}
		metrics.RecordOperator(n.op.String())
	}
	metrics.RecordInference(time.Since(start))
	return nil
}

// OutputFloat32 returns a copy of the i-th graph output.
func (it *Interpreter) OutputFloat32(i int) ([]float32, error) {
	t, err := it.io(it.sub.Outputs, i, "output")
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), t.f32...), nil
}

// Metadata returns the named metadata buffer of the loaded model.
func (it *Interpreter) Metadata(name string) ([]byte, bool) {
	return it.model.MetadataBytes(name)
}

// SignatureKeys lists the model's signature defs.
func (it *Interpreter) SignatureKeys() []string {
	keys := make([]string, 0, len(it.model.SignatureDefs))
	for _, sd := range it.model.SignatureDefs {
		keys = append(keys, sd.Key)
	}
	return keys
}
