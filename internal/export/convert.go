package export

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow/float16"

	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/model"
	"github.com/23skdu/smsmodel/internal/tflite"
)

// Signature is the fixed call signature of the exported graph: one FLOAT32
// input of Shape, named InputName, under the signature key Key.
type Signature struct {
	Key        string
	InputName  string
	OutputName string
	Shape      []int32
}

func DefaultSignature(maxLength int) Signature {
	return Signature{
		Key:        "serving_default",
		InputName:  "x",
		OutputName: "output_0",
		Shape:      []int32{1, int32(maxLength)},
	}
}

type Converter struct {
	opts Options
	log  *logger.Logger
}

func NewConverter(opts Options) *Converter {
	return &Converter{opts: opts, log: logger.Log.With("component", "export")}
}

// Convert lowers a built Sequential model to a TFLite flatbuffer.
func (c *Converter) Convert(m *model.Sequential, sig Signature) ([]byte, error) {
	data, _, err := c.ConvertWithManifest(m, sig)
	return data, err
}

// ConvertWithManifest is Convert that also returns the manifest embedded in the model.
func (c *Converter) ConvertWithManifest(m *model.Sequential, sig Signature) ([]byte, *Manifest, error) {
	start := time.Now()
	if !m.Built() {
		return nil, nil, model.ErrNotBuilt
	}
	if len(sig.Shape) != 2 || sig.Shape[0] != 1 || int(sig.Shape[1]) != m.InputLen {
		return nil, nil, fmt.Errorf("signature shape %v does not match model input [1 %d]", sig.Shape, m.InputLen)
	}

	g := newGraph(c.opts)
	manifest := newManifest(m.Name)
	manifest.MaxLength = m.InputLen

	cur := g.addTensor(sig.Key+"_"+sig.InputName+":0", tflite.TensorTypeFloat32, sig.Shape, nil)
	input := cur
	shape := append([]int32(nil), sig.Shape...)

	for i, l := range m.Layers {
		var err error
		cur, shape, err = g.lower(l, cur, shape)
		if err != nil {
			return nil, nil, fmt.Errorf("lower layer %d (%s): %w", i, l.Name(), err)
		}
		switch layer := l.(type) {
		case *model.Embedding:
			manifest.VocabSize = layer.VocabSize
			manifest.EmbeddingDim = layer.Dim
		case *model.Dense:
			manifest.NumCategories = layer.Units
		}
	}
	g.sub.Tensors[cur].Name = "StatefulPartitionedCall:0"
	g.sub.Inputs = []int32{input}
	g.sub.Outputs = []int32{cur}

	manifest.WeightType = tflite.TensorTypeFloat32.String()
	if c.opts.float16Weights() {
		manifest.WeightType = tflite.TensorTypeFloat16.String()
	}
	manifest.Operators = g.operatorNames()
	manifestJSON, err := manifest.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest: %w", err)
	}

	g.model.Description = c.opts.Description
	g.model.Metadata = []tflite.Metadata{
		{Name: MetadataMinRuntimeVersion, Buffer: g.addBuffer(paddedVersion(minRuntimeVersion))},
		{Name: MetadataManifest, Buffer: g.addBuffer(manifestJSON)},
	}
	g.model.SignatureDefs = []tflite.SignatureDef{{
		Key:     sig.Key,
		Inputs:  []tflite.TensorMap{{Name: sig.InputName, TensorIndex: uint32(input)}},
		Outputs: []tflite.TensorMap{{Name: sig.OutputName, TensorIndex: uint32(cur)}},
	}}
	g.model.Subgraphs = []tflite.SubGraph{*g.sub}

	data, err := tflite.Encode(g.model)
	if err != nil {
		return nil, nil, err
	}
	c.log.Debug("model converted",
		"operators", len(g.sub.Operators),
		"tensors", len(g.sub.Tensors),
		"bytes", len(data),
		"weight_type", manifest.WeightType,
		"duration", time.Since(start).String(),
	)
	return data, manifest, nil
}

// WriteFile writes the serialized model, replacing any existing file.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model %s: %w", path, err)
	}
	return nil
}

type graph struct {
	opts    Options
	model   *tflite.Model
	sub     *tflite.SubGraph
	opcodes map[tflite.BuiltinOperator]uint32
}

func newGraph(opts Options) *graph {
	return &graph{
		opts: opts,
		model: &tflite.Model{
			Version: tflite.SchemaVersion,
			Buffers: []tflite.Buffer{{}},
		},
		sub:     &tflite.SubGraph{Name: "main"},
		opcodes: make(map[tflite.BuiltinOperator]uint32),
	}
}

func (g *graph) addBuffer(data []byte) uint32 {
	g.model.Buffers = append(g.model.Buffers, tflite.Buffer{Data: data})
	return uint32(len(g.model.Buffers) - 1)
}

func (g *graph) addTensor(name string, typ tflite.TensorType, shape []int32, data []byte) int32 {
	var buf uint32
	if len(data) > 0 {
		buf = g.addBuffer(data)
	}
	g.sub.Tensors = append(g.sub.Tensors, tflite.Tensor{
		Name:   name,
		Type:   typ,
		Shape:  append([]int32(nil), shape...),
		Buffer: buf,
	})
	return int32(len(g.sub.Tensors) - 1)
}

// addWeights stores float constants, as FLOAT16 plus a DEQUANTIZE when
// half-precision weights are enabled.
func (g *graph) addWeights(name string, shape []int32, values []float32) (int32, error) {
	if !g.opts.float16Weights() {
		data := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
		return g.addTensor(name, tflite.TensorTypeFloat32, shape, data), nil
	}

	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[i*2:], float16.New(v).Uint16())
	}
	half := g.addTensor(name, tflite.TensorTypeFloat16, shape, data)
	full := g.addTensor(name+"_dequantize", tflite.TensorTypeFloat32, shape, nil)
	if err := g.addOp(tflite.OpDequantize, []int32{half}, []int32{full}, &tflite.DequantizeOptions{}); err != nil {
		return 0, err
	}
	return full, nil
}

func (g *graph) addInt32s(name string, shape []int32, values []int32) int32 {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
	}
	return g.addTensor(name, tflite.TensorTypeInt32, shape, data)
}

func (g *graph) addOp(op tflite.BuiltinOperator, inputs, outputs []int32, opts tflite.BuiltinOptions) error {
	set, known := builtinOps[op]
	if !known || !g.opts.allows(set) {
		return fmt.Errorf("%w: %s needs %s, target allows %v", ErrUnsupportedOperator, op, set, g.opts.SupportedOps)
	}
	idx, ok := g.opcodes[op]
	if !ok {
		idx = uint32(len(g.model.OperatorCodes))
		g.model.OperatorCodes = append(g.model.OperatorCodes, tflite.OperatorCode{BuiltinCode: op, Version: 1})
		g.opcodes[op] = idx
	}
	g.sub.Operators = append(g.sub.Operators, tflite.Operator{
		OpcodeIndex: idx,
		Inputs:      inputs,
		Outputs:     outputs,
		Options:     opts,
	})
	return nil
}

func (g *graph) operatorNames() []string {
	names := make([]string, 0, len(g.opcodes))
	for op := range g.opcodes {
		names = append(names, op.String())
	}
	sort.Strings(names)
	return names
}

// lower appends the ops for one layer and returns the new current tensor and its shape.
func (g *graph) lower(l model.Layer, cur int32, shape []int32) (int32, []int32, error) {
	prefix := "sequential/" + l.Name()
	switch layer := l.(type) {
	case *model.Embedding:
		ids := g.addTensor(prefix+"/Cast", tflite.TensorTypeInt32, shape, nil)
		if err := g.addOp(tflite.OpCast, []int32{cur}, []int32{ids}, &tflite.CastOptions{
			InDataType:  tflite.TensorTypeFloat32,
			OutDataType: tflite.TensorTypeInt32,
		}); err != nil {
			return 0, nil, err
		}
		table, err := g.addWeights(prefix+"/embeddings", []int32{int32(layer.VocabSize), int32(layer.Dim)}, layer.Weights)
		if err != nil {
			return 0, nil, err
		}
		outShape := append(append([]int32(nil), shape...), int32(layer.Dim))
		out := g.addTensor(prefix+"/embedding_lookup", tflite.TensorTypeFloat32, outShape, nil)
		if err := g.addOp(tflite.OpGather, []int32{table, ids}, []int32{out}, &tflite.GatherOptions{Axis: 0}); err != nil {
			return 0, nil, err
		}
		return out, outShape, nil

	case *model.GlobalAveragePooling1D:
		if len(shape) != 3 {
			return 0, nil, fmt.Errorf("pooling expects [batch, steps, features], got %v", shape)
		}
		axis := g.addInt32s(prefix+"/Mean/reduction_indices", []int32{1}, []int32{1})
		outShape := []int32{shape[0], shape[2]}
		out := g.addTensor(prefix+"/Mean", tflite.TensorTypeFloat32, outShape, nil)
		if err := g.addOp(tflite.OpMean, []int32{cur, axis}, []int32{out}, &tflite.ReducerOptions{KeepDims: false}); err != nil {
			return 0, nil, err
		}
		return out, outShape, nil

	case *model.Dense:
		return g.lowerDense(prefix, layer, cur, shape)

	case *model.Dropout:
		// Identity at inference.
		return cur, shape, nil

	default:
		return 0, nil, fmt.Errorf("%w: no builtin lowering for %s layer %q", ErrUnsupportedOperator, l.Type(), l.Name())
	}
}

func (g *graph) lowerDense(prefix string, d *model.Dense, cur int32, shape []int32) (int32, []int32, error) {
	if len(shape) != 2 || int(shape[1]) != d.InputDim {
		return 0, nil, fmt.Errorf("dense %s expects [batch, %d], got %v", d.Name(), d.InputDim, shape)
	}
	weights, err := g.addWeights(prefix+"/MatMul", []int32{int32(d.Units), int32(d.InputDim)}, d.TransposedKernel())
	if err != nil {
		return 0, nil, err
	}
	bias, err := g.addWeights(prefix+"/BiasAdd/ReadVariableOp", []int32{int32(d.Units)}, d.Bias)
	if err != nil {
		return 0, nil, err
	}

	outShape := []int32{shape[0], int32(d.Units)}
	fused := tflite.ActivationNone
	if d.Activation == model.ActivationReLU && g.opts.optimized() {
		fused = tflite.ActivationRelu
	}
	out := g.addTensor(prefix+"/MatMul;"+prefix+"/BiasAdd", tflite.TensorTypeFloat32, outShape, nil)
	if err := g.addOp(tflite.OpFullyConnected, []int32{cur, weights, bias}, []int32{out}, &tflite.FullyConnectedOptions{FusedActivation: fused}); err != nil {
		return 0, nil, err
	}

	switch {
	case d.Activation == model.ActivationReLU && fused == tflite.ActivationNone:
		act := g.addTensor(prefix+"/Relu", tflite.TensorTypeFloat32, outShape, nil)
		if err := g.addOp(tflite.OpRelu, []int32{out}, []int32{act}, nil); err != nil {
			return 0, nil, err
		}
		out = act
	case d.Activation == model.ActivationSoftmax:
		act := g.addTensor(prefix+"/Softmax", tflite.TensorTypeFloat32, outShape, nil)
		if err := g.addOp(tflite.OpSoftmax, []int32{out}, []int32{act}, &tflite.SoftmaxOptions{Beta: 1}); err != nil {
			return 0, nil, err
		}
		out = act
	}
	return out, outShape, nil
}
