package interpreter

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/float16"

	"github.com/23skdu/smsmodel/internal/simd"
	"github.com/23skdu/smsmodel/internal/tflite"
)

// node is one operator bound to its runtime tensors.
type node struct {
	op      tflite.BuiltinOperator
	inputs  []*tensor
	outputs []*tensor
	options tflite.BuiltinOptions
	eval    func(n *node) error
}

// prepareFunc validates a node's tensors and options and returns its eval function.
type prepareFunc func(n *node) (func(n *node) error, error)

var registry = map[tflite.BuiltinOperator]prepareFunc{
	tflite.OpCast:           prepareCast,
	tflite.OpGather:         prepareGather,
	tflite.OpMean:           prepareMean,
	tflite.OpFullyConnected: prepareFullyConnected,
	tflite.OpRelu:           prepareRelu,
	tflite.OpSoftmax:        prepareSoftmax,
	tflite.OpDequantize:     prepareDequantize,
}

func (n *node) arity(inputs, outputs int) error {
	if len(n.inputs) < inputs || len(n.outputs) != outputs {
		return fmt.Errorf("%s: expected %d inputs and %d outputs, got %d and %d", n.op, inputs, outputs, len(n.inputs), len(n.outputs))
	}
	for i := 0; i < inputs; i++ {
		if n.inputs[i] == nil {
			return fmt.Errorf("%s: required input %d is omitted", n.op, i)
		}
	}
	for _, out := range n.outputs {
		if out.constant {
			return fmt.Errorf("%s: output %q is a constant tensor", n.op, out.meta.Name)
		}
	}
	return nil
}

func (n *node) typed(t *tensor, want tflite.TensorType) error {
	if t.meta.Type != want {
		return fmt.Errorf("%s: tensor %q is %s, want %s", n.op, t.meta.Name, t.meta.Type, want)
	}
	return nil
}

func (n *node) sameSize(a, b *tensor) error {
	if a.size() != b.size() {
		return fmt.Errorf("%s: %q has %d elements, %q has %d", n.op, a.meta.Name, a.size(), b.meta.Name, b.size())
	}
	return nil
}

func prepareCast(n *node) (func(*node) error, error) {
	if err := n.arity(1, 1); err != nil {
		return nil, err
	}
	in, out := n.inputs[0], n.outputs[0]
	if err := n.sameSize(in, out); err != nil {
		return nil, err
	}
	switch {
	case in.meta.Type == tflite.TensorTypeFloat32 && out.meta.Type == tflite.TensorTypeInt32:
		return func(n *node) error {
			dst := n.outputs[0].i32
			for i, v := range n.inputs[0].f32 {
				dst[i] = int32(v)
			}
			return nil
		}, nil
	case in.meta.Type == tflite.TensorTypeInt32 && out.meta.Type == tflite.TensorTypeFloat32:
		return func(n *node) error {
			dst := n.outputs[0].f32
			for i, v := range n.inputs[0].i32 {
				dst[i] = float32(v)
			}
			return nil
		}, nil
	}
	return nil, fmt.Errorf("%w: CAST from %s to %s", ErrUnsupportedOp, in.meta.Type, out.meta.Type)
}

func prepareGather(n *node) (func(*node) error, error) {
	if err := n.arity(2, 1); err != nil {
		return nil, err
	}
	params, indices, out := n.inputs[0], n.inputs[1], n.outputs[0]
	if err := n.typed(params, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.typed(indices, tflite.TensorTypeInt32); err != nil {
		return nil, err
	}
	if err := n.typed(out, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if opts, ok := n.options.(*tflite.GatherOptions); ok && (opts.Axis != 0 || opts.BatchDims != 0) {
		return nil, fmt.Errorf("%w: GATHER on axis %d with %d batch dims", ErrUnsupportedOp, opts.Axis, opts.BatchDims)
	}
	if len(params.meta.Shape) < 1 || params.meta.Shape[0] == 0 {
		return nil, fmt.Errorf("GATHER: params %q has shape %v", params.meta.Name, params.meta.Shape)
	}
	rows := int(params.meta.Shape[0])
	width := params.size() / rows
	if out.size() != indices.size()*width {
		return nil, fmt.Errorf("GATHER: output %q has %d elements, want %d", out.meta.Name, out.size(), indices.size()*width)
	}

	return func(n *node) error {
		src, dst := n.inputs[0].f32, n.outputs[0].f32
		for i, id := range n.inputs[1].i32 {
			if id < 0 || int(id) >= rows {
				return fmt.Errorf("GATHER: index %d out of range [0, %d)", id, rows)
			}
			copy(dst[i*width:(i+1)*width], src[int(id)*width:(int(id)+1)*width])
		}
		return nil
	}, nil
}

func prepareMean(n *node) (func(*node) error, error) {
	if err := n.arity(2, 1); err != nil {
		return nil, err
	}
	in, axes, out := n.inputs[0], n.inputs[1], n.outputs[0]
	if err := n.typed(in, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.typed(axes, tflite.TensorTypeInt32); err != nil {
		return nil, err
	}
	if err := n.typed(out, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if !axes.constant || len(axes.i32) != 1 {
		return nil, fmt.Errorf("%w: MEAN needs a single constant reduction axis", ErrUnsupportedOp)
	}
	shape := in.meta.Shape
	axis := int(axes.i32[0])
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis >= len(shape) {
		return nil, fmt.Errorf("MEAN: axis %d out of range for shape %v", axes.i32[0], shape)
	}

	outer, inner := 1, 1
	for _, d := range shape[:axis] {
		outer *= int(d)
	}
	for _, d := range shape[axis+1:] {
		inner *= int(d)
	}
	steps := int(shape[axis])
	if out.size() != outer*inner {
		return nil, fmt.Errorf("MEAN: output %q has %d elements, want %d", out.meta.Name, out.size(), outer*inner)
	}

	return func(n *node) error {
		src, dst := n.inputs[0].f32, n.outputs[0].f32
		block := steps * inner
		for o := 0; o < outer; o++ {
			simd.MeanRows(dst[o*inner:(o+1)*inner], src[o*block:(o+1)*block], steps)
		}
		return nil
	}, nil
}

func activationFunc(op tflite.BuiltinOperator, act tflite.ActivationFunctionType) (func([]float32), error) {
	switch act {
	case tflite.ActivationNone:
		return func([]float32) {}, nil
	case tflite.ActivationRelu:
		return simd.ReLU, nil
	case tflite.ActivationRelu6:
		return simd.ReLU6, nil
	}
	return nil, fmt.Errorf("%w: %s with fused activation %s", ErrUnsupportedOp, op, act)
}

func prepareFullyConnected(n *node) (func(*node) error, error) {
	if err := n.arity(2, 1); err != nil {
		return nil, err
	}
	in, weights, out := n.inputs[0], n.inputs[1], n.outputs[0]
	var bias *tensor
	if len(n.inputs) > 2 {
		bias = n.inputs[2]
	}
	for _, t := range []*tensor{in, weights, out} {
		if err := n.typed(t, tflite.TensorTypeFloat32); err != nil {
			return nil, err
		}
	}
	if len(weights.meta.Shape) != 2 {
		return nil, fmt.Errorf("FULLY_CONNECTED: weights %q have shape %v, want [units, in]", weights.meta.Name, weights.meta.Shape)
	}
	units, depth := int(weights.meta.Shape[0]), int(weights.meta.Shape[1])
	if depth == 0 || in.size()%depth != 0 {
		return nil, fmt.Errorf("FULLY_CONNECTED: input %q with %d elements does not divide into rows of %d", in.meta.Name, in.size(), depth)
	}
	batch := in.size() / depth
	if out.size() != batch*units {
		return nil, fmt.Errorf("FULLY_CONNECTED: output %q has %d elements, want %d", out.meta.Name, out.size(), batch*units)
	}
	if bias != nil {
		if err := n.typed(bias, tflite.TensorTypeFloat32); err != nil {
			return nil, err
		}
		if bias.size() != units {
			return nil, fmt.Errorf("FULLY_CONNECTED: bias %q has %d elements, want %d", bias.meta.Name, bias.size(), units)
		}
	}

	fused := tflite.ActivationNone
	if opts, ok := n.options.(*tflite.FullyConnectedOptions); ok {
		fused = opts.FusedActivation
	}
	activate, err := activationFunc(n.op, fused)
	if err != nil {
		return nil, err
	}

	return func(n *node) error {
		x, w, dst := n.inputs[0].f32, n.inputs[1].f32, n.outputs[0].f32
		var b []float32
		if bias != nil {
			b = bias.f32
		}
		for r := 0; r < batch; r++ {
			row := dst[r*units : (r+1)*units]
			simd.Linear(row, x[r*depth:(r+1)*depth], w, b)
			activate(row)
		}
		return nil
	}, nil
}

func prepareRelu(n *node) (func(*node) error, error) {
	if err := n.arity(1, 1); err != nil {
		return nil, err
	}
	in, out := n.inputs[0], n.outputs[0]
	if err := n.typed(in, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.typed(out, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.sameSize(in, out); err != nil {
		return nil, err
	}
	return func(n *node) error {
		dst := n.outputs[0].f32
		copy(dst, n.inputs[0].f32)
		simd.ReLU(dst)
		return nil
	}, nil
}

func prepareSoftmax(n *node) (func(*node) error, error) {
	if err := n.arity(1, 1); err != nil {
		return nil, err
	}
	in, out := n.inputs[0], n.outputs[0]
	if err := n.typed(in, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.typed(out, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if err := n.sameSize(in, out); err != nil {
		return nil, err
	}
	shape := in.meta.Shape
	if len(shape) == 0 || shape[len(shape)-1] == 0 {
		return nil, fmt.Errorf("SOFTMAX: input %q has shape %v", in.meta.Name, shape)
	}
	classes := int(shape[len(shape)-1])
	beta := float32(1)
	if opts, ok := n.options.(*tflite.SoftmaxOptions); ok {
		beta = opts.Beta
	}

	return func(n *node) error {
		dst := n.outputs[0].f32
		copy(dst, n.inputs[0].f32)
		for r := 0; r+classes <= len(dst); r += classes {
			simd.Softmax(dst[r:r+classes], beta)
		}
		return nil
	}, nil
}

func prepareDequantize(n *node) (func(*node) error, error) {
	if err := n.arity(1, 1); err != nil {
		return nil, err
	}
	in, out := n.inputs[0], n.outputs[0]
	if err := n.typed(out, tflite.TensorTypeFloat32); err != nil {
		return nil, err
	}
	if in.meta.Type != tflite.TensorTypeFloat16 {
		return nil, fmt.Errorf("%w: DEQUANTIZE from %s", ErrUnsupportedOp, in.meta.Type)
	}
	if err := n.sameSize(in, out); err != nil {
		return nil, err
	}
	return func(n *node) error {
		dst := n.outputs[0].f32
		for i, h := range n.inputs[0].f16 {
			dst[i] = float16.FromBits(h).Float32()
		}
		return nil
	}, nil
}
