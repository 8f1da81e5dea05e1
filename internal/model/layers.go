package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/23skdu/smsmodel/internal/simd"
)

type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationSoftmax Activation = "softmax"
)

func (a Activation) apply(row []float32) error {
	switch a {
	case ActivationLinear, "":
	case ActivationReLU:
		simd.ReLU(row)
	case ActivationSoftmax:
		simd.Softmax(row, 1)
	default:
		return fmt.Errorf("unknown activation %q", a)
	}
	return nil
}

// Layer is one stage of a Sequential model. Build is called once with the
// per-example input shape and returns the output shape.
type Layer interface {
	Name() string
	Type() string
	Build(in Shape, rng *rand.Rand) (Shape, error)
	Forward(x *Tensor, training bool) (*Tensor, error)
	ParamCount() int
}

// Embedding maps integer token ids (carried as floats) to dense vectors.
// Ids are truncated toward zero before lookup.
type Embedding struct {
	name      string
	VocabSize int
	Dim       int
	// Weights is row-major [VocabSize, Dim].
	Weights []float32
}

func NewEmbedding(name string, vocabSize, dim int) *Embedding {
	return &Embedding{name: name, VocabSize: vocabSize, Dim: dim}
}

func (e *Embedding) Name() string { return e.name }
func (e *Embedding) Type() string { return "Embedding" }

func (e *Embedding) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("embedding %s: expected rank-1 input, got %v", e.name, in)
	}
	if e.VocabSize <= 0 || e.Dim <= 0 {
		return nil, fmt.Errorf("embedding %s: invalid size %dx%d", e.name, e.VocabSize, e.Dim)
	}
	e.Weights = make([]float32, e.VocabSize*e.Dim)
	for i := range e.Weights {
		e.Weights[i] = float32(uniform(rng, -0.05, 0.05))
	}
	return Shape{in[0], e.Dim}, nil
}

func (e *Embedding) Forward(x *Tensor, _ bool) (*Tensor, error) {
	seq := x.Shape[0]
	out := NewTensor(x.Batch, Shape{seq, e.Dim})
	for b := 0; b < x.Batch; b++ {
		ids := x.Row(b)
		dst := out.Row(b)
		for p, v := range ids {
			id := int(v)
			if id < 0 || id >= e.VocabSize {
				return nil, fmt.Errorf("embedding %s: token id %d at position %d is out of vocab range [0, %d)", e.name, id, p, e.VocabSize)
			}
			copy(dst[p*e.Dim:(p+1)*e.Dim], e.Weights[id*e.Dim:(id+1)*e.Dim])
		}
	}
	return out, nil
}

func (e *Embedding) ParamCount() int { return e.VocabSize * e.Dim }

// GlobalAveragePooling1D averages a [steps, features] input over steps.
type GlobalAveragePooling1D struct {
	name string
}

func NewGlobalAveragePooling1D(name string) *GlobalAveragePooling1D {
	return &GlobalAveragePooling1D{name: name}
}

func (g *GlobalAveragePooling1D) Name() string { return g.name }
func (g *GlobalAveragePooling1D) Type() string { return "GlobalAveragePooling1D" }

func (g *GlobalAveragePooling1D) Build(in Shape, _ *rand.Rand) (Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("pooling %s: expected rank-2 input, got %v", g.name, in)
	}
	return Shape{in[1]}, nil
}

func (g *GlobalAveragePooling1D) Forward(x *Tensor, _ bool) (*Tensor, error) {
	steps, features := x.Shape[0], x.Shape[1]
	out := NewTensor(x.Batch, Shape{features})
	for b := 0; b < x.Batch; b++ {
		simd.MeanRows(out.Row(b), x.Row(b), steps)
	}
	return out, nil
}

func (g *GlobalAveragePooling1D) ParamCount() int { return 0 }

// Dense is a fully connected layer with a glorot-uniform kernel and zero bias.
type Dense struct {
	name       string
	Units      int
	InputDim   int
	Activation Activation
	// Kernel is row-major [InputDim, Units].
	Kernel []float32
	Bias   []float32
}

func NewDense(name string, units int, activation Activation) *Dense {
	return &Dense{name: name, Units: units, Activation: activation}
}

func (d *Dense) Name() string { return d.name }
func (d *Dense) Type() string { return "Dense" }

func (d *Dense) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("dense %s: expected rank-1 input, got %v", d.name, in)
	}
	if d.Units <= 0 {
		return nil, fmt.Errorf("dense %s: invalid units %d", d.name, d.Units)
	}
	if err := d.Activation.apply(nil); err != nil {
		return nil, fmt.Errorf("dense %s: %w", d.name, err)
	}
	d.InputDim = in[0]
	limit := math.Sqrt(6 / float64(d.InputDim+d.Units))
	d.Kernel = make([]float32, d.InputDim*d.Units)
	for i := range d.Kernel {
		d.Kernel[i] = float32(uniform(rng, -limit, limit))
	}
	d.Bias = make([]float32, d.Units)
	return Shape{d.Units}, nil
}

func (d *Dense) Forward(x *Tensor, _ bool) (*Tensor, error) {
	out := NewTensor(x.Batch, Shape{d.Units})
	for b := 0; b < x.Batch; b++ {
		in := x.Row(b)
		dst := out.Row(b)
		copy(dst, d.Bias)
		for i, v := range in {
			if v == 0 {
				continue
			}
			row := d.Kernel[i*d.Units : (i+1)*d.Units]
			for u, w := range row {
				dst[u] += v * w
			}
		}
		if err := d.Activation.apply(dst); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TransposedKernel returns the kernel as row-major [Units, InputDim].
func (d *Dense) TransposedKernel() []float32 {
	t := make([]float32, len(d.Kernel))
	for i := 0; i < d.InputDim; i++ {
		for u := 0; u < d.Units; u++ {
			t[u*d.InputDim+i] = d.Kernel[i*d.Units+u]
		}
	}
	return t
}

func (d *Dense) ParamCount() int { return d.InputDim*d.Units + d.Units }

// Dropout zeroes a Rate fraction of activations during training and
// rescales the rest. At inference it is the identity.
type Dropout struct {
	name string
	Rate float64
	rng  *rand.Rand
}

func NewDropout(name string, rate float64) *Dropout {
	return &Dropout{name: name, Rate: rate}
}

func (d *Dropout) Name() string { return d.name }
func (d *Dropout) Type() string { return "Dropout" }

func (d *Dropout) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if d.Rate < 0 || d.Rate >= 1 {
		return nil, fmt.Errorf("dropout %s: rate %v outside [0, 1)", d.name, d.Rate)
	}
	d.rng = rng
	return append(Shape(nil), in...), nil
}

func (d *Dropout) Forward(x *Tensor, training bool) (*Tensor, error) {
	if !training || d.Rate == 0 {
		return x, nil
	}
	out := NewTensor(x.Batch, x.Shape)
	scale := float32(1 / (1 - d.Rate))
	for i, v := range x.Data {
		if d.rng.Float64() >= d.Rate {
			out.Data[i] = v * scale
		}
	}
	return out, nil
}

func (d *Dropout) ParamCount() int { return 0 }

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
