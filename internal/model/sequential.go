package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

var ErrNotBuilt = errors.New("model is not built")

// Sequential chains layers so each consumes the previous layer's output.
type Sequential struct {
	Name     string
	Layers   []Layer
	InputLen int

	shapes []Shape
	built  bool
}

func NewSequential(name string, layers ...Layer) *Sequential {
	return &Sequential{Name: name, Layers: layers}
}

// Build initializes every layer's weights for inputs of inputLen token ids.
func (s *Sequential) Build(inputLen int, rng *rand.Rand) error {
	if inputLen <= 0 {
		return fmt.Errorf("invalid input length: %d (must be positive)", inputLen)
	}
	if len(s.Layers) == 0 {
		return fmt.Errorf("model %s has no layers", s.Name)
	}
	seen := make(map[string]bool, len(s.Layers))
	shape := Shape{inputLen}
	shapes := make([]Shape, 0, len(s.Layers))
	for _, l := range s.Layers {
		if seen[l.Name()] {
			return fmt.Errorf("duplicate layer name %q", l.Name())
		}
		seen[l.Name()] = true
		out, err := l.Build(shape, rng)
		if err != nil {
			return err
		}
		shapes = append(shapes, out)
		shape = out
	}
	s.InputLen = inputLen
	s.shapes = shapes
	s.built = true
	return nil
}

func (s *Sequential) Built() bool { return s.built }

// OutputShape returns the per-example shape produced by layer i.
func (s *Sequential) OutputShape(i int) Shape {
	return s.shapes[i]
}

func (s *Sequential) ParamCount() int {
	n := 0
	for _, l := range s.Layers {
		n += l.ParamCount()
	}
	return n
}

// Forward runs a batch of token-id rows through the model.
func (s *Sequential) Forward(batch [][]float32, training bool) ([][]float32, error) {
	if !s.built {
		return nil, ErrNotBuilt
	}
	x := NewTensor(len(batch), Shape{s.InputLen})
	for b, row := range batch {
		if len(row) != s.InputLen {
			return nil, fmt.Errorf("row %d has %d ids, model expects %d", b, len(row), s.InputLen)
		}
		copy(x.Row(b), row)
	}

	var err error
	for _, l := range s.Layers {
		x, err = l.Forward(x, training)
		if err != nil {
			return nil, err
		}
	}

	out := make([][]float32, x.Batch)
	for b := range out {
		out[b] = append([]float32(nil), x.Row(b)...)
	}
	return out, nil
}

// Predict is Forward in inference mode.
func (s *Sequential) Predict(batch [][]float32) ([][]float32, error) {
	return s.Forward(batch, false)
}

// Summary renders a layer table with output shapes and parameter counts.
func (s *Sequential) Summary() string {
	const width = 65
	var b strings.Builder
	rule := strings.Repeat("_", width)
	double := strings.Repeat("=", width)

	fmt.Fprintf(&b, "Model: %q\n", s.Name)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, " %-27s %-25s %s\n", "Layer (type)", "Output Shape", "Param #")
	b.WriteString(double + "\n")
	for i, l := range s.Layers {
		shape := "?"
		if s.built {
			shape = s.shapes[i].String()
		}
		fmt.Fprintf(&b, " %-27s %-25s %d\n", fmt.Sprintf("%s (%s)", l.Name(), l.Type()), shape, l.ParamCount())
		if i < len(s.Layers)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString(double + "\n")
	total := s.ParamCount()
	fmt.Fprintf(&b, "Total params: %s\n", groupThousands(total))
	fmt.Fprintf(&b, "Trainable params: %s\n", groupThousands(total))
	b.WriteString("Non-trainable params: 0\n")
	b.WriteString(rule + "\n")
	return b.String()
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
