package model

import (
	"fmt"
	"strings"
)

// Shape is a per-example shape; the batch dimension is never part of it.
type Shape []int

func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// String renders the shape with a leading unknown batch dimension, e.g. "(None, 128, 32)".
func (s Shape) String() string {
	parts := make([]string, 0, len(s)+1)
	parts = append(parts, "None")
	for _, d := range s {
		parts = append(parts, fmt.Sprintf("%d", d))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Tensor is a dense row-major float32 batch.
type Tensor struct {
	Batch int
	Shape Shape
	Data  []float32
}

func NewTensor(batch int, shape Shape) *Tensor {
	return &Tensor{
		Batch: batch,
		Shape: append(Shape(nil), shape...),
		Data:  make([]float32, batch*shape.Size()),
	}
}

// Row returns the slice holding example b.
func (t *Tensor) Row(b int) []float32 {
	n := t.Shape.Size()
	return t.Data[b*n : (b+1)*n]
}
