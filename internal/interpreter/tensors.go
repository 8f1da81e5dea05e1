package interpreter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/23skdu/smsmodel/internal/tflite"
)

// tensor is the runtime storage for one subgraph tensor. Exactly one of
// the typed slices is set, matching meta.Type.
type tensor struct {
	meta     *tflite.Tensor
	constant bool
	f32      []float32
	i32      []int32
	f16      []uint16
}

func (t *tensor) bytes() int64 {
	return int64(4*cap(t.f32) + 4*cap(t.i32) + 2*cap(t.f16))
}

func (t *tensor) size() int {
	switch t.meta.Type {
	case tflite.TensorTypeFloat32:
		return len(t.f32)
	case tflite.TensorTypeInt32:
		return len(t.i32)
	case tflite.TensorTypeFloat16:
		return len(t.f16)
	}
	return 0
}

// maxElements bounds a single activation so a corrupt shape cannot exhaust memory.
const maxElements = 1 << 28

// allocTensor materializes constant data from buf or allocates zeroed
// activation storage when buf is empty.
func allocTensor(meta *tflite.Tensor, buf []byte) (*tensor, error) {
	n := 1
	for _, d := range meta.Shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor %q has dynamic shape %v", meta.Name, meta.Shape)
		}
		if d > 0 && n > maxElements/int(d) {
			return nil, fmt.Errorf("tensor %q: shape %v exceeds %d elements", meta.Name, meta.Shape, maxElements)
		}
		n *= int(d)
	}
	t := &tensor{meta: meta, constant: len(buf) > 0}
	if t.constant && len(buf) != meta.ByteSize() {
		return nil, fmt.Errorf("tensor %q: buffer has %d bytes, shape %v needs %d", meta.Name, len(buf), meta.Shape, meta.ByteSize())
	}

	switch meta.Type {
	case tflite.TensorTypeFloat32:
		t.f32 = make([]float32, n)
		for i := range t.f32[:len(buf)/4] {
			t.f32[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case tflite.TensorTypeInt32:
		t.i32 = make([]int32, n)
		for i := range t.i32[:len(buf)/4] {
			t.i32[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case tflite.TensorTypeFloat16:
		t.f16 = make([]uint16, n)
		for i := range t.f16[:len(buf)/2] {
			t.f16[i] = binary.LittleEndian.Uint16(buf[i*2:])
		}
	default:
		return nil, fmt.Errorf("%w: tensor %q has type %s", ErrUnsupportedType, meta.Name, meta.Type)
	}
	return t, nil
}
