package simd

import "math"

var softmaxImpl func(x []float32, beta float32)

// Softmax normalizes x in place into a probability distribution over
// exp(beta*x). The max is subtracted first so large logits do not overflow.
func Softmax(x []float32, beta float32) {
	softmaxImpl(x, beta)
}

func init() {
	softmaxImpl = softmaxFallback
}

func softmaxFallback(x []float32, beta float32) {
	if len(x) == 0 {
		return
	}
	max := x[0]
	for _, v := range x {
		if v > max {
			max = v
		}
	}

	sum := float64(0)
	for i := range x {
		e := math.Exp(float64(beta * (x[i] - max)))
		x[i] = float32(e)
		sum += e
	}

	if sum > 0 {
		inv := float32(1 / sum)
		for i := range x {
			x[i] *= inv
		}
	}
}
