package simd

// ReLU clamps negative values to zero in place.
func ReLU(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// ReLU6 clamps x to [0, 6] in place.
func ReLU6(x []float32) {
	for i, v := range x {
		switch {
		case v < 0:
			x[i] = 0
		case v > 6:
			x[i] = 6
		}
	}
}

// Linear computes out[o] = dot(x, w[o*len(x):]) + bias[o] for a row-major
// [len(out), len(x)] weight matrix. bias may be nil.
func Linear(out, x, w, bias []float32) {
	in := len(x)
	for o := range out {
		row := w[o*in : (o+1)*in]
		var acc float32
		for i, v := range x {
			acc += v * row[i]
		}
		if bias != nil {
			acc += bias[o]
		}
		out[o] = acc
	}
}

// MeanRows averages a row-major [rows, len(out)] matrix over its rows.
func MeanRows(out, x []float32, rows int) {
	cols := len(out)
	for c := range out {
		out[c] = 0
	}
	if rows == 0 {
		return
	}
	for r := 0; r < rows; r++ {
		row := x[r*cols : (r+1)*cols]
		for c, v := range row {
			out[c] += v
		}
	}
	inv := 1 / float32(rows)
	for c := range out {
		out[c] *= inv
	}
}
