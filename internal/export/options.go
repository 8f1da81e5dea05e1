package export

import (
	"errors"

	"github.com/23skdu/smsmodel/internal/tflite"
)

var ErrUnsupportedOperator = errors.New("operator not in the supported op set")

// OpsSet names a family of operators a target runtime provides.
type OpsSet int

const (
	// OpsSetBuiltins is the baseline set every TFLite runtime registers.
	OpsSetBuiltins OpsSet = iota
	// OpsSetSelectTFOps needs the Flex delegate linked into the app.
	OpsSetSelectTFOps
)

func (s OpsSet) String() string {
	switch s {
	case OpsSetBuiltins:
		return "TFLITE_BUILTINS"
	case OpsSetSelectTFOps:
		return "SELECT_TF_OPS"
	default:
		return "UNKNOWN_OPS_SET"
	}
}

type Optimization int

const (
	// OptimizeDefault fuses activations into the preceding kernel and
	// applies the weight types listed in Options.SupportedTypes.
	OptimizeDefault Optimization = iota + 1
)

type Options struct {
	SupportedOps   []OpsSet
	Optimizations  []Optimization
	SupportedTypes []tflite.TensorType
	Description    string
}

// DefaultOptions targets minimal runtimes: builtin ops only, default
// optimizations, float16 weight storage.
func DefaultOptions() Options {
	return Options{
		SupportedOps:   []OpsSet{OpsSetBuiltins},
		Optimizations:  []Optimization{OptimizeDefault},
		SupportedTypes: []tflite.TensorType{tflite.TensorTypeFloat16},
		Description:    "SMS classifier (untrained demo weights)",
	}
}

func (o Options) allows(set OpsSet) bool {
	for _, s := range o.SupportedOps {
		if s == set {
			return true
		}
	}
	return false
}

func (o Options) optimized() bool {
	for _, opt := range o.Optimizations {
		if opt == OptimizeDefault {
			return true
		}
	}
	return false
}

func (o Options) float16Weights() bool {
	if !o.optimized() {
		return false
	}
	for _, t := range o.SupportedTypes {
		if t == tflite.TensorTypeFloat16 {
			return true
		}
	}
	return false
}

// builtinOps lists the operators this converter can emit and the set each belongs to.
var builtinOps = map[tflite.BuiltinOperator]OpsSet{
	tflite.OpCast:           OpsSetBuiltins,
	tflite.OpDequantize:     OpsSetBuiltins,
	tflite.OpFullyConnected: OpsSetBuiltins,
	tflite.OpGather:         OpsSetBuiltins,
	tflite.OpMean:           OpsSetBuiltins,
	tflite.OpRelu:           OpsSetBuiltins,
	tflite.OpSoftmax:        OpsSetBuiltins,
}
