package tflite

import "fmt"

const (
	// SchemaVersion is the TFLite flatbuffer schema revision this package reads and writes.
	SchemaVersion = 3
	// FileIdentifier sits at bytes 4..8 of every model file.
	FileIdentifier = "TFL3"
	// BufferAlignment is the alignment of constant tensor data inside the file.
	BufferAlignment = 16
)

type TensorType int8

const (
	TensorTypeFloat32 TensorType = 0
	TensorTypeFloat16 TensorType = 1
	TensorTypeInt32   TensorType = 2
	TensorTypeUint8   TensorType = 3
	TensorTypeInt64   TensorType = 4
	TensorTypeString  TensorType = 5
	TensorTypeBool    TensorType = 6
	TensorTypeInt16   TensorType = 7
	TensorTypeInt8    TensorType = 9
)

// Size returns the element size in bytes, or 0 for variable-size types.
func (t TensorType) Size() int {
	switch t {
	case TensorTypeFloat32, TensorTypeInt32:
		return 4
	case TensorTypeFloat16, TensorTypeInt16:
		return 2
	case TensorTypeUint8, TensorTypeInt8, TensorTypeBool:
		return 1
	case TensorTypeInt64:
		return 8
	default:
		return 0
	}
}

func (t TensorType) String() string {
	switch t {
	case TensorTypeFloat32:
		return "FLOAT32"
	case TensorTypeFloat16:
		return "FLOAT16"
	case TensorTypeInt32:
		return "INT32"
	case TensorTypeUint8:
		return "UINT8"
	case TensorTypeInt64:
		return "INT64"
	case TensorTypeString:
		return "STRING"
	case TensorTypeBool:
		return "BOOL"
	case TensorTypeInt16:
		return "INT16"
	case TensorTypeInt8:
		return "INT8"
	default:
		return fmt.Sprintf("UNKNOWN_TYPE_%d", t)
	}
}

type BuiltinOperator int32

const (
	OpAdd            BuiltinOperator = 0
	OpDequantize     BuiltinOperator = 6
	OpFullyConnected BuiltinOperator = 9
	OpLogistic       BuiltinOperator = 14
	OpRelu           BuiltinOperator = 19
	OpRelu6          BuiltinOperator = 21
	OpReshape        BuiltinOperator = 22
	OpSoftmax        BuiltinOperator = 25
	OpCustom         BuiltinOperator = 32
	OpGather         BuiltinOperator = 36
	OpMean           BuiltinOperator = 40
	OpCast           BuiltinOperator = 53
)

// deprecatedCodeLimit is the first builtin code that no longer fits the
// legacy int8 deprecated_builtin_code field.
const deprecatedCodeLimit = 127

func (op BuiltinOperator) String() string {
	switch op {
	case OpAdd:
		return "ADD"
	case OpDequantize:
		return "DEQUANTIZE"
	case OpFullyConnected:
		return "FULLY_CONNECTED"
	case OpLogistic:
		return "LOGISTIC"
	case OpRelu:
		return "RELU"
	case OpRelu6:
		return "RELU6"
	case OpReshape:
		return "RESHAPE"
	case OpSoftmax:
		return "SOFTMAX"
	case OpCustom:
		return "CUSTOM"
	case OpGather:
		return "GATHER"
	case OpMean:
		return "MEAN"
	case OpCast:
		return "CAST"
	default:
		return fmt.Sprintf("BUILTIN_%d", int32(op))
	}
}

type ActivationFunctionType int8

const (
	ActivationNone  ActivationFunctionType = 0
	ActivationRelu  ActivationFunctionType = 1
	ActivationRelu6 ActivationFunctionType = 3
)

func (a ActivationFunctionType) String() string {
	switch a {
	case ActivationNone:
		return "NONE"
	case ActivationRelu:
		return "RELU"
	case ActivationRelu6:
		return "RELU6"
	default:
		return fmt.Sprintf("ACTIVATION_%d", a)
	}
}

// BuiltinOptionsType is the union discriminator stored next to Operator.builtin_options.
type BuiltinOptionsType uint8

const (
	OptionsNone           BuiltinOptionsType = 0
	OptionsFullyConnected BuiltinOptionsType = 8
	OptionsSoftmax        BuiltinOptionsType = 9
	OptionsGather         BuiltinOptionsType = 23
	OptionsReducer        BuiltinOptionsType = 27
	OptionsCast           BuiltinOptionsType = 37
	OptionsDequantize     BuiltinOptionsType = 38
)

// BuiltinOptions is one member of the builtin_options union.
type BuiltinOptions interface {
	OptionsType() BuiltinOptionsType
}

type FullyConnectedOptions struct {
	FusedActivation ActivationFunctionType
	KeepNumDims     bool
}

type SoftmaxOptions struct {
	Beta float32
}

type GatherOptions struct {
	Axis      int32
	BatchDims int32
}

type ReducerOptions struct {
	KeepDims bool
}

type CastOptions struct {
	InDataType  TensorType
	OutDataType TensorType
}

type DequantizeOptions struct{}

func (*FullyConnectedOptions) OptionsType() BuiltinOptionsType { return OptionsFullyConnected }
func (*SoftmaxOptions) OptionsType() BuiltinOptionsType        { return OptionsSoftmax }
func (*GatherOptions) OptionsType() BuiltinOptionsType         { return OptionsGather }
func (*ReducerOptions) OptionsType() BuiltinOptionsType        { return OptionsReducer }
func (*CastOptions) OptionsType() BuiltinOptionsType           { return OptionsCast }
func (*DequantizeOptions) OptionsType() BuiltinOptionsType     { return OptionsDequantize }
