package tflite

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Encode serializes m into a TFLite flatbuffer. The model is validated first.
func Encode(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	size := 1024
	for _, buf := range m.Buffers {
		size += len(buf.Data) + BufferAlignment
	}
	b := flatbuffers.NewBuilder(size)

	buffers := make([]flatbuffers.UOffsetT, len(m.Buffers))
	for i := range m.Buffers {
		buffers[i] = encodeBuffer(b, &m.Buffers[i])
	}
	opcodes := make([]flatbuffers.UOffsetT, len(m.OperatorCodes))
	for i := range m.OperatorCodes {
		opcodes[i] = encodeOperatorCode(b, &m.OperatorCodes[i])
	}
	subgraphs := make([]flatbuffers.UOffsetT, len(m.Subgraphs))
	for i := range m.Subgraphs {
		off, err := encodeSubGraph(b, &m.Subgraphs[i])
		if err != nil {
			return nil, fmt.Errorf("encode subgraph %d: %w", i, err)
		}
		subgraphs[i] = off
	}
	metadata := make([]flatbuffers.UOffsetT, len(m.Metadata))
	for i, md := range m.Metadata {
		name := b.CreateString(md.Name)
		b.StartObject(2)
		b.PrependUOffsetTSlot(0, name, 0)
		b.PrependUint32Slot(1, md.Buffer, 0)
		metadata[i] = b.EndObject()
	}
	signatures := make([]flatbuffers.UOffsetT, len(m.SignatureDefs))
	for i := range m.SignatureDefs {
		signatures[i] = encodeSignatureDef(b, &m.SignatureDefs[i])
	}

	opcodesVec := offsetVector(b, opcodes)
	subgraphsVec := offsetVector(b, subgraphs)
	buffersVec := offsetVector(b, buffers)
	metadataVec := offsetVector(b, metadata)
	signaturesVec := offsetVector(b, signatures)
	description := b.CreateString(m.Description)

	b.StartObject(8)
	b.PrependUint32Slot(0, m.Version, 0)
	b.PrependUOffsetTSlot(1, opcodesVec, 0)
	b.PrependUOffsetTSlot(2, subgraphsVec, 0)
	b.PrependUOffsetTSlot(3, description, 0)
	b.PrependUOffsetTSlot(4, buffersVec, 0)
	b.PrependUOffsetTSlot(6, metadataVec, 0)
	b.PrependUOffsetTSlot(7, signaturesVec, 0)
	root := b.EndObject()

	b.FinishWithFileIdentifier(root, []byte(FileIdentifier))
	return b.FinishedBytes(), nil
}

func encodeBuffer(b *flatbuffers.Builder, buf *Buffer) flatbuffers.UOffsetT {
	if len(buf.Data) == 0 {
		b.StartObject(3)
		return b.EndObject()
	}
	b.StartVector(1, len(buf.Data), BufferAlignment)
	for i := len(buf.Data) - 1; i >= 0; i-- {
		b.PlaceByte(buf.Data[i])
	}
	data := b.EndVector(len(buf.Data))

	b.StartObject(3)
	b.PrependUOffsetTSlot(0, data, 0)
	return b.EndObject()
}

func encodeOperatorCode(b *flatbuffers.Builder, oc *OperatorCode) flatbuffers.UOffsetT {
	var custom flatbuffers.UOffsetT
	if oc.CustomCode != "" {
		custom = b.CreateString(oc.CustomCode)
	}
	deprecated := int8(deprecatedCodeLimit)
	if oc.BuiltinCode < deprecatedCodeLimit {
		deprecated = int8(oc.BuiltinCode)
	}
	version := oc.Version
	if version == 0 {
		version = 1
	}

	b.StartObject(4)
	b.PrependInt8Slot(0, deprecated, 0)
	if custom != 0 {
		b.PrependUOffsetTSlot(1, custom, 0)
	}
	b.PrependInt32Slot(2, version, 1)
	b.PrependInt32Slot(3, int32(oc.BuiltinCode), 0)
	return b.EndObject()
}

func encodeSubGraph(b *flatbuffers.Builder, sg *SubGraph) (flatbuffers.UOffsetT, error) {
	tensors := make([]flatbuffers.UOffsetT, len(sg.Tensors))
	for i := range sg.Tensors {
		tensors[i] = encodeTensor(b, &sg.Tensors[i])
	}
	operators := make([]flatbuffers.UOffsetT, len(sg.Operators))
	for i := range sg.Operators {
		off, err := encodeOperator(b, &sg.Operators[i])
		if err != nil {
			return 0, fmt.Errorf("operator %d: %w", i, err)
		}
		operators[i] = off
	}

	tensorsVec := offsetVector(b, tensors)
	inputs := int32Vector(b, sg.Inputs)
	outputs := int32Vector(b, sg.Outputs)
	operatorsVec := offsetVector(b, operators)
	name := b.CreateString(sg.Name)

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, tensorsVec, 0)
	b.PrependUOffsetTSlot(1, inputs, 0)
	b.PrependUOffsetTSlot(2, outputs, 0)
	b.PrependUOffsetTSlot(3, operatorsVec, 0)
	b.PrependUOffsetTSlot(4, name, 0)
	return b.EndObject(), nil
}

func encodeTensor(b *flatbuffers.Builder, t *Tensor) flatbuffers.UOffsetT {
	shape := int32Vector(b, t.Shape)
	name := b.CreateString(t.Name)
	var signature flatbuffers.UOffsetT
	if len(t.ShapeSignature) > 0 {
		signature = int32Vector(b, t.ShapeSignature)
	}

	b.StartObject(8)
	b.PrependUOffsetTSlot(0, shape, 0)
	b.PrependInt8Slot(1, int8(t.Type), 0)
	b.PrependUint32Slot(2, t.Buffer, 0)
	b.PrependUOffsetTSlot(3, name, 0)
	if signature != 0 {
		b.PrependUOffsetTSlot(7, signature, 0)
	}
	return b.EndObject()
}

func encodeOperator(b *flatbuffers.Builder, op *Operator) (flatbuffers.UOffsetT, error) {
	inputs := int32Vector(b, op.Inputs)
	outputs := int32Vector(b, op.Outputs)
	optionsType := OptionsNone
	var options flatbuffers.UOffsetT
	if op.Options != nil {
		off, err := encodeOptions(b, op.Options)
		if err != nil {
			return 0, err
		}
		optionsType = op.Options.OptionsType()
		options = off
	}

	b.StartObject(5)
	b.PrependUint32Slot(0, op.OpcodeIndex, 0)
	b.PrependUOffsetTSlot(1, inputs, 0)
	b.PrependUOffsetTSlot(2, outputs, 0)
	b.PrependByteSlot(3, byte(optionsType), 0)
	if options != 0 {
		b.PrependUOffsetTSlot(4, options, 0)
	}
	return b.EndObject(), nil
}

func encodeOptions(b *flatbuffers.Builder, opts BuiltinOptions) (flatbuffers.UOffsetT, error) {
	switch o := opts.(type) {
	case *FullyConnectedOptions:
		b.StartObject(4)
		b.PrependInt8Slot(0, int8(o.FusedActivation), 0)
		b.PrependBoolSlot(2, o.KeepNumDims, false)
	case *SoftmaxOptions:
		b.StartObject(1)
		b.PrependFloat32Slot(0, o.Beta, 0)
	case *GatherOptions:
		b.StartObject(2)
		b.PrependInt32Slot(0, o.Axis, 0)
		b.PrependInt32Slot(1, o.BatchDims, 0)
	case *ReducerOptions:
		b.StartObject(1)
		b.PrependBoolSlot(0, o.KeepDims, false)
	case *CastOptions:
		b.StartObject(2)
		b.PrependInt8Slot(0, int8(o.InDataType), 0)
		b.PrependInt8Slot(1, int8(o.OutDataType), 0)
	case *DequantizeOptions:
		b.StartObject(0)
	default:
		return 0, fmt.Errorf("unsupported builtin options %T", opts)
	}
	return b.EndObject(), nil
}

func encodeSignatureDef(b *flatbuffers.Builder, sig *SignatureDef) flatbuffers.UOffsetT {
	inputs := make([]flatbuffers.UOffsetT, len(sig.Inputs))
	for i, tm := range sig.Inputs {
		inputs[i] = encodeTensorMap(b, tm)
	}
	outputs := make([]flatbuffers.UOffsetT, len(sig.Outputs))
	for i, tm := range sig.Outputs {
		outputs[i] = encodeTensorMap(b, tm)
	}
	inputsVec := offsetVector(b, inputs)
	outputsVec := offsetVector(b, outputs)
	key := b.CreateString(sig.Key)

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, inputsVec, 0)
	b.PrependUOffsetTSlot(1, outputsVec, 0)
	b.PrependUOffsetTSlot(2, key, 0)
	b.PrependUint32Slot(4, sig.SubgraphIndex, 0)
	return b.EndObject()
}

func encodeTensorMap(b *flatbuffers.Builder, tm TensorMap) flatbuffers.UOffsetT {
	name := b.CreateString(tm.Name)
	b.StartObject(2)
	b.PrependUOffsetTSlot(0, name, 0)
	b.PrependUint32Slot(1, tm.TensorIndex, 0)
	return b.EndObject()
}

func offsetVector(b *flatbuffers.Builder, offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(flatbuffers.SizeUOffsetT, len(offs), flatbuffers.SizeUOffsetT)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}

func int32Vector(b *flatbuffers.Builder, vals []int32) flatbuffers.UOffsetT {
	b.StartVector(flatbuffers.SizeInt32, len(vals), flatbuffers.SizeInt32)
	for i := len(vals) - 1; i >= 0; i-- {
		b.PrependInt32(vals[i])
	}
	return b.EndVector(len(vals))
}
