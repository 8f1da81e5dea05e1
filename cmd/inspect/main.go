package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/23skdu/smsmodel/internal/export"
	"github.com/23skdu/smsmodel/internal/interpreter"
	"github.com/23skdu/smsmodel/internal/tflite"
	"github.com/23skdu/smsmodel/internal/vocab"
)

func main() {
	modelPath := flag.String("model", "sms_classifier.tflite", "Path to TFLite model file")
	vocabPath := flag.String("vocab", "vocab.txt", "Path to vocabulary file (used with -text)")
	text := flag.String("text", "", "Classify this message after printing the model layout")
	flag.Parse()

	fmt.Printf("Loading model: %s\n", *modelPath)
	m, err := tflite.ReadFile(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}

	fmt.Printf("\n=== Model (schema v%d) ===\n", m.Version)
	if m.Description != "" {
		fmt.Printf("Description: %s\n", m.Description)
	}
	for _, md := range m.Metadata {
		fmt.Printf("Metadata: %-20s | %d bytes\n", md.Name, len(m.Buffers[md.Buffer].Data))
	}
	if raw, ok := m.MetadataBytes(export.MetadataManifest); ok {
		if man, err := export.ParseManifest(raw); err == nil {
			fmt.Printf("Build: %s (%s weights, created %s)\n", man.BuildID, man.WeightType, man.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}
	for _, sig := range m.SignatureDefs {
		fmt.Printf("Signature: %s\n", sig.Key)
	}

	sg := m.Subgraphs[0]
	fmt.Println("\n=== Tensors ===")
	for i, t := range sg.Tensors {
		kind := "activation"
		if len(m.Buffers[t.Buffer].Data) > 0 {
			kind = "constant"
		}
		fmt.Printf("%3d %-8s %-14v %-10s %s\n", i, t.Type, t.Shape, kind, t.Name)
	}

	fmt.Println("\n=== Operators ===")
	for i, op := range sg.Operators {
		code := m.OperatorCodes[op.OpcodeIndex].BuiltinCode
		fmt.Printf("%3d %-16s in=%v out=%v\n", i, code, op.Inputs, op.Outputs)
	}

	if *text == "" {
		return
	}

	v, err := vocab.Load(*vocabPath)
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}
	it, err := interpreter.NewFromFile(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load interpreter: %v", err)
	}
	if err := it.AllocateTensors(); err != nil {
		log.Fatalf("Failed to allocate tensors: %v", err)
	}
	in := it.InputDetails()[0]
	row := v.Encode(*text, int(in.Shape[len(in.Shape)-1]))
	if err := it.SetInputFloat32(0, row); err != nil {
		log.Fatalf("Failed to set input: %v", err)
	}
	if err := it.Invoke(); err != nil {
		log.Fatalf("Inference failed: %v", err)
	}
	probs, err := it.OutputFloat32(0)
	if err != nil {
		log.Fatalf("Failed to read output: %v", err)
	}

	fmt.Printf("\n=== Classification ===\n")
	fmt.Printf("Tokens: %s\n", v.Decode(row))
	best := 0
	for i, p := range probs {
		fmt.Printf("  category %d: %.4f\n", i, p)
		if p > probs[best] {
			best = i
		}
	}
	fmt.Printf("Top category: %d\n", best)
}
