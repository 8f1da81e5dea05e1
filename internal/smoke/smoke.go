// Package smoke loads an exported model and runs one inference on a fixed sample.
package smoke

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/23skdu/smsmodel/internal/export"
	"github.com/23skdu/smsmodel/internal/interpreter"
	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/metrics"
	"github.com/23skdu/smsmodel/internal/tflite"
)

// PreviewValues is how many output probabilities a report shows.
const PreviewValues = 3

// Error is returned for every smoke-test failure.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string { return "inference smoke-test failed: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Host identifies the machine a smoke test ran on.
type Host struct {
	CPU      string
	Cores    int
	Features []string
}

// Report is the result of a successful smoke test.
type Report struct {
	Path        string
	BuildID     string
	InputShape  []int32
	OutputShape []int32
	Output      []float32
	Duration    time.Duration
	Host        Host
}

// Preview returns the first PreviewValues outputs.
func (r *Report) Preview() []float32 {
	if len(r.Output) < PreviewValues {
		return r.Output
	}
	return r.Output[:PreviewValues]
}

// Print writes the model details and sample output as operator-facing text.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "\nModel Details:")
	fmt.Fprintf(w, "  Input shape: %v\n", r.InputShape)
	fmt.Fprintf(w, "  Output shape: %v\n", r.OutputShape)
	fmt.Fprintln(w, "\nSample inference successful!")
	fmt.Fprintf(w, "  Output shape: %s\n", tupleShape(r.OutputShape))
	fmt.Fprintf(w, "  Sample output: %v... (showing first %d values)\n", r.Preview(), PreviewValues)
}

func tupleShape(shape []int32) string {
	s := "("
	for i, d := range shape {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(d)
	}
	return s + ")"
}

// SampleInput is the fixed probe row: ids 1..5 followed by padding, width long.
func SampleInput(width int) []float32 {
	row := make([]float32, width)
	for i := 0; i < 5 && i < width; i++ {
		row[i] = float32(i + 1)
	}
	return row
}

func hostInfo() Host {
	h := Host{
		CPU:   cpuid.CPU.BrandName,
		Cores: cpuid.CPU.PhysicalCores,
	}
	for _, f := range []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			h.Features = append(h.Features, f.String())
		}
	}
	return h
}

// Run loads the model at path, feeds it SampleInput and reports the
// result. Any failure, including a panic in the runtime, comes back as *Error.
func Run(path string) (report *Report, err error) {
	log := logger.Log.With("component", "smoke", "path", path)
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			var se *Error
			if !errors.As(err, &se) {
				err = &Error{Path: path, Err: err}
			}
			log.Warn("smoke test failed", "error", err.Error())
		}
		metrics.RecordSmokeTest(err == nil)
	}()

	it, err := interpreter.NewFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := it.AllocateTensors(); err != nil {
		return nil, err
	}

	inputs, outputs := it.InputDetails(), it.OutputDetails()
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected one input and one output, got %d and %d", len(inputs), len(outputs))
	}
	in := inputs[0]
	if in.Type != tflite.TensorTypeFloat32 || len(in.Shape) != 2 || in.Shape[0] != 1 {
		return nil, fmt.Errorf("input %q has type %s shape %v, want FLOAT32 [1 n]", in.Name, in.Type, in.Shape)
	}

	start := time.Now()
	if err := it.SetInputFloat32(0, SampleInput(int(in.Shape[1]))); err != nil {
		return nil, err
	}
	if err := it.Invoke(); err != nil {
		return nil, err
	}
	out, err := it.OutputFloat32(0)
	if err != nil {
		return nil, err
	}

	report = &Report{
		Path:        path,
		InputShape:  in.Shape,
		OutputShape: outputs[0].Shape,
		Output:      out,
		Duration:    time.Since(start),
		Host:        hostInfo(),
	}
	if raw, ok := it.Metadata(export.MetadataManifest); ok {
		if m, err := export.ParseManifest(raw); err == nil {
			report.BuildID = m.BuildID
		}
	}
	log.Info("smoke test passed",
		"build_id", report.BuildID,
		"duration", report.Duration.String(),
		"cpu", report.Host.CPU,
	)
	return report, nil
}
