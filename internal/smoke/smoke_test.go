package smoke

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/23skdu/smsmodel/internal/export"
	"github.com/23skdu/smsmodel/internal/metrics"
	"github.com/23skdu/smsmodel/internal/model"
	"github.com/23skdu/smsmodel/internal/tflite"
)

func writeModel(t *testing.T) (string, []byte) {
	t.Helper()
	m, err := model.NewSMSClassifier(model.ClassifierOptions{
		VocabSize:     5000,
		EmbeddingDim:  32,
		MaxLength:     128,
		Hidden1:       64,
		Hidden2:       32,
		NumCategories: 8,
		DropoutRate:   0.3,
	}, model.NewRand(3))
	if err != nil {
		t.Fatal(err)
	}
	data, err := export.NewConverter(export.DefaultOptions()).Convert(m, export.DefaultSignature(128))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "sms_classifier.tflite")
	if err := export.WriteFile(path, data); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func TestSampleInput(t *testing.T) {
	row := SampleInput(128)
	if len(row) != 128 {
		t.Fatalf("expected 128 values, got %d", len(row))
	}
	for i, v := range row {
		want := float32(0)
		if i < 5 {
			want = float32(i + 1)
		}
		if v != want {
			t.Errorf("row[%d] = %v, want %v", i, v, want)
		}
	}
	if got := SampleInput(3); len(got) != 3 || got[2] != 3 {
		t.Errorf("short sample %v", got)
	}
}

func TestRun(t *testing.T) {
	path, _ := writeModel(t)
	ok := metrics.SmokeTests.WithLabelValues(metrics.SmokeResultOK)
	before := testutil.ToFloat64(ok)

	report, err := Run(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(ok) - before; got != 1 {
		t.Errorf("expected one ok smoke test recorded, got %v", got)
	}

	if len(report.InputShape) != 2 || report.InputShape[0] != 1 || report.InputShape[1] != 128 {
		t.Errorf("input shape %v", report.InputShape)
	}
	if len(report.OutputShape) != 2 || report.OutputShape[0] != 1 || report.OutputShape[1] != 8 {
		t.Errorf("output shape %v", report.OutputShape)
	}
	if len(report.Output) != 8 || len(report.Preview()) != PreviewValues {
		t.Errorf("output %v preview %v", report.Output, report.Preview())
	}
	var sum float32
	for _, v := range report.Output {
		if v < 0 {
			t.Errorf("negative probability %v", v)
		}
		sum += v
	}
	if sum < 0.9999 || sum > 1.0001 {
		t.Errorf("probabilities sum to %v", sum)
	}
	if report.BuildID == "" {
		t.Error("report is missing the build id")
	}

	var out bytes.Buffer
	report.Print(&out)
	for _, want := range []string{
		"Input shape: [1 128]",
		"Output shape: [1 8]",
		"Sample inference successful!",
		"Output shape: (1, 8)",
		"(showing first 3 values)",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunFailures(t *testing.T) {
	path, data := writeModel(t)
	failed := metrics.SmokeTests.WithLabelValues(metrics.SmokeResultFailed)

	truncated := filepath.Join(filepath.Dir(path), "truncated.tflite")
	if err := os.WriteFile(truncated, data[:len(data)/3], 0o644); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(filepath.Dir(path), "garbage.tflite")
	if err := os.WriteFile(garbage, bytes.Repeat([]byte{0xff}, 256), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		path  string
		cause error
	}{
		{"missing", filepath.Join(filepath.Dir(path), "missing.tflite"), fs.ErrNotExist},
		{"truncated", truncated, tflite.ErrMalformed},
		{"garbage", garbage, tflite.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(failed)
			report, err := Run(tt.path)
			if report != nil {
				t.Errorf("expected no report, got %+v", report)
			}
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *Error, got %T %v", err, err)
			}
			if se.Path != tt.path {
				t.Errorf("error path %q, want %q", se.Path, tt.path)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("expected cause %v, got %v", tt.cause, err)
			}
			if !strings.HasPrefix(err.Error(), "inference smoke-test failed: ") {
				t.Errorf("unexpected message %q", err.Error())
			}
			if got := testutil.ToFloat64(failed) - before; got != 1 {
				t.Errorf("expected one failed smoke test recorded, got %v", got)
			}
		})
	}
}
