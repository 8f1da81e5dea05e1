package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug level", "debug", "console"},
		{"info level", "info", "console"},
		{"warn level", "warn", "console"},
		{"error level", "error", "console"},
		{"json format", "info", "json"},
		{"uppercase level", "DEBUG", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.level, tt.format)
			if Log == nil {
				t.Error("expected Log to be initialized")
			}
		})
	}
	Setup("info", "console")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level  string
		expect zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expect {
				t.Errorf("level %s: expected %v, got %v", tt.level, tt.expect, got)
			}
		})
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Info("model written", "path", "sms_classifier.tflite", "bytes", 42)

	out := buf.String()
	for _, want := range []string{`"message":"model written"`, `"path":"sms_classifier.tflite"`, `"bytes":42`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json").With("component", "export")

	l.Warn("slow conversion")

	if !strings.Contains(buf.String(), `"component":"export"`) {
		t.Errorf("expected component field, got %s", buf.String())
	}
}

func TestErrorAttachesErr(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Error("export failed", errors.New("disk full"), "path", "x.tflite")

	out := buf.String()
	if !strings.Contains(out, `"error":"disk full"`) {
		t.Errorf("expected error field, got %s", out)
	}
	if !strings.Contains(out, `"path":"x.tflite"`) {
		t.Errorf("expected path field, got %s", out)
	}
}

func TestAddFieldsOddAndNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Info("odd args", "key1", "value1", "orphan_key")
	l.Info("non-string key", 123, "value")

	out := buf.String()
	if strings.Contains(out, "orphan_key") {
		t.Errorf("orphan key should be dropped: %s", out)
	}
	if !strings.Contains(out, `"123":"value"`) {
		t.Errorf("expected stringified key, got %s", out)
	}
}
