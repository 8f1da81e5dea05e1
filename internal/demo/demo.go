// Package demo runs the full placeholder-model generation: build and
// export the classifier, write its vocabulary, then smoke-test the result.
package demo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/23skdu/smsmodel/internal/config"
	"github.com/23skdu/smsmodel/internal/export"
	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/metrics"
	"github.com/23skdu/smsmodel/internal/model"
	"github.com/23skdu/smsmodel/internal/smoke"
	"github.com/23skdu/smsmodel/internal/vocab"
)

var ErrVocabMismatch = errors.New("vocabulary size does not match embedding rows")

// runSmoke is swapped out by tests.
var runSmoke = smoke.Run

var rule = strings.Repeat("=", 60)

// Run executes every step in order and writes progress text to stdout.
// Only model or vocabulary generation failures are returned; a failed
// smoke test is reported on stdout and does not fail the run.
func Run(cfg config.Config, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.Log.With("component", "demo")

	fmt.Fprintln(stdout, rule)
	fmt.Fprintln(stdout, "SMS Classifier Demo Model Creator")
	fmt.Fprintln(stdout, rule)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "⚠ WARNING: This creates a demo model with random weights!")
	fmt.Fprintln(stdout, "For production use, train a proper model on labeled SMS data.")
	fmt.Fprintln(stdout)

	m, err := createModel(cfg, stdout)
	if err != nil {
		return err
	}
	tokens, err := createVocabulary(cfg, stdout)
	if err != nil {
		return err
	}
	if len(tokens) != cfg.VocabSize || m.EmbeddingRows() != cfg.VocabSize {
		return fmt.Errorf("%w: %d tokens, %d embedding rows, configured %d",
			ErrVocabMismatch, len(tokens), m.EmbeddingRows(), cfg.VocabSize)
	}

	fmt.Fprintln(stdout, "\nTesting model...")
	report, err := runSmoke(cfg.ModelPath)
	if err != nil {
		log.Warn("model smoke test failed", "path", cfg.ModelPath, "error", err.Error())
		fmt.Fprintf(stdout, "⚠ Error testing model: %v\n", err)
	} else {
		report.Print(stdout)
		if !sameShape(report.InputShape, cfg.InputShape()) || !sameShape(report.OutputShape, cfg.OutputShape()) {
			log.Warn("exported shapes differ from config",
				"input", report.InputShape, "output", report.OutputShape,
				"want_input", cfg.InputShape(), "want_output", cfg.OutputShape())
		}
	}

	printInstructions(cfg, stdout)
	return nil
}

func sameShape(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func createModel(cfg config.Config, stdout io.Writer) (*model.Sequential, error) {
	fmt.Fprintln(stdout, "Creating demo SMS classification model...")
	fmt.Fprintln(stdout, "Note: Using simple architecture with standard TFLite ops for maximum compatibility")

	m, err := model.NewSMSClassifier(model.ClassifierOptions{
		VocabSize:     cfg.VocabSize,
		EmbeddingDim:  cfg.EmbeddingDim,
		MaxLength:     cfg.MaxLength,
		Hidden1:       cfg.Hidden1,
		Hidden2:       cfg.Hidden2,
		NumCategories: cfg.NumCategories,
		DropoutRate:   cfg.DropoutRate,
	}, model.NewRand(cfg.Seed))
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(stdout, "\nModel Architecture:")
	fmt.Fprint(stdout, m.Summary())

	fmt.Fprintln(stdout, "\nConverting to TensorFlow Lite...")
	fmt.Fprintln(stdout, "Using standard TFLite ops only (no Flex ops needed)...")

	opts := export.DefaultOptions()
	if !cfg.Float16Weights {
		opts.SupportedTypes = nil
	}
	opts.Description = "Untrained SMS classifier placeholder"

	start := time.Now()
	data, manifest, err := export.NewConverter(opts).ConvertWithManifest(m, export.DefaultSignature(cfg.MaxLength))
	if err != nil {
		return nil, fmt.Errorf("convert model: %w", err)
	}
	elapsed := time.Since(start)
	if err := export.WriteFile(cfg.ModelPath, data); err != nil {
		return nil, err
	}
	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	metrics.RecordModel(info.Size(), m.ParamCount(), elapsed)
	logger.Log.Info("model exported",
		"path", cfg.ModelPath,
		"bytes", info.Size(),
		"params", m.ParamCount(),
		"build_id", manifest.BuildID,
		"weight_type", manifest.WeightType,
	)

	fmt.Fprintf(stdout, "\n✓ Model saved to: %s\n", cfg.ModelPath)
	fmt.Fprintf(stdout, "  Size: %.2f MB\n", float64(info.Size())/(1024*1024))
	return m, nil
}

func createVocabulary(cfg config.Config, stdout io.Writer) ([]string, error) {
	fmt.Fprintln(stdout, "\nCreating vocabulary file...")
	tokens, err := vocab.Build(cfg.VocabSize)
	if err != nil {
		return nil, fmt.Errorf("build vocabulary: %w", err)
	}
	if err := vocab.Write(cfg.VocabPath, tokens); err != nil {
		return nil, err
	}
	fmt.Fprintf(stdout, "✓ Vocabulary saved to: %s\n", cfg.VocabPath)
	fmt.Fprintf(stdout, "  Size: %d tokens\n", len(tokens))
	return tokens, nil
}

func printInstructions(cfg config.Config, stdout io.Writer) {
	fmt.Fprintln(stdout, "\n"+rule)
	fmt.Fprintln(stdout, "Setup Instructions:")
	fmt.Fprintln(stdout, rule)
	fmt.Fprintf(stdout, "1. Copy %s to assets/ml_models/\n", cfg.ModelPath)
	fmt.Fprintf(stdout, "2. Copy %s to assets/ml_models/\n", cfg.VocabPath)
	fmt.Fprintln(stdout, "3. Run: flutter pub get")
	fmt.Fprintln(stdout, "4. Run: flutter run")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "The app will now use on-device AI classification!")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "For better accuracy, train a proper model using:")
	fmt.Fprintln(stdout, "  See AI_MODEL_SETUP.md for training instructions")
	fmt.Fprintln(stdout, rule)
}
