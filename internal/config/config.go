package config

import (
	"fmt"
	"strings"
)

// SampleLength is the number of non-padding ids in the smoke test input row.
const SampleLength = 5

type Config struct {
	ModelPath string
	VocabPath string

	VocabSize     int
	EmbeddingDim  int
	MaxLength     int
	NumCategories int
	Hidden1       int
	Hidden2       int
	DropoutRate   float64

	Float16Weights bool
	// Seed of 0 draws a fresh seed for every run.
	Seed uint64

	LogLevel        string
	LogFormat       string
	MetricsTextfile string
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("invalid model_path: must not be empty")
	}
	if strings.TrimSpace(c.VocabPath) == "" {
		return fmt.Errorf("invalid vocab_path: must not be empty")
	}
	if c.ModelPath == c.VocabPath {
		return fmt.Errorf("model_path and vocab_path must differ: %s", c.ModelPath)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("invalid vocab_size: %d (must be positive)", c.VocabSize)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("invalid embedding_dim: %d (must be positive)", c.EmbeddingDim)
	}
	if c.MaxLength < SampleLength {
		return fmt.Errorf("invalid max_length: %d (must be >= %d)", c.MaxLength, SampleLength)
	}
	if c.VocabSize <= SampleLength {
		return fmt.Errorf("invalid vocab_size: %d (must be > %d)", c.VocabSize, SampleLength)
	}
	if c.NumCategories <= 0 {
		return fmt.Errorf("invalid num_categories: %d (must be positive)", c.NumCategories)
	}
	if c.Hidden1 <= 0 {
		return fmt.Errorf("invalid hidden1: %d (must be positive)", c.Hidden1)
	}
	if c.Hidden2 <= 0 {
		return fmt.Errorf("invalid hidden2: %d (must be positive)", c.Hidden2)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("invalid dropout_rate: %f (must be in [0, 1))", c.DropoutRate)
	}
	return nil
}

// InputShape is the fixed [batch, tokens] shape of the exported model input.
func (c *Config) InputShape() []int32 {
	return []int32{1, int32(c.MaxLength)}
}

// OutputShape is the fixed [batch, categories] shape of the exported model output.
func (c *Config) OutputShape() []int32 {
	return []int32{1, int32(c.NumCategories)}
}

func Default() Config {
	return Config{
		ModelPath: "sms_classifier.tflite",
		VocabPath: "vocab.txt",

		VocabSize:     5000,
		EmbeddingDim:  32,
		MaxLength:     128,
		NumCategories: 8,
		Hidden1:       64,
		Hidden2:       32,
		DropoutRate:   0.3,

		Float16Weights: true,

		LogLevel:  "info",
		LogFormat: "console",
	}
}
