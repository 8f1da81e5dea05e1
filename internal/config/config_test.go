package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ModelPath != "sms_classifier.tflite" {
		t.Errorf("expected ModelPath sms_classifier.tflite, got %s", cfg.ModelPath)
	}
	if cfg.VocabPath != "vocab.txt" {
		t.Errorf("expected VocabPath vocab.txt, got %s", cfg.VocabPath)
	}
	if cfg.VocabSize != 5000 {
		t.Errorf("expected VocabSize 5000, got %d", cfg.VocabSize)
	}
	if cfg.EmbeddingDim != 32 {
		t.Errorf("expected EmbeddingDim 32, got %d", cfg.EmbeddingDim)
	}
	if cfg.MaxLength != 128 {
		t.Errorf("expected MaxLength 128, got %d", cfg.MaxLength)
	}
	if cfg.NumCategories != 8 {
		t.Errorf("expected NumCategories 8, got %d", cfg.NumCategories)
	}
	if cfg.DropoutRate != 0.3 {
		t.Errorf("expected DropoutRate 0.3, got %v", cfg.DropoutRate)
	}
	if !cfg.Float16Weights {
		t.Error("expected Float16Weights to be true")
	}
	if cfg.Seed != 0 {
		t.Errorf("expected unseeded default, got %d", cfg.Seed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestShapes(t *testing.T) {
	cfg := Default()
	in := cfg.InputShape()
	if len(in) != 2 || in[0] != 1 || in[1] != 128 {
		t.Errorf("expected input shape [1 128], got %v", in)
	}
	out := cfg.OutputShape()
	if len(out) != 2 || out[0] != 1 || out[1] != 8 {
		t.Errorf("expected output shape [1 8], got %v", out)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty model path", func(c *Config) { c.ModelPath = " " }, true},
		{"empty vocab path", func(c *Config) { c.VocabPath = "" }, true},
		{"same paths", func(c *Config) { c.VocabPath = c.ModelPath }, true},
		{"zero vocab", func(c *Config) { c.VocabSize = 0 }, true},
		{"vocab smaller than sample", func(c *Config) { c.VocabSize = SampleLength }, true},
		{"zero embedding", func(c *Config) { c.EmbeddingDim = 0 }, true},
		{"max length below sample", func(c *Config) { c.MaxLength = SampleLength - 1 }, true},
		{"max length equals sample", func(c *Config) { c.MaxLength = SampleLength }, false},
		{"zero categories", func(c *Config) { c.NumCategories = 0 }, true},
		{"negative hidden1", func(c *Config) { c.Hidden1 = -1 }, true},
		{"zero hidden2", func(c *Config) { c.Hidden2 = 0 }, true},
		{"negative dropout", func(c *Config) { c.DropoutRate = -0.1 }, true},
		{"dropout of one", func(c *Config) { c.DropoutRate = 1 }, true},
		{"no dropout", func(c *Config) { c.DropoutRate = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
