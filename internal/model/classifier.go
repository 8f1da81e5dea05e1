package model

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// ClassifierOptions sizes the SMS classifier.
type ClassifierOptions struct {
	VocabSize     int
	EmbeddingDim  int
	MaxLength     int
	Hidden1       int
	Hidden2       int
	NumCategories int
	DropoutRate   float64
}

// Layer names used by NewSMSClassifier.
const (
	LayerEmbedding = "embedding"
	LayerPooling   = "pooling"
	LayerDense1    = "dense1"
	LayerDropout1  = "dropout1"
	LayerDense2    = "dense2"
	LayerDropout2  = "dropout2"
	LayerOutput    = "output"
)

// NewSMSClassifier assembles and builds the placeholder classifier:
// embedding, average pooling, two relu dense blocks with dropout, and a
// softmax head. Weights are random and untrained.
func NewSMSClassifier(opts ClassifierOptions, rng *rand.Rand) (*Sequential, error) {
	m := NewSequential("sequential",
		NewEmbedding(LayerEmbedding, opts.VocabSize, opts.EmbeddingDim),
		NewGlobalAveragePooling1D(LayerPooling),
		NewDense(LayerDense1, opts.Hidden1, ActivationReLU),
		NewDropout(LayerDropout1, opts.DropoutRate),
		NewDense(LayerDense2, opts.Hidden2, ActivationReLU),
		NewDropout(LayerDropout2, opts.DropoutRate),
		NewDense(LayerOutput, opts.NumCategories, ActivationSoftmax),
	)
	if err := m.Build(opts.MaxLength, rng); err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	return m, nil
}

// NewRand returns a PCG source. A zero seed draws one from the clock and
// the runtime's global source, so every run gets different weights.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// EmbeddingRows reports the vocabulary capacity of the model's first
// embedding layer, or 0 if it has none.
func (s *Sequential) EmbeddingRows() int {
	for _, l := range s.Layers {
		if e, ok := l.(*Embedding); ok {
			return e.VocabSize
		}
	}
	return 0
}
