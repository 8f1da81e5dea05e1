package export

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Metadata entry names written into every exported model.
const (
	MetadataMinRuntimeVersion = "min_runtime_version"
	MetadataManifest          = "smsmodel_manifest"
)

// minRuntimeVersion is the oldest TFLite runtime that ships every builtin
// the converter emits.
const minRuntimeVersion = "1.14.0"

// Manifest describes an exported model for the app that loads it.
type Manifest struct {
	BuildID       string    `json:"build_id"`
	Name          string    `json:"name"`
	VocabSize     int       `json:"vocab_size"`
	EmbeddingDim  int       `json:"embedding_dim"`
	MaxLength     int       `json:"max_length"`
	NumCategories int       `json:"num_categories"`
	WeightType    string    `json:"weight_type"`
	Operators     []string  `json:"operators"`
	Trained       bool      `json:"trained"`
	CreatedAt     time.Time `json:"created_at"`
}

func newManifest(name string) *Manifest {
	return &Manifest{
		BuildID:   uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

func (m *Manifest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ParseManifest decodes the manifest metadata buffer of an exported model.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.BuildID == "" {
		return nil, fmt.Errorf("parse manifest: missing build_id")
	}
	return &m, nil
}

// paddedVersion pads the runtime version string to 16 bytes with NULs.
func paddedVersion(v string) []byte {
	out := make([]byte, 16)
	copy(out, v)
	return out
}
