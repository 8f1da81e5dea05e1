package vocab

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/23skdu/smsmodel/internal/logger"
	"github.com/23skdu/smsmodel/internal/metrics"
)

var ErrCapacityExceeded = errors.New("fixed tokens exceed vocabulary capacity")

// FillerPrefix prefixes the synthetic tokens that pad the vocabulary to capacity.
const FillerPrefix = "token_"

// Build returns exactly capacity tokens: the fixed tokens, then
// token_<index> fillers where index is the line position.
func Build(capacity int) ([]string, error) {
	tokens := FixedTokens()
	if len(tokens) > capacity {
		return nil, fmt.Errorf("%w: %d fixed tokens, capacity %d", ErrCapacityExceeded, len(tokens), capacity)
	}
	for i := len(tokens); i < capacity; i++ {
		tokens = append(tokens, FillerPrefix+strconv.Itoa(i))
	}
	return tokens, nil
}

// Write stores one token per line, with no trailing newline, replacing path.
func Write(path string, tokens []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(tokens, "\n")), 0o644); err != nil {
		return fmt.Errorf("write vocabulary %s: %w", path, err)
	}
	fixed := len(FixedTokens())
	padding := len(tokens) - fixed
	if padding < 0 {
		padding = 0
	}
	metrics.RecordVocab(len(tokens), padding)
	logger.Log.Debug("vocabulary written", "path", path, "tokens", len(tokens), "padding", padding)
	return nil
}

// Load reads a vocabulary written by Write. A trailing newline is tolerated.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return nil, fmt.Errorf("vocabulary %s is empty", path)
	}
	return New(strings.Split(text, "\n"))
}

// Vocabulary maps tokens to the row ids of the model's embedding table.
type Vocabulary struct {
	Tokens []string
	Vocab  map[string]int
}

// New indexes tokens by line position. The first two tokens must be the
// reserved [PAD] and [UNK] tokens and no token may repeat.
func New(tokens []string) (*Vocabulary, error) {
	if len(tokens) < 2 || tokens[PadID] != PadToken || tokens[UnkID] != UnkToken {
		return nil, fmt.Errorf("vocabulary must start with %s and %s", PadToken, UnkToken)
	}
	ids := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		if prev, dup := ids[tok]; dup {
			return nil, fmt.Errorf("duplicate token %q at lines %d and %d", tok, prev+1, i+1)
		}
		ids[tok] = i
	}
	return &Vocabulary{Tokens: tokens, Vocab: ids}, nil
}

func (v *Vocabulary) Size() int { return len(v.Tokens) }

// ID returns the id of token, or UnkID when it is not in the vocabulary.
func (v *Vocabulary) ID(token string) int {
	if id, ok := v.Vocab[token]; ok {
		return id
	}
	return UnkID
}

// Token returns the token for id, or [UNK] when id is out of range.
func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.Tokens) {
		return UnkToken
	}
	return v.Tokens[id]
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Encode produces the model input row for text: one id per word, truncated
// or padded with PadID to maxLen. Ids are float32 because that is the
// dtype of the exported model's input.
func (v *Vocabulary) Encode(text string, maxLen int) []float32 {
	row := make([]float32, maxLen)
	for i, w := range Words(text) {
		if i == maxLen {
			break
		}
		row[i] = float32(v.ID(w))
	}
	return row
}

// Decode joins the tokens for ids, skipping padding.
func (v *Vocabulary) Decode(ids []float32) string {
	var words []string
	for _, f := range ids {
		id := int(f)
		if id == PadID {
			continue
		}
		words = append(words, v.Token(id))
	}
	return strings.Join(words, " ")
}
