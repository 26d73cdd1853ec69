package inmem

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	agenterrors "github.com/blueberrycongee/murmur/pkg/errors"
)

// HashEmbedder creates deterministic bag-of-words embeddings. Every word is hashed into one
// of Dimensions buckets, so texts sharing most of their words end up close in cosine distance.
// It is used for tests and dry runs where no embedding API is available.
type HashEmbedder struct {
	Dimensions int
}

// NewHashEmbedder creates an embedder producing vectors of length dims.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{Dimensions: dims}
}

// Embed returns the unit-length bag-of-words vector for text. Text without words maps to
// the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Dimensions <= 0 {
		return nil, agenterrors.NewDataError("embed", "embedder has no dimensions")
	}
	if err := ctx.Err(); err != nil {
		return nil, agenterrors.NewProviderError("embed", "context done", 0, err)
	}

	vec := make([]float32, e.Dimensions)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		hash := sha256.Sum256([]byte(word))
		bucket := binary.BigEndian.Uint32(hash[:4]) % uint32(e.Dimensions)
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
