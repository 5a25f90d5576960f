package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider is a deterministic feature-hashing embedder. It needs no
// model files or network and gives identical vectors across restarts,
// which makes it suitable for development and tests. Texts sharing words
// land close together; it has no semantic knowledge beyond that.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hashing provider of the given dimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments hashes each text.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(t)
	}
	return out, nil
}

// EmbedQuery hashes the query.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

// Dimension returns the configured dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *HashProvider) Close() error {
	return nil
}

// vector builds a signed bag-of-words projection, L2-normalized.
func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
