package ml

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var punctuationRegex = regexp.MustCompile(`[.!?,:;()\[\]{}'"/\\-]`)

// LocalEmbedder produces deterministic hashed bag-of-token embeddings without
// any network call. Names sharing words or character trigrams end up close in
// cosine space, which is enough for development and tests.
type LocalEmbedder struct {
	dimensions int
}

func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &LocalEmbedder{dimensions: dimensions}
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	return e.generate(text), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *LocalEmbedder) generate(text string) []float32 {
	vec := make([]float64, e.dimensions)

	for _, token := range tokenize(text) {
		e.accumulate(vec, "w:"+token, 1.0)
		for _, gram := range trigrams(token) {
			e.accumulate(vec, "g:"+gram, 0.5)
		}
	}

	norm := floats.Norm(vec, 2)
	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out
	}
	floats.Scale(1/norm, vec)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// accumulate adds a signed weight at the feature's hashed slot.
func (e *LocalEmbedder) accumulate(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dimensions))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = punctuationRegex.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

func trigrams(word string) []string {
	padded := []rune("^" + word + "$")
	if len(padded) < 3 {
		return []string{string(padded)}
	}
	grams := make([]string, 0, len(padded)-2)
	for i := 0; i+3 <= len(padded); i++ {
		grams = append(grams, string(padded[i:i+3]))
	}
	return grams
}
