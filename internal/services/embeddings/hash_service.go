package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashService is an offline embedding service based on signed feature hashing
// of lowercased word and word-bigram tokens. Vectors are L2 normalised.
type HashService struct {
	dimension int
}

// NewHashService creates a hashing embedder with the given dimension
func NewHashService(dimension int) *HashService {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashService{dimension: dimension}
}

func (s *HashService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = s.embed(text)
	}
	return vectors, nil
}

func (s *HashService) embed(text string) []float32 {
	vector := make([]float32, s.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	for i, word := range words {
		s.add(vector, word, 1)
		if i > 0 {
			s.add(vector, words[i-1]+" "+word, 0.5)
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}

func (s *HashService) add(vector []float32, token string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(token))
	sum := h.Sum64()

	index := int(sum % uint64(s.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[index] += weight
}

func (s *HashService) ModelName() string {
	return fmt.Sprintf("hash-%d", s.dimension)
}

func (s *HashService) Dimension() int {
	return s.dimension
}
