package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

type fakeModels struct {
	calls     [][]string
	failures  []error
	dimension int
}

func (f *fakeModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	texts := make([]string, len(contents))
	for i, c := range contents {
		texts[i] = c.Parts[0].Text
	}
	f.calls = append(f.calls, texts)

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}

	result := &genai.EmbedContentResponse{}
	for i := range contents {
		values := make([]float32, f.dimension)
		values[0] = float32(i)
		result.Embeddings = append(result.Embeddings, &genai.ContentEmbedding{Values: values})
	}
	return result, nil
}

func testConfig() *common.EmbeddingsConfig {
	return &common.EmbeddingsConfig{
		Provider:  common.EmbeddingProviderGemini,
		Model:     "gemini-embedding-001",
		Dimension: 4,
		BatchSize: 2,
		RateLimit: "1ms",
	}
}

func newTestGemini(models contentEmbedder) *GeminiService {
	service := newGeminiService(models, testConfig(), arbor.NewLogger())
	service.retry = &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	return service
}

func TestGeminiEmbedBatchesInOrder(t *testing.T) {
	models := &fakeModels{dimension: 4}
	service := newTestGemini(models)

	vectors, err := service.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, models.calls)
	for _, v := range vectors {
		assert.Len(t, v, 4)
	}
}

func TestGeminiEmbedRetriesRateLimit(t *testing.T) {
	models := &fakeModels{
		dimension: 4,
		failures:  []error{errors.New("Error 429, Status: RESOURCE_EXHAUSTED")},
	}
	service := newTestGemini(models)

	vectors, err := service.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Len(t, models.calls, 2)
}

func TestGeminiEmbedWrapsFailure(t *testing.T) {
	models := &fakeModels{
		dimension: 4,
		failures:  []error{errors.New("permission denied")},
	}
	service := newTestGemini(models)

	_, err := service.Embed(context.Background(), []string{"a"})
	require.Error(t, err)

	var embedErr *interfaces.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, "gemini-embedding-001", embedErr.Model)
	assert.Len(t, models.calls, 1)
}

func TestGeminiEmbedDimensionMismatch(t *testing.T) {
	models := &fakeModels{dimension: 3}
	service := newTestGemini(models)

	_, err := service.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestNewGeminiServiceRequiresKey(t *testing.T) {
	_, err := NewGeminiService(testConfig(), arbor.NewLogger())
	assert.Error(t, err)
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota. Please retry in 12.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 12500*time.Millisecond, ExtractRetryDelay(err))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("boom")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestBackoffIsCapped(t *testing.T) {
	config := NewDefaultRetryConfig()
	assert.Equal(t, 2*time.Second, config.Backoff(0, 0))
	assert.Equal(t, 4*time.Second, config.Backoff(1, 0))
	assert.Equal(t, 10*time.Second, config.Backoff(0, 10*time.Second))
	assert.Equal(t, config.MaxBackoff, config.Backoff(10, 0))
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashServiceSimilarity(t *testing.T) {
	service := NewHashService(512)

	vectors, err := service.Embed(context.Background(), []string{
		"retrieval augmented generation with vector search",
		"vector search for retrieval augmented generation",
		"baking sourdough bread at home",
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cosine(vectors[0], vectors[0]), 1e-6)
	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
	assert.Equal(t, "hash-512", service.ModelName())
	assert.Equal(t, 512, service.Dimension())
}

func TestHashServiceDeterministic(t *testing.T) {
	a, err := NewHashService(64).Embed(context.Background(), []string{"Model Context Protocol"})
	require.NoError(t, err)
	b, err := NewHashService(64).Embed(context.Background(), []string{"model context protocol"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewServiceSelectsProvider(t *testing.T) {
	config := testConfig()
	config.Provider = common.EmbeddingProviderHash

	service, err := NewService(config, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "hash-4", service.ModelName())

	config.Provider = "unknown"
	_, err = NewService(config, arbor.NewLogger())
	assert.Error(t, err)
}
