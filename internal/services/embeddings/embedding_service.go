package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// contentEmbedder is the part of *genai.Models used for embeddings
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiService implements EmbeddingService with the Gemini embedding API
type GeminiService struct {
	models    contentEmbedder
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     *RetryConfig
	logger    arbor.ILogger
}

// NewGeminiService creates a Gemini embedding service.
// Returns an error when no API key is configured.
func NewGeminiService(config *common.EmbeddingsConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for gemini embeddings (set GOOGLE_API_KEY, LECTERN_EMBEDDINGS_API_KEY, or embeddings.api_key in config)")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := newGeminiService(client.Models, config, logger)

	logger.Info().
		Str("model", service.model).
		Int("dimension", service.dimension).
		Int("batch_size", service.batchSize).
		Dur("timeout", service.timeout).
		Msg("Gemini embedding service initialized")

	return service, nil
}

func newGeminiService(models contentEmbedder, config *common.EmbeddingsConfig, logger arbor.ILogger) *GeminiService {
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	return &GeminiService{
		models:    models,
		model:     config.Model,
		dimension: config.Dimension,
		batchSize: batchSize,
		timeout:   common.ParseDuration(config.Timeout, 30*time.Second),
		limiter:   rate.NewLimiter(rate.Every(common.ParseDuration(config.RateLimit, 100*time.Millisecond)), 1),
		retry:     NewDefaultRetryConfig(),
		logger:    logger,
	}
}

// Embed generates one vector per text, batching requests
func (s *GeminiService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	vectors := make([][]float32, 0, len(texts))

	for offset := 0; offset < len(texts); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedBatchWithRetry(ctx, texts[offset:end])
		if err != nil {
			return nil, &interfaces.EmbeddingError{Model: s.model, Err: err}
		}
		vectors = append(vectors, batch...)
	}

	s.logger.Debug().
		Int("texts", len(texts)).
		Int("dimension", s.dimension).
		Dur("duration", time.Since(start)).
		Msg("Generated embeddings")

	return vectors, nil
}

func (s *GeminiService) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retry.Backoff(attempt-1, ExtractRetryDelay(lastErr))
			s.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Embedding rate limited, retrying")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vectors, err := s.embedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !IsRateLimitError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("rate limited after %d retries: %w", s.retry.MaxRetries, lastErr)
}

func (s *GeminiService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	outputDim := int32(s.dimension)
	result, err := s.models.EmbedContent(ctx, s.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, embedding := range result.Embeddings {
		if embedding == nil || len(embedding.Values) != s.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch at %d: expected %d", i, s.dimension)
		}
		vectors[i] = embedding.Values
	}

	return vectors, nil
}

// ModelName returns the model name
func (s *GeminiService) ModelName() string {
	return s.model
}

// Dimension returns the embedding dimension
func (s *GeminiService) Dimension() int {
	return s.dimension
}
