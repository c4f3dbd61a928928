package embeddings

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
)

// NewService creates the embedding service selected by config
func NewService(config *common.EmbeddingsConfig, logger arbor.ILogger) (interfaces.EmbeddingService, error) {
	switch config.Provider {
	case common.EmbeddingProviderGemini, "":
		return NewGeminiService(config, logger)
	case common.EmbeddingProviderHash:
		service := NewHashService(config.Dimension)
		logger.Info().
			Str("model", service.ModelName()).
			Msg("Hash embedding service initialized (offline)")
		return service, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", config.Provider)
	}
}
