package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Documents  DocumentsConfig  `toml:"documents"`
	Search     SearchConfig     `toml:"search"`
	Sessions   SessionsConfig   `toml:"sessions"`
	LLM        LLMConfig        `toml:"llm"`
	Claude     ClaudeConfig     `toml:"claude"`
	Embeddings EmbeddingsConfig `toml:"embeddings"`
	Storage    StorageConfig    `toml:"storage"`
	Ingest     IngestConfig     `toml:"ingest"`
	Logging    LoggingConfig    `toml:"logging"`
}

// DocumentsConfig controls where course documents live and how they are chunked
type DocumentsConfig struct {
	Dir          string `toml:"dir" validate:"required"`        // Directory of *.txt course documents (default: "./docs")
	ChunkSize    int    `toml:"chunk_size" validate:"gt=0"`     // Maximum chunk length in characters (default: 800)
	ChunkOverlap int    `toml:"chunk_overlap" validate:"gte=0"` // Characters shared by consecutive chunks (default: 100)
}

// SearchConfig contains configuration for retrieval
type SearchConfig struct {
	MaxResults          int     `toml:"max_results" validate:"gt=0"`                   // Default result limit (default: 5)
	MinCourseSimilarity float64 `toml:"min_course_similarity" validate:"gte=-1,lte=1"` // Minimum cosine for semantic course resolution (default: 0.5)
}

// SessionsConfig bounds conversation memory
type SessionsConfig struct {
	MaxHistory int `toml:"max_history" validate:"gt=0"` // Exchanges kept per session (default: 2)
}

// LLMConfig configures the tool-use loop
type LLMConfig struct {
	MaxToolRounds int    `toml:"max_tool_rounds" validate:"gte=0"` // Tool rounds before a text answer is forced (default: 2)
	RetryBackoff  string `toml:"retry_backoff"`                    // Delay before the single retry of a retryable provider error (default: "1s")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`                      // Anthropic API key
	Model       string  `toml:"model" validate:"required"`    // Model identifier (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens" validate:"gt=0"`   // Maximum tokens in response (default: 800)
	Temperature float32 `toml:"temperature" validate:"gte=0"` // Completion temperature (default: 0)
	Timeout     string  `toml:"timeout"`                      // Request timeout as duration string (default: "60s")
	RateLimit   string  `toml:"rate_limit"`                   // Minimum interval between requests (default: "200ms")
}

// EmbeddingProvider selects the embedding backend
type EmbeddingProvider string

const (
	// EmbeddingProviderGemini uses the Google Gemini embedding API
	EmbeddingProviderGemini EmbeddingProvider = "gemini"
	// EmbeddingProviderHash uses local feature hashing, no network
	EmbeddingProviderHash EmbeddingProvider = "hash"
)

// EmbeddingsConfig contains embedding provider configuration
type EmbeddingsConfig struct {
	Provider  EmbeddingProvider `toml:"provider" validate:"oneof=gemini hash"`
	Model     string            `toml:"model" validate:"required"`  // Embedding model (default: "gemini-embedding-001")
	APIKey    string            `toml:"api_key"`                    // Google API key (gemini provider)
	Dimension int               `toml:"dimension" validate:"gt=0"`  // Output dimensionality (default: 768)
	Timeout   string            `toml:"timeout"`                    // Request timeout (default: "30s")
	RateLimit string            `toml:"rate_limit"`                 // Minimum interval between requests (default: "100ms")
	BatchSize int               `toml:"batch_size" validate:"gt=0"` // Texts per embedding request (default: 50)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean runs
}

// IngestConfig controls background re-ingestion
type IngestConfig struct {
	RescanSchedule string `toml:"rescan_schedule"` // Cron schedule, empty disables rescans
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Documents: DocumentsConfig{
			Dir:          "./docs",
			ChunkSize:    800,
			ChunkOverlap: 100,
		},
		Search: SearchConfig{
			MaxResults:          5,
			MinCourseSimilarity: 0.5,
		},
		Sessions: SessionsConfig{
			MaxHistory: 2,
		},
		LLM: LLMConfig{
			MaxToolRounds: 2,
			RetryBackoff:  "1s",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   800,
			Temperature: 0,
			Timeout:     "60s",
			RateLimit:   "200ms",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  EmbeddingProviderGemini,
			Model:     "gemini-embedding-001",
			Dimension: 768,
			Timeout:   "30s",
			RateLimit: "100ms",
			BatchSize: 50,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/lectern",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied by the caller afterwards.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Documents
	if dir := os.Getenv("LECTERN_DOCS_DIR"); dir != "" {
		config.Documents.Dir = dir
	}
	if size := os.Getenv("LECTERN_CHUNK_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			config.Documents.ChunkSize = v
		}
	}
	if overlap := os.Getenv("LECTERN_CHUNK_OVERLAP"); overlap != "" {
		if v, err := strconv.Atoi(overlap); err == nil {
			config.Documents.ChunkOverlap = v
		}
	}

	// Search
	if maxResults := os.Getenv("LECTERN_SEARCH_MAX_RESULTS"); maxResults != "" {
		if v, err := strconv.Atoi(maxResults); err == nil {
			config.Search.MaxResults = v
		}
	}
	if minSim := os.Getenv("LECTERN_SEARCH_MIN_COURSE_SIMILARITY"); minSim != "" {
		if v, err := strconv.ParseFloat(minSim, 64); err == nil {
			config.Search.MinCourseSimilarity = v
		}
	}

	// Sessions
	if maxHistory := os.Getenv("LECTERN_SESSIONS_MAX_HISTORY"); maxHistory != "" {
		if v, err := strconv.Atoi(maxHistory); err == nil {
			config.Sessions.MaxHistory = v
		}
	}

	// LLM loop
	if rounds := os.Getenv("LECTERN_LLM_MAX_TOOL_ROUNDS"); rounds != "" {
		if v, err := strconv.Atoi(rounds); err == nil {
			config.LLM.MaxToolRounds = v
		}
	}
	if backoff := os.Getenv("LECTERN_LLM_RETRY_BACKOFF"); backoff != "" {
		config.LLM.RetryBackoff = backoff
	}

	// Claude (ANTHROPIC_API_KEY is the SDK standard, LECTERN_CLAUDE_API_KEY takes precedence)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("LECTERN_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("LECTERN_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("LECTERN_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if v, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = v
		}
	}
	if timeout := os.Getenv("LECTERN_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("LECTERN_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("LECTERN_CLAUDE_TEMPERATURE"); temperature != "" {
		if v, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(v)
		}
	}

	// Embeddings
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Embeddings.APIKey = apiKey
	}
	if apiKey := os.Getenv("LECTERN_EMBEDDINGS_API_KEY"); apiKey != "" {
		config.Embeddings.APIKey = apiKey
	}
	if provider := os.Getenv("LECTERN_EMBEDDINGS_PROVIDER"); provider != "" {
		config.Embeddings.Provider = EmbeddingProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("LECTERN_EMBEDDINGS_MODEL"); model != "" {
		config.Embeddings.Model = model
	}
	if dim := os.Getenv("LECTERN_EMBEDDINGS_DIMENSION"); dim != "" {
		if v, err := strconv.Atoi(dim); err == nil {
			config.Embeddings.Dimension = v
		}
	}

	// Storage
	if badgerPath := os.Getenv("LECTERN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Ingest
	if schedule := os.Getenv("LECTERN_RESCAN_SCHEDULE"); schedule != "" {
		config.Ingest.RescanSchedule = schedule
	}

	// Logging
	if level := os.Getenv("LECTERN_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("LECTERN_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config (highest priority)
func ApplyFlagOverrides(config *Config, docsDir string) {
	if docsDir != "" {
		config.Documents.Dir = docsDir
	}
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Documents.ChunkOverlap, c.Documents.ChunkSize)
	}

	durations := map[string]string{
		"llm.retry_backoff":     c.LLM.RetryBackoff,
		"claude.timeout":        c.Claude.Timeout,
		"claude.rate_limit":     c.Claude.RateLimit,
		"embeddings.timeout":    c.Embeddings.Timeout,
		"embeddings.rate_limit": c.Embeddings.RateLimit,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	if c.Ingest.RescanSchedule != "" {
		if err := ValidateSchedule(c.Ingest.RescanSchedule); err != nil {
			return fmt.Errorf("invalid configuration: ingest.rescan_schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule validates a standard five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
