package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/models"
)

// Processor parses course documents and chunks their lessons
type Processor struct {
	chunker *Chunker
	logger  arbor.ILogger
}

// NewProcessor creates a document processor from the documents config
func NewProcessor(config *common.DocumentsConfig, logger arbor.ILogger) (*Processor, error) {
	chunker, err := NewChunker(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &Processor{
		chunker: chunker,
		logger:  logger,
	}, nil
}

// Parse parses a document without chunking it
func (p *Processor) Parse(source, text string) (*models.Course, error) {
	return Parse(source, text)
}

// Chunk splits the lessons of a parsed course
func (p *Processor) Chunk(course *models.Course) []models.Chunk {
	return p.chunker.Chunk(course)
}

// Process parses a document and chunks its lessons
func (p *Processor) Process(source, text string) (*models.Course, []models.Chunk, error) {
	course, err := Parse(source, text)
	if err != nil {
		return nil, nil, err
	}

	chunks := p.chunker.Chunk(course)

	p.logger.Debug().
		Str("course", course.Title).
		Int("lessons", len(course.Lessons)).
		Int("chunks", len(chunks)).
		Msg("Document processed")

	return course, chunks, nil
}

// ProcessFile reads and processes one document file
func (p *Processor) ProcessFile(path string) (*models.Course, []models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return p.Process(path, string(data))
}

// ListDocuments returns the course document paths in dir, sorted by name
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	return paths, nil
}
