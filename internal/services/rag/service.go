package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/services/documents"
	"github.com/ternarybob/lectern/internal/services/tools"
)

const queryPrefix = "Answer this question about course materials: "

// ErrEmptyQuery is returned for blank questions
var ErrEmptyQuery = errors.New("query is required")

// answerGenerator runs the tool-use conversation for one question
type answerGenerator interface {
	Generate(ctx context.Context, query, history string, tools interfaces.ToolExecutor) (string, error)
}

// Service ties document ingestion, retrieval tools, answer generation and
// session history together
type Service struct {
	processor *documents.Processor
	store     interfaces.VectorStore
	tools     *tools.Manager
	generator answerGenerator
	sessions  interfaces.SessionManager
	logger    arbor.ILogger

	ingestMu sync.Mutex
}

// NewService creates the RAG orchestrator
func NewService(
	processor *documents.Processor,
	store interfaces.VectorStore,
	toolManager *tools.Manager,
	generator answerGenerator,
	sessions interfaces.SessionManager,
	logger arbor.ILogger,
) *Service {
	return &Service{
		processor: processor,
		store:     store,
		tools:     toolManager,
		generator: generator,
		sessions:  sessions,
		logger:    logger,
	}
}

// IngestDocuments loads every course document in dir in name order.
// Unparseable documents are counted as failed and skipped; documents whose
// title and content hash are already stored are skipped as unchanged.
// Stored courses that no document produced are removed, unless a document
// failed to parse and so may still hold one of them.
func (s *Service) IngestDocuments(ctx context.Context, dir string) (*models.IngestSummary, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("documents directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path is not a directory: %s", dir)
	}

	paths, err := documents.ListDocuments(dir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summary := &models.IngestSummary{}
	seen := make(map[string]bool, len(paths))
	parseFailures := 0

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		course, chunks, err := s.processor.ProcessFile(path)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("path", path).
				Msg("Skipping unreadable course document")
			summary.Failed++
			parseFailures++
			continue
		}
		seen[course.Title] = true

		if s.store.HasCourse(ctx, course.Title, course.ContentHash) {
			s.logger.Debug().
				Str("course", course.Title).
				Msg("Course unchanged, skipping")
			summary.Unchanged++
			continue
		}

		if err := s.store.AddCourse(ctx, course, chunks); err != nil {
			s.logger.Error().
				Err(err).
				Str("path", path).
				Str("course", course.Title).
				Msg("Failed to store course")
			summary.Failed++
			continue
		}

		summary.Added++
		summary.Chunks += len(chunks)
	}

	if parseFailures == 0 {
		summary.Removed = s.removeMissing(ctx, seen)
	} else {
		s.logger.Warn().
			Int("unreadable", parseFailures).
			Msg("Keeping courses without a document while some documents are unreadable")
	}

	summary.Duration = time.Since(start)

	s.logger.Info().
		Str("dir", dir).
		Int("added", summary.Added).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Int("removed", summary.Removed).
		Int("chunks", summary.Chunks).
		Dur("duration", summary.Duration).
		Msg("Course documents ingested")

	return summary, nil
}

// removeMissing deletes stored courses not in seen and returns how many went
func (s *Service) removeMissing(ctx context.Context, seen map[string]bool) int {
	removed := 0
	for _, title := range s.store.CourseTitles(ctx) {
		if seen[title] {
			continue
		}
		if err := s.store.DeleteCourse(ctx, title); err != nil {
			s.logger.Error().
				Err(err).
				Str("course", title).
				Msg("Failed to remove course without a document")
			continue
		}
		s.logger.Info().
			Str("course", title).
			Msg("Removed course whose document is gone")
		removed++
	}
	return removed
}

// AnswerQuery answers a question within a session, creating one when
// sessionID is empty. The exchange is recorded only when an answer is produced.
func (s *Service) AnswerQuery(ctx context.Context, sessionID, query string) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if sessionID == "" {
		sessionID = s.sessions.CreateSession()
	}

	history := s.sessions.FormatHistory(sessionID)
	scoped := s.tools.Scoped()

	text, err := s.generator.Generate(ctx, queryPrefix+query, history, scoped)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("Query failed")
		return nil, err
	}

	sources := scoped.Sources()
	if sources == nil {
		sources = []models.SourceReference{}
	}

	s.sessions.AddExchange(sessionID, query, text)

	s.logger.Debug().
		Str("session_id", sessionID).
		Int("sources", len(sources)).
		Msg("Query answered")

	return &models.Answer{
		SessionID: sessionID,
		Text:      text,
		Sources:   sources,
	}, nil
}

// CourseAnalytics returns catalog statistics
func (s *Service) CourseAnalytics(ctx context.Context) models.CourseStats {
	return s.store.Stats(ctx)
}

// ClearSession deletes a session's history
func (s *Service) ClearSession(sessionID string) bool {
	return s.sessions.DeleteSession(sessionID)
}
