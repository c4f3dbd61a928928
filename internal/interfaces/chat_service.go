package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// SessionManager keeps bounded per-session conversation history in memory
type SessionManager interface {
	CreateSession() string
	GetHistory(sessionID string) []models.Exchange
	AddExchange(sessionID, query, answer string)
	FormatHistory(sessionID string) string
	DeleteSession(sessionID string) bool
	Count() int
}

// RAGService answers questions over the ingested course materials
type RAGService interface {
	// IngestDocuments loads every course document in dir
	IngestDocuments(ctx context.Context, dir string) (*models.IngestSummary, error)

	// AnswerQuery answers one question. An empty sessionID starts a new session.
	AnswerQuery(ctx context.Context, sessionID, query string) (*models.Answer, error)

	CourseAnalytics(ctx context.Context) models.CourseStats
	ClearSession(sessionID string) bool
}
