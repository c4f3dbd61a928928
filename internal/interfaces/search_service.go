package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// ContentQuery configures a content search
type ContentQuery struct {
	// Query text to embed and rank against
	Query string

	// CourseTitle restricts results to one resolved course title (optional)
	CourseTitle string

	// LessonNumber restricts results to one lesson (optional, 0 is valid)
	LessonNumber *int

	// Limit maximum number of results, 0 uses the configured default
	Limit int
}

// VectorStore holds the course catalog and chunk content collections
type VectorStore interface {
	// ResolveCourse maps a possibly partial course name to an ingested title.
	// Returns ErrCourseNotFound when there is no acceptable match.
	ResolveCourse(ctx context.Context, name string) (string, error)

	// SearchContent ranks chunks by similarity; filters apply before ranking
	SearchContent(ctx context.Context, query ContentQuery) ([]models.SearchHit, error)

	// AddCourse replaces the catalog record and all chunks of the course
	AddCourse(ctx context.Context, course *models.Course, chunks []models.Chunk) error

	// Catalog operations
	GetCourse(ctx context.Context, title string) (*models.Course, error)
	HasCourse(ctx context.Context, title, contentHash string) bool
	CourseTitles(ctx context.Context) []string
	DeleteCourse(ctx context.Context, title string) error
	Stats(ctx context.Context) models.CourseStats

	// Load restores persisted records
	Load(ctx context.Context) error
}
