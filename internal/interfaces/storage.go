package interfaces

import (
	"context"

	"github.com/ternarybob/lectern/internal/models"
)

// CourseStorage - interface for vector record persistence
type CourseStorage interface {
	// ReplaceCourse swaps the catalog record and every content record of the
	// course. Readers see the previous or the new records, never a mix.
	ReplaceCourse(ctx context.Context, catalog *models.CatalogRecord, content []*models.ContentRecord) error

	GetCatalog(ctx context.Context, title string) (*models.CatalogRecord, error)
	ListCatalog(ctx context.Context) ([]*models.CatalogRecord, error)
	ListContent(ctx context.Context, courseTitle string) ([]*models.ContentRecord, error)
	DeleteCourse(ctx context.Context, title string) error
	CountContent(ctx context.Context) (int, error)
}

// StorageManager - interface for the storage layer
type StorageManager interface {
	CourseStorage() CourseStorage
	Close() error
}
