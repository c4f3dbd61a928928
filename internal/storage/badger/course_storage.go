package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// ErrCatalogNotFound is returned when no catalog record exists for a title
var ErrCatalogNotFound = errors.New("catalog record not found")

// Content records live outside badgerhold under
// contentPrefix + title + NUL + generation + NUL + sequence.
// A course can hold thousands of chunks, more than one transaction fits, so
// they are written with a WriteBatch and the catalog record names the live
// generation.
const contentPrefix = "lectern_content:"

func contentCoursePrefix(title string) []byte {
	return []byte(contentPrefix + title + "\x00")
}

func contentGenerationPrefix(title, generation string) []byte {
	return append(contentCoursePrefix(title), generation+"\x00"...)
}

func contentKey(title, generation string, seq int) []byte {
	return append(contentGenerationPrefix(title, generation), fmt.Sprintf("%08d", seq)...)
}

// CourseStorage persists catalog and content vector records
type CourseStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// serialises writers so a sweep never removes a generation still being swapped in
	writeMu sync.Mutex
}

// NewCourseStorage creates a new CourseStorage instance
func NewCourseStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CourseStorage {
	return &CourseStorage{
		db:     db,
		logger: logger,
	}
}

// ReplaceCourse writes the content records as a new generation, points the
// catalog record at it, then sweeps every other generation of the course.
// Readers see either the old or the new generation, never a mix.
func (s *CourseStorage) ReplaceCourse(ctx context.Context, catalog *models.CatalogRecord, content []*models.ContentRecord) error {
	if catalog == nil || catalog.Title == "" {
		return fmt.Errorf("catalog title is required")
	}
	for _, record := range content {
		if record.CourseTitle != catalog.Title {
			return fmt.Errorf("content record %s belongs to %q, not %q", record.ID, record.CourseTitle, catalog.Title)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	generation := uuid.NewString()
	if err := s.writeContent(catalog.Title, generation, content); err != nil {
		s.discardGeneration(catalog.Title, generation)
		return err
	}

	catalog.Generation = generation
	if err := s.db.Store().Upsert(catalog.Title, catalog); err != nil {
		s.discardGeneration(catalog.Title, generation)
		return fmt.Errorf("failed to save catalog record: %w", err)
	}

	// Stale generations are unreachable once the catalog moved, so a failed
	// sweep only leaves garbage for the next replace to collect
	swept, err := s.deleteContent(contentCoursePrefix(catalog.Title), contentGenerationPrefix(catalog.Title, generation))
	if err != nil {
		s.logger.Warn().Err(err).Str("course", catalog.Title).Msg("Failed to sweep previous content records")
	}

	s.logger.Debug().
		Str("course", catalog.Title).
		Str("generation", generation).
		Int("content_records", len(content)).
		Int("swept", swept).
		Msg("Course records replaced")

	return nil
}

func (s *CourseStorage) writeContent(title, generation string, content []*models.ContentRecord) error {
	wb := s.db.Store().Badger().NewWriteBatch()
	defer wb.Cancel()

	for i, record := range content {
		value, err := badgerhold.DefaultEncode(record)
		if err != nil {
			return fmt.Errorf("failed to encode content record %s: %w", record.ID, err)
		}
		if err := wb.Set(contentKey(title, generation, i), value); err != nil {
			return fmt.Errorf("failed to save content record %s: %w", record.ID, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush content records: %w", err)
	}
	return nil
}

func (s *CourseStorage) discardGeneration(title, generation string) {
	if _, err := s.deleteContent(contentGenerationPrefix(title, generation), nil); err != nil {
		s.logger.Warn().Err(err).Str("course", title).Str("generation", generation).Msg("Failed to discard partial content records")
	}
}

// deleteContent removes every key under prefix except those under keep
func (s *CourseStorage) deleteContent(prefix, keep []byte) (int, error) {
	var stale [][]byte
	err := s.db.Store().Badger().View(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if keep != nil && bytes.HasPrefix(key, keep) {
				continue
			}
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan content records: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.Store().Badger().NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete content record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush content deletes: %w", err)
	}
	return len(stale), nil
}

func (s *CourseStorage) GetCatalog(ctx context.Context, title string) (*models.CatalogRecord, error) {
	var record models.CatalogRecord
	err := s.db.Store().Get(title, &record)
	if err == badgerhold.ErrNotFound {
		return nil, ErrCatalogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog record: %w", err)
	}
	return &record, nil
}

func (s *CourseStorage) ListCatalog(ctx context.Context) ([]*models.CatalogRecord, error) {
	var records []models.CatalogRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list catalog records: %w", err)
	}

	result := make([]*models.CatalogRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// ListContent returns the live generation of a course in write order
func (s *CourseStorage) ListContent(ctx context.Context, courseTitle string) ([]*models.ContentRecord, error) {
	result := []*models.ContentRecord{}

	err := s.db.Store().Badger().View(func(tx *badgerdb.Txn) error {
		var catalog models.CatalogRecord
		err := s.db.Store().TxGet(tx, courseTitle, &catalog)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get catalog record: %w", err)
		}

		prefix := contentGenerationPrefix(courseTitle, catalog.Generation)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			record := &models.ContentRecord{}
			err := it.Item().Value(func(value []byte) error {
				return badgerhold.DefaultDecode(value, record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode content record: %w", err)
			}
			result = append(result, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list content records: %w", err)
	}
	return result, nil
}

// DeleteCourse removes the catalog record and all content records of a course
func (s *CourseStorage) DeleteCourse(ctx context.Context, title string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Store().Delete(title, &models.CatalogRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete catalog record: %w", err)
	}

	if _, err := s.deleteContent(contentCoursePrefix(title), nil); err != nil {
		return fmt.Errorf("failed to delete content records: %w", err)
	}
	return nil
}

// CountContent counts the content records of every live generation
func (s *CourseStorage) CountContent(ctx context.Context) (int, error) {
	count := 0
	err := s.db.Store().Badger().View(func(tx *badgerdb.Txn) error {
		var catalog []models.CatalogRecord
		if err := s.db.Store().TxFind(tx, &catalog, nil); err != nil {
			return err
		}

		for _, record := range catalog {
			prefix := contentGenerationPrefix(record.Title, record.Generation)
			opts := badgerdb.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := tx.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				count++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count content records: %w", err)
	}
	return count, nil
}
