package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

type contentEntry struct {
	chunk  models.Chunk
	vector []float32
}

type courseEntry struct {
	course  models.Course // Lesson bodies stripped
	vector  []float32
	content []contentEntry
}

// Store is an in-memory catalog and content collection searched by brute-force
// cosine similarity, persisted through CourseStorage.
type Store struct {
	mu      sync.RWMutex
	courses map[string]*courseEntry

	storage  interfaces.CourseStorage // nil keeps records in memory only
	embedder interfaces.EmbeddingService
	logger   arbor.ILogger

	maxResults          int
	minCourseSimilarity float64
}

// NewStore creates a vector store. storage may be nil.
func NewStore(embedder interfaces.EmbeddingService, storage interfaces.CourseStorage, config *common.SearchConfig, logger arbor.ILogger) *Store {
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Store{
		courses:             make(map[string]*courseEntry),
		storage:             storage,
		embedder:            embedder,
		logger:              logger,
		maxResults:          maxResults,
		minCourseSimilarity: config.MinCourseSimilarity,
	}
}

func (s *Store) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	if err != nil {
		var embedErr *interfaces.EmbeddingError
		if errors.As(err, &embedErr) {
			return nil, err
		}
		return nil, &interfaces.EmbeddingError{Model: s.embedder.ModelName(), Err: err}
	}
	return vectors, nil
}

// ResolveCourse maps a partial course name to an ingested title: exact
// case-insensitive match, then a unique substring match, then the nearest
// catalog title when its similarity reaches the configured minimum.
func (s *Store) ResolveCourse(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", interfaces.ErrCourseNotFound
	}
	lowered := strings.ToLower(name)

	s.mu.RLock()
	var substring []string
	for title := range s.courses {
		t := strings.ToLower(title)
		if t == lowered {
			s.mu.RUnlock()
			return title, nil
		}
		if strings.Contains(t, lowered) {
			substring = append(substring, title)
		}
	}
	empty := len(s.courses) == 0
	s.mu.RUnlock()

	if len(substring) == 1 {
		return substring[0], nil
	}
	if empty {
		return "", interfaces.ErrCourseNotFound
	}

	vectors, err := s.embed(ctx, []string{name})
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best, bestScore := "", -2.0
	for title, entry := range s.courses {
		score := cosine(vectors[0], entry.vector)
		if score > bestScore || (score == bestScore && title < best) {
			best, bestScore = title, score
		}
	}

	if best == "" || bestScore < s.minCourseSimilarity {
		s.logger.Debug().
			Str("name", name).
			Str("nearest", best).
			Str("score", fmt.Sprintf("%.3f", bestScore)).
			Msg("Course name not resolved")
		return "", interfaces.ErrCourseNotFound
	}

	return best, nil
}

// SearchContent ranks the chunks matching the query filters
func (s *Store) SearchContent(ctx context.Context, query interfaces.ContentQuery) ([]models.SearchHit, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	vectors, err := s.embed(ctx, []string{query.Query})
	if err != nil {
		return nil, err
	}
	qv := vectors[0]

	s.mu.RLock()
	var hits []models.SearchHit
	for title, entry := range s.courses {
		if query.CourseTitle != "" && title != query.CourseTitle {
			continue
		}
		for _, c := range entry.content {
			if query.LessonNumber != nil && c.chunk.LessonNumber != *query.LessonNumber {
				continue
			}
			hits = append(hits, models.SearchHit{Chunk: c.chunk, Score: cosine(qv, c.vector)})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Key() < hits[j].Chunk.Key()
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// AddCourse replaces the catalog record and every content record of the course.
// Embeddings are computed before anything changes, so a failure leaves the
// previous generation in place.
func (s *Store) AddCourse(ctx context.Context, course *models.Course, chunks []models.Chunk) error {
	if course == nil || course.Title == "" {
		return fmt.Errorf("course title is required")
	}

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, course.Title)
	for _, chunk := range chunks {
		if chunk.CourseTitle != course.Title {
			return fmt.Errorf("chunk %s does not belong to course %q", chunk.Key(), course.Title)
		}
		texts = append(texts, chunk.Text)
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}

	catalogCourse := *course
	catalogCourse.Lessons = make([]models.Lesson, len(course.Lessons))
	for i, lesson := range course.Lessons {
		lesson.Content = ""
		catalogCourse.Lessons[i] = lesson
	}

	entry := &courseEntry{
		course:  catalogCourse,
		vector:  vectors[0],
		content: make([]contentEntry, len(chunks)),
	}
	records := make([]*models.ContentRecord, len(chunks))
	for i, chunk := range chunks {
		entry.content[i] = contentEntry{chunk: chunk, vector: vectors[i+1]}
		records[i] = &models.ContentRecord{
			ID:          chunk.Key(),
			CourseTitle: course.Title,
			Chunk:       chunk,
			Vector:      vectors[i+1],
		}
	}

	if s.storage != nil {
		catalog := &models.CatalogRecord{
			Title:          course.Title,
			Course:         catalogCourse,
			LessonCount:    len(course.Lessons),
			ChunkCount:     len(chunks),
			EmbeddingModel: s.embedder.ModelName(),
			Vector:         vectors[0],
			IngestedAt:     time.Now(),
		}
		if err := s.storage.ReplaceCourse(ctx, catalog, records); err != nil {
			return fmt.Errorf("failed to persist course %q: %w", course.Title, err)
		}
	}

	s.mu.Lock()
	s.courses[course.Title] = entry
	s.mu.Unlock()

	s.logger.Debug().
		Str("course", course.Title).
		Int("lessons", len(course.Lessons)).
		Int("chunks", len(chunks)).
		Msg("Course indexed")

	return nil
}

// GetCourse returns the catalog metadata of a course, without lesson bodies
func (s *Store) GetCourse(ctx context.Context, title string) (*models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.courses[title]
	if !ok {
		return nil, interfaces.ErrCourseNotFound
	}
	course := entry.course
	course.Lessons = append([]models.Lesson(nil), entry.course.Lessons...)
	return &course, nil
}

// HasCourse reports whether the course is indexed from a document with the given hash
func (s *Store) HasCourse(ctx context.Context, title, contentHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.courses[title]
	return ok && contentHash != "" && entry.course.ContentHash == contentHash
}

// CourseTitles returns the indexed titles in sorted order
func (s *Store) CourseTitles(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]string, 0, len(s.courses))
	for title := range s.courses {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// DeleteCourse removes a course and its content
func (s *Store) DeleteCourse(ctx context.Context, title string) error {
	if s.storage != nil {
		if err := s.storage.DeleteCourse(ctx, title); err != nil {
			return fmt.Errorf("failed to delete course %q: %w", title, err)
		}
	}

	s.mu.Lock()
	delete(s.courses, title)
	s.mu.Unlock()
	return nil
}

// Stats summarises the catalog
func (s *Store) Stats(ctx context.Context) models.CourseStats {
	titles := s.CourseTitles(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := 0
	for _, entry := range s.courses {
		chunks += len(entry.content)
	}
	return models.CourseStats{
		TotalCourses: len(titles),
		CourseTitles: titles,
		TotalChunks:  chunks,
	}
}

// Load restores persisted records. Courses embedded by a different model are
// skipped so they get re-ingested.
func (s *Store) Load(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}

	catalog, err := s.storage.ListCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	model := s.embedder.ModelName()
	loaded := make(map[string]*courseEntry, len(catalog))
	skipped := 0

	for _, record := range catalog {
		if record.EmbeddingModel != model {
			s.logger.Warn().
				Str("course", record.Title).
				Str("stored_model", record.EmbeddingModel).
				Str("model", model).
				Msg("Skipping course embedded with a different model")
			skipped++
			continue
		}

		content, err := s.storage.ListContent(ctx, record.Title)
		if err != nil {
			return fmt.Errorf("failed to load content of %q: %w", record.Title, err)
		}

		entry := &courseEntry{
			course:  record.Course,
			vector:  record.Vector,
			content: make([]contentEntry, len(content)),
		}
		for i, c := range content {
			entry.content[i] = contentEntry{chunk: c.Chunk, vector: c.Vector}
		}
		loaded[record.Title] = entry
	}

	s.mu.Lock()
	s.courses = loaded
	s.mu.Unlock()

	s.logger.Info().
		Int("courses", len(loaded)).
		Int("skipped", skipped).
		Msg("Vector store loaded")

	return nil
}
