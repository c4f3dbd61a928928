package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/common"
	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
	"github.com/ternarybob/lectern/internal/storage/badger"
)

const (
	mcpTitle    = "MCP: Build Rich-Context AI Apps"
	chromaTitle = "Advanced Retrieval for AI with Chroma"
)

var vocabulary = []string{
	"mcp", "build", "context", "ai", "apps", "advanced", "retrieval", "chroma",
	"server", "client", "protocol", "vector", "database", "embeddings",
}

// keywordEmbedder counts vocabulary words, so similarity follows shared terms
type keywordEmbedder struct {
	model string
	fail  error
	calls int
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(vocabulary))
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, w := range words {
			for j, term := range vocabulary {
				if w == term {
					v[j]++
				}
			}
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *keywordEmbedder) ModelName() string {
	if e.model == "" {
		return "keyword"
	}
	return e.model
}

func (e *keywordEmbedder) Dimension() int { return len(vocabulary) }

func mcpCourse() (*models.Course, []models.Chunk) {
	course := &models.Course{
		Title:       mcpTitle,
		Link:        "https://example.com/mcp",
		ContentHash: "hash-1",
		Lessons: []models.Lesson{
			{Number: 0, Title: "Introduction", Content: "mcp intro"},
			{Number: 1, Title: "Servers", Content: "server protocol"},
			{Number: 2, Title: "Clients", Content: "client protocol"},
		},
	}
	chunks := []models.Chunk{
		{CourseTitle: mcpTitle, LessonNumber: 0, Index: 0, Text: "mcp apps context"},
		{CourseTitle: mcpTitle, LessonNumber: 1, Index: 0, Text: "an mcp server speaks the protocol"},
		{CourseTitle: mcpTitle, LessonNumber: 1, Index: 1, Text: "server tools and resources"},
		{CourseTitle: mcpTitle, LessonNumber: 2, Index: 0, Text: "the mcp client connects to a server"},
	}
	return course, chunks
}

func chromaCourse() (*models.Course, []models.Chunk) {
	course := &models.Course{
		Title:       chromaTitle,
		ContentHash: "hash-2",
		Lessons:     []models.Lesson{{Number: 1, Title: "Overview", Content: "vector database"}},
	}
	chunks := []models.Chunk{
		{CourseTitle: chromaTitle, LessonNumber: 1, Index: 0, Text: "chroma is a vector database for embeddings"},
		{CourseTitle: chromaTitle, LessonNumber: 1, Index: 1, Text: "retrieval with chroma server"},
	}
	return course, chunks
}

func newTestStore(t *testing.T, embedder interfaces.EmbeddingService, storage interfaces.CourseStorage) *Store {
	t.Helper()
	return NewStore(embedder, storage, &common.SearchConfig{MaxResults: 5, MinCourseSimilarity: 0.5}, arbor.NewLogger())
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := newTestStore(t, &keywordEmbedder{}, nil)
	ctx := context.Background()
	course, chunks := mcpCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))
	course, chunks = chromaCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))
	return store
}

func TestResolveCourse(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact", mcpTitle, mcpTitle},
		{"case insensitive", "mcp: build rich-context ai apps", mcpTitle},
		{"abbreviation substring", "MCP", mcpTitle},
		{"unique substring", "chroma", chromaTitle},
		{"semantic nearest", "chroma retrieval", chromaTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ResolveCourse(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCourseNotFound(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	for _, name := range []string{"Nonexistent Course", "", "   "} {
		_, err := store.ResolveCourse(ctx, name)
		assert.ErrorIs(t, err, interfaces.ErrCourseNotFound, name)
	}

	empty := newTestStore(t, &keywordEmbedder{}, nil)
	_, err := empty.ResolveCourse(ctx, "MCP")
	assert.ErrorIs(t, err, interfaces.ErrCourseNotFound)
}

func TestSearchContentFilters(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	hits, err := store.SearchContent(ctx, interfaces.ContentQuery{Query: "server", CourseTitle: chromaTitle})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, chromaTitle, hit.Chunk.CourseTitle)
	}

	lesson := 2
	hits, err = store.SearchContent(ctx, interfaces.ContentQuery{Query: "server", CourseTitle: mcpTitle, LessonNumber: &lesson})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Chunk.LessonNumber)

	preamble := 0
	hits, err = store.SearchContent(ctx, interfaces.ContentQuery{Query: "mcp", LessonNumber: &preamble})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Chunk.LessonNumber)
}

func TestSearchContentRanksAndLimits(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	hits, err := store.SearchContent(ctx, interfaces.ContentQuery{Query: "vector database embeddings"})
	require.NoError(t, err)
	require.Len(t, hits, 5) // default limit
	assert.Equal(t, chromaTitle, hits[0].Chunk.CourseTitle)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	hits, err = store.SearchContent(ctx, interfaces.ContentQuery{Query: "server", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchContentEmbeddingFailure(t *testing.T) {
	embedder := &keywordEmbedder{}
	store := newTestStore(t, embedder, nil)
	embedder.fail = errors.New("service down")

	_, err := store.SearchContent(context.Background(), interfaces.ContentQuery{Query: "server"})
	var embedErr *interfaces.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, "keyword", embedErr.Model)
}

func TestAddCourseIsIdempotent(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	before := store.Stats(ctx)

	course, chunks := mcpCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))

	after := store.Stats(ctx)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, after.TotalCourses)
	assert.Equal(t, 6, after.TotalChunks)
	assert.Equal(t, []string{chromaTitle, mcpTitle}, after.CourseTitles)
}

func TestAddCourseFailureKeepsPreviousGeneration(t *testing.T) {
	embedder := &keywordEmbedder{}
	store := newTestStore(t, embedder, nil)
	ctx := context.Background()

	course, chunks := mcpCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))

	embedder.fail = errors.New("quota exceeded")
	err := store.AddCourse(ctx, course, chunks[:1])
	var embedErr *interfaces.EmbeddingError
	require.ErrorAs(t, err, &embedErr)

	assert.Equal(t, 4, store.Stats(ctx).TotalChunks)
}

func TestAddCourseRejectsForeignChunks(t *testing.T) {
	store := newTestStore(t, &keywordEmbedder{}, nil)
	course, _ := mcpCourse()
	_, foreign := chromaCourse()

	assert.Error(t, store.AddCourse(context.Background(), course, foreign))
	assert.Empty(t, store.CourseTitles(context.Background()))
}

func TestGetCourseAndHasCourse(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	course, err := store.GetCourse(ctx, mcpTitle)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/mcp", course.Link)
	require.Len(t, course.Lessons, 3)
	assert.Empty(t, course.Lessons[1].Content)

	_, err = store.GetCourse(ctx, "Missing")
	assert.ErrorIs(t, err, interfaces.ErrCourseNotFound)

	assert.True(t, store.HasCourse(ctx, mcpTitle, "hash-1"))
	assert.False(t, store.HasCourse(ctx, mcpTitle, "hash-changed"))
	assert.False(t, store.HasCourse(ctx, "Missing", "hash-1"))
}

func TestDeleteCourse(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteCourse(ctx, mcpTitle))
	assert.Equal(t, []string{chromaTitle}, store.CourseTitles(ctx))

	hits, err := store.SearchContent(ctx, interfaces.ContentQuery{Query: "mcp server"})
	require.NoError(t, err)
	for _, hit := range hits {
		assert.Equal(t, chromaTitle, hit.Chunk.CourseTitle)
	}
}

func openStorage(t *testing.T, path string) (*badger.BadgerDB, interfaces.CourseStorage) {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	return db, badger.NewCourseStorage(db, logger)
}

func TestLoadRestoresPersistedRecords(t *testing.T) {
	path := t.TempDir() + "/vectors"
	ctx := context.Background()

	db, storage := openStorage(t, path)
	store := newTestStore(t, &keywordEmbedder{}, storage)
	course, chunks := mcpCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))
	course, chunks = chromaCourse()
	require.NoError(t, store.AddCourse(ctx, course, chunks))
	require.NoError(t, db.Close())

	db, storage = openStorage(t, path)
	defer db.Close()

	reloaded := newTestStore(t, &keywordEmbedder{}, storage)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.Stats(ctx).TotalCourses)
	assert.Equal(t, 6, reloaded.Stats(ctx).TotalChunks)
	assert.True(t, reloaded.HasCourse(ctx, mcpTitle, "hash-1"))

	got, err := reloaded.ResolveCourse(ctx, "MCP")
	require.NoError(t, err)
	assert.Equal(t, mcpTitle, got)

	// Records from another embedding model are not comparable and are skipped
	otherModel := newTestStore(t, &keywordEmbedder{model: "other"}, storage)
	require.NoError(t, otherModel.Load(ctx))
	assert.Equal(t, 0, otherModel.Stats(ctx).TotalCourses)
}

func TestConcurrentSearchDuringIngest(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hits, err := store.SearchContent(ctx, interfaces.ContentQuery{Query: "mcp server", CourseTitle: mcpTitle})
				assert.NoError(t, err)
				// Each generation of the course is visible whole
				assert.Len(t, hits, 4)
			}
		}()
	}

	course, chunks := mcpCourse()
	for j := 0; j < 20; j++ {
		require.NoError(t, store.AddCourse(ctx, course, chunks))
	}
	wg.Wait()
}
