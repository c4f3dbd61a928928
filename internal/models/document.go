package models

import (
	"fmt"
	"time"
)

// PreambleLessonNumber is the lesson number given to text that appears before
// the first lesson marker of a course document.
const PreambleLessonNumber = 0

// Course is a parsed course document. The title is the course identity.
type Course struct {
	Title       string   `json:"title"`
	Link        string   `json:"link,omitempty"`
	Instructor  string   `json:"instructor,omitempty"`
	Lessons     []Lesson `json:"lessons"`
	SourcePath  string   `json:"source_path,omitempty"`  // File the course was read from
	ContentHash string   `json:"content_hash,omitempty"` // sha256 of the raw document text
}

// Lesson is one numbered section of a course.
type Lesson struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	Content string `json:"-"` // Raw lesson body, not persisted with the catalog
}

// Lesson returns the lesson with the given number, or nil.
func (c *Course) Lesson(number int) *Lesson {
	for i := range c.Lessons {
		if c.Lessons[i].Number == number {
			return &c.Lessons[i]
		}
	}
	return nil
}

// Chunk is a window of lesson text indexed for content search.
type Chunk struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber int    `json:"lesson_number"`
	Index        int    `json:"chunk_index"` // Sequential within the lesson, starting at 0
	Offset       int    `json:"offset"`      // Rune offset of the chunk within the lesson body
	Text         string `json:"text"`
}

// Key uniquely identifies a chunk within the content collection.
func (c Chunk) Key() string {
	return ChunkKey(c.CourseTitle, c.LessonNumber, c.Index)
}

// ChunkKey builds the storage key for a (course, lesson, index) triple.
func ChunkKey(courseTitle string, lessonNumber, index int) string {
	return fmt.Sprintf("chunk:%s:%d:%d", courseTitle, lessonNumber, index)
}

// SearchHit is a content search result.
type SearchHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"` // Cosine similarity, higher is closer
}

// SourceReference cites the course material a search result came from.
type SourceReference struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	Label        string `json:"text"`
	URL          string `json:"url,omitempty"`
}

// NewSourceReference builds a reference with its display label.
func NewSourceReference(courseTitle string, lessonNumber *int, url string) SourceReference {
	label := courseTitle
	if lessonNumber != nil {
		label = fmt.Sprintf("%s - Lesson %d", courseTitle, *lessonNumber)
	}
	return SourceReference{
		CourseTitle:  courseTitle,
		LessonNumber: lessonNumber,
		Label:        label,
		URL:          url,
	}
}

// Answer is the result of a single query.
type Answer struct {
	SessionID string            `json:"session_id"`
	Text      string            `json:"answer"`
	Sources   []SourceReference `json:"sources"`
}

// IngestSummary reports the outcome of an ingestion pass over a directory.
type IngestSummary struct {
	Added     int           `json:"added"`     // Courses written (new or changed)
	Unchanged int           `json:"unchanged"` // Courses skipped because the document did not change
	Failed    int           `json:"failed"`    // Documents that could not be parsed or stored
	Removed   int           `json:"removed"`   // Stored courses whose document is gone
	Chunks    int           `json:"chunks"`    // Content records written
	Duration  time.Duration `json:"duration"`
}

// CourseStats summarises the catalog.
type CourseStats struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
	TotalChunks  int      `json:"total_chunks"`
}
