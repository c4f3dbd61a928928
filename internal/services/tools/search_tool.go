package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// SearchToolName is the name the model uses to invoke content search
const SearchToolName = "search_course_content"

type searchArgs struct {
	Query        string `json:"query" validate:"required"`
	CourseName   string `json:"course_name,omitempty"`
	LessonNumber *int   `json:"lesson_number,omitempty" validate:"omitempty,gte=0"`
}

// Whitespace-only arguments count as missing
func (a *searchArgs) normalize() {
	a.Query = strings.TrimSpace(a.Query)
	a.CourseName = strings.TrimSpace(a.CourseName)
}

// CourseSearchTool searches course content with optional course and lesson filters
type CourseSearchTool struct {
	store interfaces.VectorStore
}

// NewCourseSearchTool creates the content search tool
func NewCourseSearchTool(store interfaces.VectorStore) *CourseSearchTool {
	return &CourseSearchTool{store: store}
}

func (t *CourseSearchTool) Definition() interfaces.ToolDefinition {
	return interfaces.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		Properties: map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to search for in the course content",
			},
			"course_name": map[string]interface{}{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
			"lesson_number": map[string]interface{}{
				"type":        "integer",
				"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
			},
		},
		Required: []string{"query"},
	}
}

func (t *CourseSearchTool) Execute(ctx context.Context, input json.RawMessage, rec interfaces.SourceRecorder) (string, error) {
	var args searchArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}

	query := interfaces.ContentQuery{
		Query:        args.Query,
		LessonNumber: args.LessonNumber,
	}

	if args.CourseName != "" {
		title, err := t.store.ResolveCourse(ctx, args.CourseName)
		if errors.Is(err, interfaces.ErrCourseNotFound) {
			return fmt.Sprintf("No course found matching '%s'.", args.CourseName), nil
		}
		if err != nil {
			return searchUnavailable(err), nil
		}
		query.CourseTitle = title
	}

	hits, err := t.store.SearchContent(ctx, query)
	if err != nil {
		return searchUnavailable(err), nil
	}

	if len(hits) == 0 {
		msg := "No relevant content found"
		if args.CourseName != "" {
			msg += fmt.Sprintf(" in course '%s'", args.CourseName)
		}
		if args.LessonNumber != nil {
			msg += fmt.Sprintf(" in lesson %d", *args.LessonNumber)
		}
		return msg + ".", nil
	}

	courses := make(map[string]*models.Course)
	blocks := make([]string, 0, len(hits))
	sources := make([]models.SourceReference, 0, len(hits))

	for _, hit := range hits {
		lesson := hit.Chunk.LessonNumber
		header := fmt.Sprintf("[%s - Lesson %d]", hit.Chunk.CourseTitle, lesson)
		blocks = append(blocks, header+"\n"+hit.Chunk.Text)

		sources = append(sources, models.NewSourceReference(
			hit.Chunk.CourseTitle,
			&lesson,
			t.sourceURL(ctx, courses, hit.Chunk.CourseTitle, lesson),
		))
	}

	if rec != nil {
		rec.Record(sources...)
	}

	return strings.Join(blocks, "\n\n"), nil
}

// sourceURL prefers the lesson link and falls back to the course link
func (t *CourseSearchTool) sourceURL(ctx context.Context, cache map[string]*models.Course, title string, lesson int) string {
	course, ok := cache[title]
	if !ok {
		course, _ = t.store.GetCourse(ctx, title)
		cache[title] = course
	}
	if course == nil {
		return ""
	}
	if l := course.Lesson(lesson); l != nil && l.Link != "" {
		return l.Link
	}
	return course.Link
}

func searchUnavailable(err error) string {
	return fmt.Sprintf("Search unavailable: %v", err)
}
