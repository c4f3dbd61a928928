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

// OutlineToolName is the name the model uses to request a course outline
const OutlineToolName = "get_course_outline"

type outlineArgs struct {
	CourseName string `json:"course_name" validate:"required"`
}

func (a *outlineArgs) normalize() {
	a.CourseName = strings.TrimSpace(a.CourseName)
}

// CourseOutlineTool returns a course's metadata and lesson list
type CourseOutlineTool struct {
	store interfaces.VectorStore
}

func NewCourseOutlineTool(store interfaces.VectorStore) *CourseOutlineTool {
	return &CourseOutlineTool{store: store}
}

func (t *CourseOutlineTool) Definition() interfaces.ToolDefinition {
	return interfaces.ToolDefinition{
		Name:        OutlineToolName,
		Description: "Get the outline of a course: title, link, instructor and the numbered list of lessons",
		Properties: map[string]interface{}{
			"course_name": map[string]interface{}{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
		},
		Required: []string{"course_name"},
	}
}

func (t *CourseOutlineTool) Execute(ctx context.Context, input json.RawMessage, rec interfaces.SourceRecorder) (string, error) {
	var args outlineArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}

	title, err := t.store.ResolveCourse(ctx, args.CourseName)
	if errors.Is(err, interfaces.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'.", args.CourseName), nil
	}
	if err != nil {
		return searchUnavailable(err), nil
	}

	course, err := t.store.GetCourse(ctx, title)
	if errors.Is(err, interfaces.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'.", args.CourseName), nil
	}
	if err != nil {
		return searchUnavailable(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", course.Link)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", course.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d):", len(course.Lessons))
	for _, lesson := range course.Lessons {
		fmt.Fprintf(&b, "\n  Lesson %d: %s", lesson.Number, lesson.Title)
	}

	if rec != nil {
		rec.Record(models.NewSourceReference(course.Title, nil, course.Link))
	}

	return b.String(), nil
}
