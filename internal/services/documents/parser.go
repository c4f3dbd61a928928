package documents

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/lectern/internal/models"
)

// PreambleTitle is the title of lesson 0, built from text before the first lesson marker
const PreambleTitle = "Preamble"

var (
	lessonMarker = regexp.MustCompile(`(?i)^\s*lesson\s+(\d+)\s*:\s*(.*?)\s*$`)
	lessonLink   = regexp.MustCompile(`(?i)^\s*lesson\s+link\s*:\s*(.*?)\s*$`)
)

// ParseError reports a malformed course document
type ParseError struct {
	Source string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
}

// headerValue returns the value of a "Key: value" line when the key matches case-insensitively
func headerValue(line, key string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	prefix := key + ":"
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(prefix):]), true
}

type lessonBuilder struct {
	lesson models.Lesson
	lines  []string
}

// Parse turns a structured course document into a Course with its lessons
func Parse(source, text string) (*models.Course, error) {
	sum := sha256.Sum256([]byte(text))
	text = strings.TrimPrefix(text, "\ufeff")

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Source: source, Reason: err.Error()}
	}

	// Header: title is required, link and instructor are optional and in that order
	pos := 0
	for pos < len(lines) && strings.TrimSpace(lines[pos]) == "" {
		pos++
	}
	if pos == len(lines) {
		return nil, &ParseError{Source: source, Reason: "document is empty"}
	}

	title, ok := headerValue(lines[pos], "Course Title")
	if !ok {
		return nil, &ParseError{Source: source, Line: pos + 1, Reason: "missing 'Course Title:' header"}
	}
	if title == "" {
		return nil, &ParseError{Source: source, Line: pos + 1, Reason: "course title is empty"}
	}
	pos++

	course := &models.Course{
		Title:       title,
		SourcePath:  source,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	skipBlank := func() {
		for pos < len(lines) && strings.TrimSpace(lines[pos]) == "" {
			pos++
		}
	}

	skipBlank()
	if pos < len(lines) {
		if link, ok := headerValue(lines[pos], "Course Link"); ok {
			course.Link = link
			pos++
			skipBlank()
		}
	}
	if pos < len(lines) {
		if instructor, ok := headerValue(lines[pos], "Course Instructor"); ok {
			course.Instructor = instructor
			pos++
		}
	}

	// Body: split at lesson markers
	var (
		order    []int
		builders = map[int]*lessonBuilder{}
		preamble []string
		current  *lessonBuilder
	)

	for i := pos; i < len(lines); i++ {
		line := lines[i]

		if m := lessonMarker.FindStringSubmatch(line); m != nil {
			number, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, &ParseError{Source: source, Line: i + 1, Reason: fmt.Sprintf("invalid lesson number %q", m[1])}
			}

			b, exists := builders[number]
			if !exists {
				b = &lessonBuilder{lesson: models.Lesson{Number: number, Title: m[2]}}
				builders[number] = b
				order = append(order, number)
			}
			current = b

			if i+1 < len(lines) {
				if lm := lessonLink.FindStringSubmatch(lines[i+1]); lm != nil {
					if b.lesson.Link == "" {
						b.lesson.Link = lm[1]
					}
					i++
				}
			}
			continue
		}

		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		current.lines = append(current.lines, line)
	}

	if body := strings.TrimSpace(strings.Join(preamble, "\n")); body != "" {
		if b, exists := builders[models.PreambleLessonNumber]; exists {
			// An explicit "Lesson 0:" marker absorbs the preamble ahead of its own text
			b.lines = append(strings.Split(body, "\n"), b.lines...)
		} else {
			builders[models.PreambleLessonNumber] = &lessonBuilder{
				lesson: models.Lesson{Number: models.PreambleLessonNumber, Title: PreambleTitle},
				lines:  []string{body},
			}
			order = append([]int{models.PreambleLessonNumber}, order...)
		}
	}

	for _, number := range order {
		b := builders[number]
		b.lesson.Content = strings.TrimSpace(strings.Join(b.lines, "\n"))
		course.Lessons = append(course.Lessons, b.lesson)
	}

	return course, nil
}
