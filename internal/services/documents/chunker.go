package documents

import (
	"unicode"

	"github.com/ternarybob/lectern/internal/models"
)

// Chunker splits lesson text into overlapping windows measured in runes
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. size must be positive and 0 <= overlap < size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, &ConfigError{Reason: "chunk size must be positive"}
	}
	if overlap < 0 || overlap >= size {
		return nil, &ConfigError{Reason: "chunk overlap must be in [0, chunk size)"}
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// ConfigError reports invalid chunking settings
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "invalid chunking config: " + e.Reason }

// Chunk splits every lesson of the course. Chunk indices restart at 0 per lesson.
func (c *Chunker) Chunk(course *models.Course) []models.Chunk {
	var chunks []models.Chunk
	for _, lesson := range course.Lessons {
		for i, w := range c.windows([]rune(lesson.Content)) {
			chunks = append(chunks, models.Chunk{
				CourseTitle:  course.Title,
				LessonNumber: lesson.Number,
				Index:        i,
				Offset:       w.start,
				Text:         w.text,
			})
		}
	}
	return chunks
}

type window struct {
	start int
	text  string
}

func (c *Chunker) windows(runes []rune) []window {
	n := len(runes)
	if n == 0 {
		return nil
	}

	// Windows never end closer than this to their start, so every step advances
	minLength := c.size / 2
	if minLength < c.overlap+1 {
		minLength = c.overlap + 1
	}

	var out []window
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = snapBack(runes, end, start+minLength)
		}

		if blank(runes[start:end]) {
			// Whitespace runs longer than a window are dropped rather than
			// emitted as blank chunks
			start = skipSpace(runes, end)
			if start == n {
				return out
			}
			continue
		}

		out = append(out, window{start: start, text: string(runes[start:end])})
		if end == n {
			return out
		}

		start = snapForward(runes, end-c.overlap, end)
	}
}

func blank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// skipSpace returns the index of the first non-space rune at or after from, or len(runes)
func skipSpace(runes []rune, from int) int {
	for from < len(runes) && unicode.IsSpace(runes[from]) {
		from++
	}
	return from
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// snapBack moves a window end back to a sentence boundary, else to a word
// boundary, never below floor. Returns end unchanged when neither exists.
func snapBack(runes []rune, end, floor int) int {
	for p := end; p >= floor; p-- {
		if isSentenceEnd(runes[p-1]) && unicode.IsSpace(runes[p]) {
			return p
		}
	}
	for p := end; p >= floor; p-- {
		if unicode.IsSpace(runes[p]) && !unicode.IsSpace(runes[p-1]) {
			return p
		}
	}
	return end
}

// snapForward moves a window start forward to the next word start that lies
// before limit. Returns start unchanged when there is none.
func snapForward(runes []rune, start, limit int) int {
	for q := start; q < limit; q++ {
		if !unicode.IsSpace(runes[q]) && (q == 0 || unicode.IsSpace(runes[q-1])) {
			return q
		}
	}
	return start
}
