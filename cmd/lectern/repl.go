package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

const replHelp = `Ask a question about the course materials.
Commands: :new (start a new session), :courses (list courses), :quit`

type repl struct {
	rag       interfaces.RAGService
	in        *bufio.Scanner
	out       io.Writer
	sessionID string
}

func newREPL(rag interfaces.RAGService, in io.Reader, out io.Writer) *repl {
	return &repl{rag: rag, in: bufio.NewScanner(in), out: out}
}

func (r *repl) run(ctx context.Context) {
	fmt.Fprintln(r.out, replHelp)

	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(r.in.Text())
		switch line {
		case "":
			continue
		case ":quit", ":q", "exit":
			return
		case ":new":
			if r.sessionID != "" {
				r.rag.ClearSession(r.sessionID)
			}
			r.sessionID = ""
			fmt.Fprintln(r.out, "Started a new session.")
			continue
		case ":courses":
			fmt.Fprint(r.out, formatStats(r.rag.CourseAnalytics(ctx)))
			continue
		}

		answer, err := r.rag.AnswerQuery(ctx, r.sessionID, line)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			continue
		}
		r.sessionID = answer.SessionID
		fmt.Fprint(r.out, formatAnswer(answer))
	}
}

// formatAnswer prints the answer followed by its numbered sources
func formatAnswer(answer *models.Answer) string {
	var b strings.Builder
	b.WriteString(answer.Text)
	b.WriteString("\n")

	if len(answer.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, source := range answer.Sources {
			fmt.Fprintf(&b, "  %d. %s", i+1, source.Label)
			if source.URL != "" {
				fmt.Fprintf(&b, " (%s)", source.URL)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatStats(stats models.CourseStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d course(s), %d chunk(s)\n", stats.TotalCourses, stats.TotalChunks)
	for _, title := range stats.CourseTitles {
		fmt.Fprintf(&b, "  - %s\n", title)
	}
	return b.String()
}
