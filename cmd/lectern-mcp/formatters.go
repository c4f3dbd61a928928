package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/lectern/internal/models"
)

// formatSources renders references as a markdown list, empty when there are none
func formatSources(sources []models.SourceReference) string {
	if len(sources) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for i, source := range sources {
		if source.URL != "" {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, source.Label, source.URL)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, source.Label)
		}
	}
	return b.String()
}

func formatAnswer(answer *models.Answer) string {
	return answer.Text + formatSources(answer.Sources) + fmt.Sprintf("\n\n_Session: %s_", answer.SessionID)
}
