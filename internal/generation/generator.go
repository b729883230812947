// Package generation produces patient education drafts and clinical summaries,
// either from a language model or from fixed templates.
package generation

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/drfirst/go-draftguard/internal/content"
)

// MaxSources is the most references attached to one draft
const MaxSources = 5

// Evidence gathers literature references for a topic
type Evidence interface {
	Gather(ctx context.Context, topic string, limit int) []content.SourceReference
}

// titleCase title-cases s. A Caser holds state, so each call gets its own.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func educationTitle(topic string) string {
	return "Understanding " + titleCase(topic) + ": A Patient Guide"
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func gatherSources(ctx context.Context, ev Evidence, req *content.PatientEducationRequest) []content.SourceReference {
	if ev == nil || !req.WantsSources() {
		return []content.SourceReference{}
	}
	refs := ev.Gather(ctx, req.Topic, MaxSources)
	if refs == nil {
		return []content.SourceReference{}
	}
	return refs
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
