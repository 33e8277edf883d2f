package enrich

import (
	"fmt"
	"strings"

	"NewsIngest/internal/config"
)

// Taxonomy holds the closed vocabularies. Prompts list them with indices and replies refer back by index.
type Taxonomy struct {
	Industries []string
	Types      []string
	JobTitles  []string
}

// TaxonomyFromConfig copies the configured lists.
func TaxonomyFromConfig(cfg config.TaxonomyConfig) Taxonomy {
	return Taxonomy{Industries: cfg.Industries, Types: cfg.Types, JobTitles: cfg.JobTitles}
}

// Industry returns the name at index i.
func (t Taxonomy) Industry(i int) (string, bool) {
	return at(t.Industries, i)
}

// Type returns the content type at index i.
func (t Taxonomy) Type(i int) (string, bool) {
	return at(t.Types, i)
}

func at(list []string, i int) (string, bool) {
	if i < 0 || i >= len(list) {
		return "", false
	}
	return list[i], true
}

// PrimingPrompt introduces the vocabularies once per batch.
func (t Taxonomy) PrimingPrompt() string {
	var b strings.Builder
	b.WriteString("You will be given news articles one at a time. Use the lists below and always refer to their entries by index.\n\n")
	writeList(&b, "Industries", t.Industries)
	writeList(&b, "Content types", t.Types)
	writeList(&b, "Reader job titles", t.JobTitles)
	b.WriteString("Reply with OK if the lists are clear.")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	b.WriteString(title)
	b.WriteString(":\n")
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i, item)
	}
	b.WriteString("\n")
}
