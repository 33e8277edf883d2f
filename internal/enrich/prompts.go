package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"NewsIngest/internal/domain"
)

const (
	defaultSystemPrompt = "You are an editor who classifies technology and business news. Answer with a single JSON object and nothing else."
	maxContentRunes     = 4000
)

const relativityInstructions = `Rate how useful this article is for readers holding the listed job titles.
Return JSON: {"industry": <industry index or null>, "type": <content type index or null>, "relativityScore": <integer from -100 to 100>, "reason": "<one sentence>"}`

const categorizationInstructions = `Categorize this article.
Return JSON: {"title": "<rewritten title, at most 70 characters>", "summary": ["<2 to 4 bullet points, 500 to 750 characters in total>"], "industry": <industry index>, "type": <content type index>, "viralTendency": <integer from 0 to 100>}`

func relativityPrompt(a *domain.Article, content string) string {
	return articlePrompt(relativityInstructions, a, content)
}

func categorizationPrompt(a *domain.Article, content string) string {
	return articlePrompt(categorizationInstructions, a, content)
}

func articlePrompt(instructions string, a *domain.Article, content string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nTitle: ")
	b.WriteString(a.Title)
	if summary := domain.Value(a.Summary); summary != "" {
		b.WriteString("\nSummary: ")
		b.WriteString(summary)
	}
	b.WriteString("\nURL: ")
	b.WriteString(a.URL)
	if content != "" {
		fmt.Fprintf(&b, "\nContent:\n%s", truncateRunes(content, maxContentRunes))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
