package enrich

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON means the reply holds neither a fenced block nor a bare object.
	ErrNoJSON = errors.New("enrich: no json object in reply")
	// ErrIncomplete means the object parsed but a required field is missing or out of range.
	ErrIncomplete = errors.New("enrich: reply is missing required fields")
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON pulls the JSON object out of a model reply. A ```json fenced block wins over
// surrounding prose; otherwise the first balanced object is used, so trailing prose may contain
// braces. Raw line breaks inside quoted strings are replaced by spaces before validation.
func ExtractJSON(reply string) ([]byte, error) {
	candidate := strings.TrimSpace(reply)
	if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	end := objectEnd(candidate, start)
	if end < 0 {
		return nil, fmt.Errorf("%w: unbalanced object", ErrNoJSON)
	}

	out := collapseStringNewlines([]byte(candidate[start : end+1]))
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: invalid object", ErrNoJSON)
	}
	return out, nil
}

// objectEnd returns the index of the brace closing the object opened at start, or -1.
// Braces inside quoted strings do not count.
func objectEnd(s string, start int) int {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func collapseStringNewlines(src []byte) []byte {
	var (
		out      bytes.Buffer
		inString bool
		escaped  bool
	)
	out.Grow(len(src))
	for _, c := range src {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString && (c == '\n' || c == '\r'):
			c = ' '
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

// Relativity is an accepted scoring reply. Industry and Type are nil when the model left them out.
type Relativity struct {
	Industry *string
	Type     *string
	Score    int
	Reason   string
}

// Categorization is an accepted full-categorization reply.
type Categorization struct {
	Title         string
	Summary       []string
	Industry      string
	Type          string
	ViralTendency int
}

type relativityReply struct {
	Industry *float64 `json:"industry"`
	Type     *float64 `json:"type"`
	Score    *float64 `json:"relativityScore"`
	Reason   *string  `json:"reason"`
}

type categorizationReply struct {
	Title         *string     `json:"title"`
	Summary       *bulletList `json:"summary"`
	Industry      *float64    `json:"industry"`
	Type          *float64    `json:"type"`
	ViralTendency *float64    `json:"viralTendency"`
}

// bulletList accepts either an array of strings or one newline-separated string.
type bulletList []string

func (b *bulletList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*b = cleanBullets(items)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	*b = cleanBullets(strings.Split(text, "\n"))
	return nil
}

func cleanBullets(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(item), "-*•"))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseRelativity validates a scoring reply: industry and type may be absent but must be
// valid indices when given; score and reason are required.
func ParseRelativity(reply string, tax Taxonomy) (Relativity, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return Relativity{}, err
	}
	var r relativityReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return Relativity{}, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}

	if r.Score == nil || r.Reason == nil || strings.TrimSpace(*r.Reason) == "" {
		return Relativity{}, fmt.Errorf("%w: relativityScore and reason are required", ErrIncomplete)
	}
	score := int(math.Round(*r.Score))
	if score < -100 || score > 100 {
		return Relativity{}, fmt.Errorf("%w: relativityScore %d out of range", ErrIncomplete, score)
	}

	out := Relativity{Score: score, Reason: strings.TrimSpace(*r.Reason)}
	if r.Industry != nil {
		name, ok := tax.Industry(int(*r.Industry))
		if !ok {
			return Relativity{}, fmt.Errorf("%w: industry index %v", ErrIncomplete, *r.Industry)
		}
		out.Industry = &name
	}
	if r.Type != nil {
		name, ok := tax.Type(int(*r.Type))
		if !ok {
			return Relativity{}, fmt.Errorf("%w: type index %v", ErrIncomplete, *r.Type)
		}
		out.Type = &name
	}
	return out, nil
}

// ParseCategorization validates a full categorization reply; all five fields are required.
func ParseCategorization(reply string, tax Taxonomy) (Categorization, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return Categorization{}, err
	}
	var r categorizationReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return Categorization{}, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}

	if r.Title == nil || strings.TrimSpace(*r.Title) == "" || r.Summary == nil || len(*r.Summary) == 0 ||
		r.Industry == nil || r.Type == nil || r.ViralTendency == nil {
		return Categorization{}, fmt.Errorf("%w: title, summary, industry, type and viralTendency are required", ErrIncomplete)
	}

	industry, ok := tax.Industry(int(*r.Industry))
	if !ok {
		return Categorization{}, fmt.Errorf("%w: industry index %v", ErrIncomplete, *r.Industry)
	}
	articleType, ok := tax.Type(int(*r.Type))
	if !ok {
		return Categorization{}, fmt.Errorf("%w: type index %v", ErrIncomplete, *r.Type)
	}
	viral := int(math.Round(*r.ViralTendency))
	if viral < 0 || viral > 100 {
		return Categorization{}, fmt.Errorf("%w: viralTendency %d out of range", ErrIncomplete, viral)
	}

	return Categorization{
		Title:         strings.TrimSpace(*r.Title),
		Summary:       []string(*r.Summary),
		Industry:      industry,
		Type:          articleType,
		ViralTendency: viral,
	}, nil
}
