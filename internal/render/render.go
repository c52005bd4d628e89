// Package render substitutes {field} placeholders in message templates
// with values from a recipient record.
package render

import (
	"regexp"

	"github.com/bulkpost/bulkpost/internal/dataset"
)

// Renderer applies one recipient record's values to template strings.
// Substitution patterns are compiled once per Renderer, so rendering a
// subject and body against the same record shares the compiled set.
// Renderers are cheap, single-use, and safe to discard after a recipient.
type Renderer struct {
	subs []substitution
}

type substitution struct {
	pattern *regexp.Regexp
	value   string
}

// New builds a Renderer for the given record. Each key produces a pattern
// matching "{" + optional whitespace + the literal key + optional
// whitespace + "}", case-insensitively, with regex metacharacters in the
// key escaped. Anchoring on the closing brace keeps header names that are
// substrings of one another from cross-substituting.
func New(rec dataset.Record) *Renderer {
	subs := make([]substitution, 0, len(rec))
	for key, value := range rec {
		subs = append(subs, substitution{
			pattern: regexp.MustCompile(`(?i)\{\s*` + regexp.QuoteMeta(key) + `\s*\}`),
			value:   dataset.FormatValue(value),
		})
	}
	return &Renderer{subs: subs}
}

// Render replaces every placeholder that names a record field with that
// field's value. Unmatched placeholders pass through verbatim; a numeric
// zero renders as "0", not empty. Render is pure and never fails.
func (r *Renderer) Render(template string) string {
	out := template
	for _, sub := range r.subs {
		out = sub.pattern.ReplaceAllLiteralString(out, sub.value)
	}
	return out
}

// Render is a convenience for a single substitution pass over one string.
func Render(template string, rec dataset.Record) string {
	return New(rec).Render(template)
}
