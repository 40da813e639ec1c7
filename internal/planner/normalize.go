// Package planner implements C4: turning a raw script into ordered,
// shot-sized segments with paired visual prompts.
package planner

import "strings"

// typographicReplacements canonicalizes punctuation that speech synthesis
// engines tend to mispronounce or choke on, to plain ASCII equivalents.
var typographicReplacements = []struct {
	from string
	to   string
}{
	{"—", "--"}, // em dash
	{"–", "-"},  // en dash
	{"‘", "'"},  // left single quote
	{"’", "'"},  // right single quote / apostrophe
	{"“", "\""}, // left double quote
	{"”", "\""}, // right double quote
	{"…", "..."}, // ellipsis
	{" ", " "},  // non-breaking space
}

// Normalize canonicalizes typographic punctuation to ASCII and collapses
// whitespace. It is pure and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(script string) string {
	s := script
	for _, r := range typographicReplacements {
		s = strings.ReplaceAll(s, r.from, r.to)
	}

	fields := strings.Fields(s)
	s = strings.Join(fields, " ")

	return strings.TrimSpace(s)
}
