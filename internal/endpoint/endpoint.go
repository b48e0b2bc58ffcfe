// Package endpoint parses the comma-separated endpoint lists used by every
// multi-endpoint CLI flag in spec.md §6 (client_backendpoints,
// subscribe_frontendpoints). Parsing is non-destructive: it never mutates
// its input, unlike the source program's tokenizer (spec.md §9, "String
// endpoint lists").
package endpoint

import "strings"

// List parses a comma-separated endpoint string into an ordered sequence
// of trimmed, non-empty endpoints. Leading and trailing whitespace around
// each entry is removed; empty entries (from "a,,b" or a trailing comma)
// are dropped.
func List(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Join is the inverse of List: it joins endpoints back into the
// comma-separated form a CLI flag carries (spec.md §6). internal/config
// builds that form for YAML sequences with strings.Join directly rather
// than through Join.
func Join(endpoints []string) string {
	return strings.Join(endpoints, ",")
}
