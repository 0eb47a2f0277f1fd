package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Type selects the tsquery constructor used for the search text.
type Type string

const (
	// Plain uses plainto_tsquery: words are ANDed, operators ignored.
	Plain Type = "plain"
	// Phrase uses phraseto_tsquery: words must follow each other.
	Phrase Type = "phrase"
	// WebSearch uses websearch_to_tsquery.
	WebSearch Type = "websearch"
	// Raw uses to_tsquery: the text must be valid tsquery syntax.
	Raw Type = "raw"
	// Custom converts the text with Parse and uses to_tsquery.
	Custom Type = "custom"
)

var functions = map[Type]string{
	Plain:     "plainto_tsquery",
	Phrase:    "phraseto_tsquery",
	WebSearch: "websearch_to_tsquery",
	Raw:       "to_tsquery",
	Custom:    "to_tsquery",
}

// ParseType parses a search type name. The empty name is Plain.
func ParseType(s string) (Type, error) {
	if s == "" {
		return Plain, nil
	}
	t := Type(strings.ToLower(s))
	if _, ok := functions[t]; !ok {
		return "", fmt.Errorf("search: unknown search type %q", s)
	}
	return t, nil
}

// Query describes a tsquery built from user input.
type Query struct {
	Text   string
	Type   Type   // Plain when empty
	Config string // text search configuration, e.g. "english"
	Invert bool   // negate the whole query
	Prefix bool   // prefix matching of Custom terms
}

// Build renders the query expression with placeholders numbered from $next.
// ok is false when the text contains nothing to search for.
func (q Query) Build(next int) (expr string, args []any, ok bool, err error) {
	typ := q.Type
	if typ == "" {
		typ = Plain
	}
	fn, found := functions[typ]
	if !found {
		return "", nil, false, fmt.Errorf("search: unknown search type %q", q.Type)
	}
	text := strings.TrimSpace(q.Text)
	if typ == Custom {
		text = Parse(text, q.Prefix)
	}
	if text == "" {
		return "", nil, false, nil
	}
	var b strings.Builder
	if q.Invert {
		b.WriteString("!!(")
	}
	b.WriteString(fn)
	b.WriteByte('(')
	if q.Config != "" {
		b.WriteString(placeholder(next))
		b.WriteString("::regconfig, ")
		args = append(args, q.Config)
		next++
	}
	b.WriteString(placeholder(next))
	b.WriteByte(')')
	args = append(args, text)
	if q.Invert {
		b.WriteByte(')')
	}
	return b.String(), args, true, nil
}

func placeholder(n int) string { return "$" + strconv.Itoa(n) }
