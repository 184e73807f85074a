// Package normalize turns raw source-extract rows into canonical terms.
package normalize

import (
	"regexp"
	"strings"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/etl/source"
)

var (
	// Enumeration markers are single lower-case letters: (a), (b).
	markerRe      = regexp.MustCompile(`\([a-z]\)\s*`)
	synonymSepRe  = regexp.MustCompile(`\s{2,}`)
	leadingDashRe = regexp.MustCompile(`^[-\s]+`)
)

// Result is the outcome of normalizing one extract.
type Result struct {
	System terminology.CodeSystem
	Terms  []terminology.Term
	Rows   int
	// Rows dropped for lacking a code or any usable term text.
	NoCode int
	NoTerm int
}

// Table canonicalizes every row of t under the given profile. Output order
// follows row order, so identical input always yields identical terms.
func Table(system terminology.CodeSystem, p Profile, t *source.Table) (*Result, error) {
	if err := t.Require(p.CodeColumn, p.TermColumn); err != nil {
		return nil, err
	}

	res := &Result{System: system, Rows: len(t.Rows)}
	for _, row := range t.Rows {
		code := CleanCode(row[p.CodeColumn])
		if code == "" {
			res.NoCode++
			continue
		}
		terms := CleanTerms(row[p.TermColumn], p)
		if len(terms) == 0 {
			res.NoTerm++
			continue
		}
		for _, term := range terms {
			res.Terms = append(res.Terms, terminology.Term{Code: code, Term: term, System: system})
		}
	}
	return res, nil
}

// CleanCode extracts the identifier from a raw code cell. A parenthesized
// segment wins when it contains a hyphen; otherwise the text before the
// parenthesis is used.
func CleanCode(raw string) string {
	raw = strings.TrimSpace(raw)
	open := strings.Index(raw, "(")
	if open < 0 {
		return raw
	}

	outer := strings.TrimSpace(raw[:open])
	inner := raw[open+1:]
	if end := strings.Index(inner, ")"); end >= 0 {
		inner = inner[:end]
	}
	inner = strings.TrimSpace(inner)

	if strings.Contains(inner, "-") {
		return inner
	}
	if outer != "" {
		return outer
	}
	return inner
}

// CleanTerms returns the searchable term strings in a raw term cell. With
// ExpandSynonyms set, each synonym separated by two or more spaces is a
// term of its own and the single-spaced join of all of them is appended.
func CleanTerms(raw string, p Profile) []string {
	s := raw
	if p.StripMarkers {
		s = markerRe.ReplaceAllString(s, "")
	}
	if p.TrimLeadingDashes {
		s = leadingDashRe.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !p.ExpandSynonyms {
		return []string{s}
	}

	var terms []string
	for _, part := range synonymSepRe.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			terms = append(terms, part)
		}
	}
	if len(terms) > 1 {
		terms = append(terms, strings.Join(terms, " "))
	}
	return terms
}
