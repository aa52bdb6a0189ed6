// Package parser turns a query string into the index terms a search needs.
//
// A query is a list of words and field:value filters joined by AND (the
// default) or OR, with NOT excluding the next word or filter. Filter values
// may be double-quoted to include spaces: status:"in progress". An empty
// query, or one made only of NOT clauses, matches every issue minus the
// excluded ones. A query whose words are all stop words matches nothing.
package parser

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string

	// noTerms is set when positive words were given but none of them
	// produced an index term.
	noTerms bool
}

// MatchAll reports whether the plan selects every issue before exclusions.
func (p *QueryPlan) MatchAll() bool {
	return len(p.Terms) == 0 && !p.noTerms
}

// MatchNone reports whether the plan can match no issue at all.
func (p *QueryPlan) MatchNone() bool {
	return p.noTerms
}

// TextTerms returns the positive terms that came from free text, the ones
// relevance scoring applies to.
func (p *QueryPlan) TextTerms() []string {
	out := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		if !tokenizer.IsFieldTerm(t) {
			out = append(out, t)
		}
	}
	return out
}

// Normalized is a canonical form of the plan: equivalent queries that differ
// only in case, spacing or term order produce the same string.
func (p *QueryPlan) Normalized() string {
	terms := append([]string(nil), p.Terms...)
	excludes := append([]string(nil), p.ExcludeTerms...)
	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{p.Type.String(), strings.Join(terms, ",")}
	if p.noTerms {
		parts = append(parts, "NONE")
	}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}

func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	words, err := split(query)
	if err != nil {
		return nil, err
	}
	excludeNext, positive := false, false
	for _, word := range words {
		if !word.quoted {
			switch strings.ToUpper(word.text) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			case "NOT":
				excludeNext = true
				continue
			}
		}
		terms, err := termsFor(word)
		if err != nil {
			return nil, err
		}
		if !excludeNext {
			positive = true
		}
		if len(terms) == 0 {
			excludeNext = false
			continue
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, terms...)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, terms...)
		}
	}
	if excludeNext {
		return nil, fmt.Errorf("NOT must be followed by a word or filter")
	}
	plan.Terms = dedupe(plan.Terms)
	plan.ExcludeTerms = dedupe(plan.ExcludeTerms)
	plan.noTerms = positive && len(plan.Terms) == 0
	return plan, nil
}

type word struct {
	text   string
	quoted bool
}

// split breaks the query on whitespace outside double quotes.
func split(query string) ([]word, error) {
	var (
		words   []word
		current strings.Builder
		inQuote bool
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 || quoted {
			words = append(words, word{text: current.String(), quoted: quoted})
		}
		current.Reset()
		quoted = false
	}
	for _, r := range query {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in query")
	}
	flush()
	return words, nil
}

// termsFor maps a word to index terms: a field:value filter becomes one
// field term, free text becomes its tokens.
func termsFor(w word) ([]string, error) {
	if field, value, ok := strings.Cut(w.text, ":"); ok && isFieldName(field) {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("filter %q has no value", field)
		}
		return []string{tokenizer.FieldTerm(field, value)}, nil
	}
	tokens := tokenizer.Tokenize(w.text)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, tok.Term)
	}
	return terms, nil
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
