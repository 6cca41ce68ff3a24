package filter

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Set is a string set with O(1) membership.
type Set map[string]struct{}

// NewSet creates a set containing values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports membership. A nil set has no members.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Toggle adds v if absent and removes it otherwise. It returns true when v is now a member.
func (s Set) Toggle(v string) bool {
	if s.Has(v) {
		delete(s, v)
		return false
	}
	s[v] = struct{}{}
	return true
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Values returns the members, sorted.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Normalize trims, collapses inner whitespace and title-cases a city or county name,
// so "  new   YORK " and "New York" compare equal.
func Normalize(s string) string {
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(s)
}

// normalizer memoizes Normalize within a single pass. Not safe for concurrent use.
type normalizer struct {
	caser cases.Caser
	memo  map[string]string
}

func newNormalizer() *normalizer {
	return &normalizer{caser: cases.Title(language.Und), memo: make(map[string]string)}
}

func (n *normalizer) normalize(s string) string {
	if out, ok := n.memo[s]; ok {
		return out
	}
	out := strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	if out != "" {
		out = n.caser.String(out)
	}
	n.memo[s] = out
	return out
}
