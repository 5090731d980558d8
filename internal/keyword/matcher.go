// Package keyword implements the word-boundary keyword matching engine.
package keyword

import (
	"regexp"
	"strings"
	"unicode"

	"briefly/internal/model"
)

// MinLength is the shortest keyword accepted by a Matcher. Shorter keywords
// are dropped silently at construction.
const MinLength = 2

// Matcher evaluates text against a compiled set of keywords. Matching is
// case-insensitive; keywords with ASCII word edges are anchored on word
// boundaries, so "ai" does not match inside "main", while CJK keywords match
// as substrings since CJK text has no word delimiters. A Matcher is immutable
// after construction and safe for concurrent use.
type Matcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

// NewMatcher compiles the given raw keywords into a Matcher. Keywords are
// trimmed and lower-cased; empty or too-short entries are skipped.
func NewMatcher(keywords []string) *Matcher {
	m := &Matcher{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if len([]rune(kw)) < MinLength {
			continue
		}
		m.keywords = append(m.keywords, strings.ToLower(kw))
		m.patterns = append(m.patterns, compilePattern(kw))
	}
	return m
}

// compilePattern anchors a keyword edge with \b only when the edge is an
// ASCII word character: RE2's \b is ASCII-only and can never hold next to a
// CJK rune. CJK keyword edges carry no anchor, so Chinese keywords match as
// substrings of undelimited Chinese text.
func compilePattern(kw string) *regexp.Regexp {
	runes := []rune(kw)
	prefix, suffix := "", ""
	if isASCIIWord(runes[0]) {
		prefix = `\b`
	}
	if isASCIIWord(runes[len(runes)-1]) {
		suffix = `\b`
	}
	return regexp.MustCompile(`(?i)` + prefix + regexp.QuoteMeta(kw) + suffix)
}

func isASCIIWord(r rune) bool {
	return r < 128 && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

// Len returns the number of compiled keywords.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Matches evaluates every pattern against text and returns whether any
// matched, plus the matched keywords in registration order.
func (m *Matcher) Matches(text string) (bool, []string) {
	if text == "" || len(m.patterns) == 0 {
		return false, nil
	}

	var matched []string
	for i, p := range m.patterns {
		if p.MatchString(text) {
			matched = append(matched, m.keywords[i])
		}
	}
	return len(matched) > 0, matched
}

// FilterArticles partitions articles into (matched, unmatched) by evaluating
// each article's title, description, and content together.
func (m *Matcher) FilterArticles(articles []model.Article) (matched, unmatched []model.Article) {
	for _, a := range articles {
		if ok, _ := m.Matches(ArticleText(a)); ok {
			matched = append(matched, a)
		} else {
			unmatched = append(unmatched, a)
		}
	}
	return matched, unmatched
}

// ArticleText returns the text blob an article is matched against.
func ArticleText(a model.Article) string {
	return a.Title + " " + a.Description + " " + a.Content
}
