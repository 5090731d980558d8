// Package filter applies enabled keyword rules to stored articles.
package filter

import (
	"context"
	"fmt"
	"log/slog"

	"briefly/internal/keyword"
	"briefly/internal/storage"
)

// Engine runs one filtering pass over unfiltered articles.
type Engine struct {
	store storage.Storage
	log   *slog.Logger
}

// NewEngine creates a filter Engine.
func NewEngine(store storage.Storage, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Apply scans currently-unfiltered articles, optionally restricted to ids,
// marks the ones matching any enabled keyword, and bumps each matched
// keyword's counter once per matching article. An article matching k keywords
// bumps k counters by one each. An empty enabled ruleset filters nothing.
// All state changes for the pass commit in one transaction.
func (e *Engine) Apply(ctx context.Context, ids []int64) ([]int64, error) {
	keywords, err := e.store.ListEnabledKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	if len(keywords) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		texts = append(texts, kw.Keyword)
	}
	matcher := keyword.NewMatcher(texts)
	if matcher.Len() == 0 {
		return nil, nil
	}

	articles, err := e.store.ListUnfiltered(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list unfiltered: %w", err)
	}

	matched, _ := matcher.FilterArticles(articles)
	if len(matched) == 0 {
		return nil, nil
	}

	matchedIDs := make([]int64, 0, len(matched))
	counts := make(map[string]int)
	for _, a := range matched {
		matchedIDs = append(matchedIDs, a.ID)
		_, hits := matcher.Matches(keyword.ArticleText(a))
		for _, kw := range hits {
			counts[kw]++
		}
	}

	if err := e.store.ApplyFilterResults(ctx, matchedIDs, counts); err != nil {
		return nil, fmt.Errorf("apply filter results: %w", err)
	}

	e.log.Info("filter pass complete", "matched", len(matchedIDs), "keywords", len(counts))
	return matchedIDs, nil
}

// TestMatch evaluates a single keyword against a text blob without touching
// stored state.
func TestMatch(kw, text string) (bool, []string) {
	return keyword.NewMatcher([]string{kw}).Matches(text)
}
