// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"briefly/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListEnabledSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	SetSourceEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteSource(ctx context.Context, id int64) error

	// RecordFetchSuccess stamps the last-fetch time and resets the
	// consecutive failure counter; RecordFetchFailure increments it by one.
	RecordFetchSuccess(ctx context.Context, id int64) error
	RecordFetchFailure(ctx context.Context, id int64) error

	// SaveArticles persists the entries that are new for the source,
	// keyed by (source id, guid), and returns how many were inserted.
	// Entries whose natural key already exists are skipped silently.
	SaveArticles(ctx context.Context, sourceID int64, entries []model.Entry) (int, error)
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
	ListArticles(ctx context.Context, limit, offset int) ([]model.Article, error)
	ListUnfiltered(ctx context.Context, ids []int64) ([]model.Article, error)
	ListSummarizable(ctx context.Context, limit int) ([]model.Article, error)
	ListFavorites(ctx context.Context) ([]model.Article, error)
	ListFiltered(ctx context.Context) ([]model.Article, error)
	ListAIFiltered(ctx context.Context) ([]model.Article, error)
	CountArticlesBySource(ctx context.Context, sourceID int64) (int, error)
	SetArticleRead(ctx context.Context, id int64, read bool) error
	SetArticleFavorite(ctx context.Context, id int64, favorite bool) error
	DeleteArticle(ctx context.Context, id int64) error

	// ApplyFilterResults marks the articles filtered and bumps each named
	// keyword's match counter, all in one transaction.
	ApplyFilterResults(ctx context.Context, articleIDs []int64, matchCounts map[string]int) error

	// ApplyAIFilterResults clears every previous AI-filter mark, then marks
	// each candidate absent from keepIDs, all in one transaction. Returns the
	// number of articles marked.
	ApplyAIFilterResults(ctx context.Context, candidateIDs, keepIDs []int64) (int, error)

	// SaveSummaries persists the summaries and sets has_summary, all in one
	// transaction.
	SaveSummaries(ctx context.Context, summaries map[int64]string) error

	CreateKeyword(ctx context.Context, kw *model.Keyword) error
	ListKeywords(ctx context.Context) ([]model.Keyword, error)
	ListEnabledKeywords(ctx context.Context) ([]model.Keyword, error)
	SetKeywordEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteKeyword(ctx context.Context, id int64) error

	// The webhook and AI configuration rows are singletons (id=1), created
	// lazily with defaults on first read.
	GetWebhookConfig(ctx context.Context) (*model.WebhookConfig, error)
	UpdateWebhookConfig(ctx context.Context, cfg *model.WebhookConfig) error
	GetAISettings(ctx context.Context) (*model.AISettings, error)
	UpdateAISettings(ctx context.Context, s *model.AISettings) error
	GetAIFilterConfig(ctx context.Context) (*model.AIFilterConfig, error)
	UpdateAIFilterConfig(ctx context.Context, cfg *model.AIFilterConfig) error

	// RecordAIFilterRun stamps the AI filter config with the current time.
	RecordAIFilterRun(ctx context.Context) error

	Close() error
}
