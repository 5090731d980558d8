package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"briefly/internal/model"
	"briefly/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSource inserts a new source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, url, description, enabled, fetch_error_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		src.Name, src.URL, src.Description, boolToInt(src.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	src.ID = id
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	src.UpdatedAt = src.CreatedAt
	return nil
}

const sourceColumns = `id, name, url, description, enabled, last_fetched_at, fetch_error_count, created_at, updated_at`

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id,
	)
	return scanSource(row)
}

// ListSources returns all sources.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
}

// ListEnabledSources returns the sources eligible for fetching.
func (s *SQLite) ListEnabledSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled = 1 ORDER BY id`)
}

func (s *SQLite) querySources(ctx context.Context, query string, args ...any) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateSource persists changes to an existing source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	var lastFetched *string
	if src.LastFetchedAt != nil {
		v := src.LastFetchedAt.UTC().Format(timeLayout)
		lastFetched = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, url = ?, description = ?, enabled = ?,
		        last_fetched_at = ?, fetch_error_count = ?, updated_at = ?
		 WHERE id = ?`,
		src.Name, src.URL, src.Description, boolToInt(src.Enabled),
		lastFetched, src.FetchErrorCount, now, src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// SetSourceEnabled toggles a source's enabled flag.
func (s *SQLite) SetSourceEnabled(ctx context.Context, id int64, enabled bool) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), now, id,
	)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	return nil
}

// DeleteSource removes a source and its articles.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return tx.Commit()
}

// RecordFetchSuccess stamps last_fetched_at and resets fetch_error_count.
func (s *SQLite) RecordFetchSuccess(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = ?, fetch_error_count = 0, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("record fetch success: %w", err)
	}
	return nil
}

// RecordFetchFailure increments fetch_error_count by one.
func (s *SQLite) RecordFetchFailure(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET fetch_error_count = fetch_error_count + 1, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("record fetch failure: %w", err)
	}
	return nil
}

// SaveArticles inserts the entries that are new for the source and returns
// how many rows were actually written. The existence check is the fast path;
// ON CONFLICT DO NOTHING against the unique (source_id, guid) index is the
// backstop when two fetches of one source race.
func (s *SQLite) SaveArticles(ctx context.Context, sourceID int64, entries []model.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	saved := 0
	for _, e := range entries {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM articles WHERE source_id = ? AND guid = ?`,
			sourceID, e.GUID,
		).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("check article exists: %w", err)
		}
		if count > 0 {
			continue
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO articles (source_id, guid, title, link, description, content, author,
			        published_at, is_filtered, has_summary, fetched_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
			 ON CONFLICT(source_id, guid) DO NOTHING`,
			sourceID, e.GUID, e.Title, e.Link, e.Description, e.Content, e.Author,
			e.PublishedAt.UTC().Format(timeLayout), now, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert article: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit articles: %w", err)
	}
	return saved, nil
}

const articleColumns = `id, source_id, guid, title, link, description, content, author, published_at,
	is_filtered, is_ai_filtered, has_summary, summary, is_read, is_favorite, fetched_at, created_at, updated_at`

// GetArticle returns a single article by its ID.
func (s *SQLite) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id,
	)
	return scanArticle(row)
}

// ListArticles returns a page of articles, newest first.
func (s *SQLite) ListArticles(ctx context.Context, limit, offset int) ([]model.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY published_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

// ListUnfiltered returns articles not yet marked filtered, optionally
// restricted to the given IDs.
func (s *SQLite) ListUnfiltered(ctx context.Context, ids []int64) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE is_filtered = 0`
	var args []any
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY published_at DESC`
	return s.queryArticles(ctx, query, args...)
}

// ListSummarizable returns up to limit unfiltered articles that still need a
// summary and have non-empty content.
func (s *SQLite) ListSummarizable(ctx context.Context, limit int) ([]model.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE has_summary = 0 AND is_filtered = 0 AND content <> ''
		 ORDER BY published_at DESC LIMIT ?`, limit,
	)
}

// ListFavorites returns all favorited articles, newest first.
func (s *SQLite) ListFavorites(ctx context.Context) ([]model.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE is_favorite = 1 ORDER BY published_at DESC`)
}

// ListFiltered returns all keyword-filtered articles, newest first.
func (s *SQLite) ListFiltered(ctx context.Context) ([]model.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE is_filtered = 1 ORDER BY published_at DESC`)
}

// ListAIFiltered returns all AI-filtered articles, newest first.
func (s *SQLite) ListAIFiltered(ctx context.Context) ([]model.Article, error) {
	return s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE is_ai_filtered = 1 ORDER BY published_at DESC`)
}

// CountArticlesBySource returns the number of stored articles for a source.
func (s *SQLite) CountArticlesBySource(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE source_id = ?`, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// SetArticleRead toggles an article's read flag.
func (s *SQLite) SetArticleRead(ctx context.Context, id int64, read bool) error {
	return s.setArticleFlag(ctx, id, "is_read", read)
}

// SetArticleFavorite toggles an article's favorite flag.
func (s *SQLite) SetArticleFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.setArticleFlag(ctx, id, "is_favorite", favorite)
}

func (s *SQLite) setArticleFlag(ctx context.Context, id int64, column string, v bool) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		boolToInt(v), now, id,
	)
	if err != nil {
		return fmt.Errorf("set article %s: %w", column, err)
	}
	return nil
}

// DeleteArticle removes an article by its ID.
func (s *SQLite) DeleteArticle(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return nil
}

// ApplyFilterResults commits one filtering pass: every article in articleIDs
// is marked filtered and every keyword in matchCounts has its counter bumped
// by the given amount, atomically.
func (s *SQLite) ApplyFilterResults(ctx context.Context, articleIDs []int64, matchCounts map[string]int) error {
	if len(articleIDs) == 0 && len(matchCounts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, id := range articleIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET is_filtered = 1, updated_at = ? WHERE id = ?`, now, id,
		); err != nil {
			return fmt.Errorf("mark filtered: %w", err)
		}
	}
	for kw, n := range matchCounts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE keywords SET match_count = match_count + ?, updated_at = ?
			 WHERE keyword = ? AND enabled = 1`, n, now, kw,
		); err != nil {
			return fmt.Errorf("bump match count: %w", err)
		}
	}
	return tx.Commit()
}

// ApplyAIFilterResults commits one AI filter pass: every previous AI-filter
// mark is cleared, then each candidate absent from keepIDs is marked filtered.
// Returns how many articles were marked, all in one transaction.
func (s *SQLite) ApplyAIFilterResults(ctx context.Context, candidateIDs, keepIDs []int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`UPDATE articles SET is_ai_filtered = 0, updated_at = ? WHERE is_ai_filtered = 1`, now,
	); err != nil {
		return 0, fmt.Errorf("clear ai filter marks: %w", err)
	}

	keep := make(map[int64]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}

	marked := 0
	for _, id := range candidateIDs {
		if keep[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET is_ai_filtered = 1, updated_at = ? WHERE id = ?`, now, id,
		); err != nil {
			return 0, fmt.Errorf("mark ai filtered: %w", err)
		}
		marked++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ai filter results: %w", err)
	}
	return marked, nil
}

// SaveSummaries persists summaries for the given articles in one transaction.
func (s *SQLite) SaveSummaries(ctx context.Context, summaries map[int64]string) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for id, summary := range summaries {
		if _, err := tx.ExecContext(ctx,
			`UPDATE articles SET summary = ?, has_summary = 1, updated_at = ? WHERE id = ?`,
			summary, now, id,
		); err != nil {
			return fmt.Errorf("save summary: %w", err)
		}
	}
	return tx.Commit()
}

// CreateKeyword inserts a new keyword rule. The keyword text is normalized to
// trimmed lower case and must be unique.
func (s *SQLite) CreateKeyword(ctx context.Context, kw *model.Keyword) error {
	kw.Keyword = strings.ToLower(strings.TrimSpace(kw.Keyword))
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (keyword, enabled, match_count, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)`,
		kw.Keyword, boolToInt(kw.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	kw.ID = id
	kw.CreatedAt, _ = time.Parse(timeLayout, now)
	kw.UpdatedAt = kw.CreatedAt
	return nil
}

// ListKeywords returns all keyword rules.
func (s *SQLite) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	return s.queryKeywords(ctx,
		`SELECT id, keyword, enabled, match_count, created_at, updated_at FROM keywords ORDER BY id`)
}

// ListEnabledKeywords returns the keyword rules active for filtering.
func (s *SQLite) ListEnabledKeywords(ctx context.Context) ([]model.Keyword, error) {
	return s.queryKeywords(ctx,
		`SELECT id, keyword, enabled, match_count, created_at, updated_at
		 FROM keywords WHERE enabled = 1 ORDER BY id`)
}

func (s *SQLite) queryKeywords(ctx context.Context, query string, args ...any) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keywords []model.Keyword
	for rows.Next() {
		var kw model.Keyword
		var enabled int
		var created, updated string
		if err := rows.Scan(&kw.ID, &kw.Keyword, &enabled, &kw.MatchCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		kw.Enabled = enabled == 1
		kw.CreatedAt, _ = time.Parse(timeLayout, created)
		kw.UpdatedAt, _ = time.Parse(timeLayout, updated)
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// SetKeywordEnabled toggles a keyword rule's enabled flag.
func (s *SQLite) SetKeywordEnabled(ctx context.Context, id int64, enabled bool) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), now, id,
	)
	if err != nil {
		return fmt.Errorf("set keyword enabled: %w", err)
	}
	return nil
}

// DeleteKeyword removes a keyword rule by its ID.
func (s *SQLite) DeleteKeyword(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM keywords WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	return nil
}

// GetWebhookConfig returns the singleton webhook configuration, creating it
// with defaults on first access.
func (s *SQLite) GetWebhookConfig(ctx context.Context) (*model.WebhookConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, enabled, url, platform, name, description,
		        schedule_enabled, schedule_frequency, schedule_time,
		        schedule_day_of_week, schedule_day_of_month,
		        push_favorites, push_filtered, created_at, updated_at
		 FROM webhook_config WHERE id = 1`)

	cfg, err := scanWebhookConfig(row)
	if err == nil {
		return cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get webhook config: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_config (id, created_at, updated_at) VALUES (1, ?, ?)`, now, now,
	); err != nil {
		return nil, fmt.Errorf("create webhook config: %w", err)
	}
	return s.GetWebhookConfig(ctx)
}

// UpdateWebhookConfig persists changes to the singleton webhook configuration.
func (s *SQLite) UpdateWebhookConfig(ctx context.Context, cfg *model.WebhookConfig) error {
	if !cfg.Platform.Valid() {
		return fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_config SET enabled = ?, url = ?, platform = ?, name = ?, description = ?,
		        schedule_enabled = ?, schedule_frequency = ?, schedule_time = ?,
		        schedule_day_of_week = ?, schedule_day_of_month = ?,
		        push_favorites = ?, push_filtered = ?, updated_at = ?
		 WHERE id = 1`,
		boolToInt(cfg.Enabled), cfg.URL, string(cfg.Platform), cfg.Name, cfg.Description,
		boolToInt(cfg.ScheduleEnabled), string(cfg.ScheduleFrequency), cfg.ScheduleTime,
		cfg.ScheduleDayOfWeek, cfg.ScheduleDayOfMonth,
		boolToInt(cfg.PushFavorites), boolToInt(cfg.PushFiltered), now,
	)
	if err != nil {
		return fmt.Errorf("update webhook config: %w", err)
	}
	return nil
}

// GetAIFilterConfig returns the singleton AI filter configuration, creating
// it with defaults on first access.
func (s *SQLite) GetAIFilterConfig(ctx context.Context) (*model.AIFilterConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, enabled, filter_prompt, auto_apply, last_run FROM ai_filter_config WHERE id = 1`)

	var cfg model.AIFilterConfig
	var enabled, autoApply int
	var lastRun sql.NullString
	err := row.Scan(&cfg.ID, &enabled, &cfg.FilterPrompt, &autoApply, &lastRun)
	if err == nil {
		cfg.Enabled = enabled == 1
		cfg.AutoApply = autoApply == 1
		if lastRun.Valid {
			t, _ := time.Parse(timeLayout, lastRun.String)
			cfg.LastRun = &t
		}
		return &cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get ai filter config: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO ai_filter_config (id) VALUES (1)`); err != nil {
		return nil, fmt.Errorf("create ai filter config: %w", err)
	}
	return s.GetAIFilterConfig(ctx)
}

// UpdateAIFilterConfig persists changes to the singleton AI filter
// configuration.
func (s *SQLite) UpdateAIFilterConfig(ctx context.Context, cfg *model.AIFilterConfig) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_filter_config SET enabled = ?, filter_prompt = ?, auto_apply = ? WHERE id = 1`,
		boolToInt(cfg.Enabled), cfg.FilterPrompt, boolToInt(cfg.AutoApply),
	)
	if err != nil {
		return fmt.Errorf("update ai filter config: %w", err)
	}
	return nil
}

// RecordAIFilterRun stamps the AI filter's last-run time.
func (s *SQLite) RecordAIFilterRun(ctx context.Context) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_filter_config SET last_run = ? WHERE id = 1`, now,
	)
	if err != nil {
		return fmt.Errorf("record ai filter run: %w", err)
	}
	return nil
}

// GetAISettings returns the singleton AI settings row, creating it with
// defaults on first access.
func (s *SQLite) GetAISettings(ctx context.Context) (*model.AISettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, api_key, base_url, model, max_summary_length, enabled
		 FROM ai_settings WHERE id = 1`)

	var a model.AISettings
	var enabled int
	err := row.Scan(&a.ID, &a.APIKey, &a.BaseURL, &a.Model, &a.MaxSummaryLength, &enabled)
	if err == nil {
		a.Enabled = enabled == 1
		return &a, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get ai settings: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO ai_settings (id) VALUES (1)`); err != nil {
		return nil, fmt.Errorf("create ai settings: %w", err)
	}
	return s.GetAISettings(ctx)
}

// UpdateAISettings persists changes to the singleton AI settings row.
func (s *SQLite) UpdateAISettings(ctx context.Context, a *model.AISettings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_settings SET api_key = ?, base_url = ?, model = ?, max_summary_length = ?, enabled = ?
		 WHERE id = 1`,
		a.APIKey, a.BaseURL, a.Model, a.MaxSummaryLength, boolToInt(a.Enabled),
	)
	if err != nil {
		return fmt.Errorf("update ai settings: %w", err)
	}
	return nil
}

func (s *SQLite) queryArticles(ctx context.Context, query string, args ...any) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var enabled int
	var lastFetched sql.NullString
	var created, updated string
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Description, &enabled,
		&lastFetched, &src.FetchErrorCount, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Enabled = enabled == 1
	if lastFetched.Valid {
		t, _ := time.Parse(timeLayout, lastFetched.String)
		src.LastFetchedAt = &t
	}
	src.CreatedAt, _ = time.Parse(timeLayout, created)
	src.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &src, nil
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var isFiltered, isAIFiltered, hasSummary, isRead, isFavorite int
	var published, fetched, created, updated string
	err := row.Scan(&a.ID, &a.SourceID, &a.GUID, &a.Title, &a.Link, &a.Description,
		&a.Content, &a.Author, &published, &isFiltered, &isAIFiltered, &hasSummary,
		&a.Summary, &isRead, &isFavorite, &fetched, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.IsFiltered = isFiltered == 1
	a.IsAIFiltered = isAIFiltered == 1
	a.HasSummary = hasSummary == 1
	a.IsRead = isRead == 1
	a.IsFavorite = isFavorite == 1
	a.PublishedAt, _ = time.Parse(timeLayout, published)
	a.FetchedAt, _ = time.Parse(timeLayout, fetched)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	a.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &a, nil
}

func scanWebhookConfig(row scannable) (*model.WebhookConfig, error) {
	var cfg model.WebhookConfig
	var enabled, schedEnabled, pushFav, pushFilt int
	var platform, frequency, created, updated string
	err := row.Scan(&cfg.ID, &enabled, &cfg.URL, &platform, &cfg.Name, &cfg.Description,
		&schedEnabled, &frequency, &cfg.ScheduleTime,
		&cfg.ScheduleDayOfWeek, &cfg.ScheduleDayOfMonth,
		&pushFav, &pushFilt, &created, &updated)
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled == 1
	cfg.Platform = model.Platform(platform)
	cfg.ScheduleEnabled = schedEnabled == 1
	cfg.ScheduleFrequency = model.Frequency(frequency)
	cfg.PushFavorites = pushFav == 1
	cfg.PushFiltered = pushFilt == 1
	cfg.CreatedAt, _ = time.Parse(timeLayout, created)
	cfg.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &cfg, nil
}
