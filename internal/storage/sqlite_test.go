package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"briefly/internal/model"
)

func newTestStorage(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateSource(t *testing.T, s *SQLite, name, url string) *model.Source {
	t.Helper()
	src := &model.Source{Name: name, URL: url, Enabled: true}
	if err := s.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return src
}

func testEntries() []model.Entry {
	published := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	return []model.Entry{
		{GUID: "a-1", Title: "First", Link: "https://example.com/1", Content: "first content", PublishedAt: published},
		{GUID: "a-2", Title: "Second", Link: "https://example.com/2", Content: "second content", PublishedAt: published.Add(time.Hour)},
		{GUID: "a-3", Title: "Third", Link: "https://example.com/3", PublishedAt: published.Add(2 * time.Hour)},
	}
}

func TestSaveArticlesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")

	saved, err := s.SaveArticles(ctx, src.ID, testEntries())
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if diff := cmp.Diff(3, saved); diff != "" {
		t.Errorf("first save count (-want +got):\n%s", diff)
	}

	saved, err = s.SaveArticles(ctx, src.ID, testEntries())
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if diff := cmp.Diff(0, saved); diff != "" {
		t.Errorf("second save count (-want +got):\n%s", diff)
	}

	count, err := s.CountArticlesBySource(ctx, src.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if diff := cmp.Diff(3, count); diff != "" {
		t.Errorf("stored count (-want +got):\n%s", diff)
	}
}

func TestSaveArticlesDuplicateGUIDWithinBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")

	published := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	entries := []model.Entry{
		{GUID: "dup", Title: "One", Link: "https://example.com/1", PublishedAt: published},
		{GUID: "dup", Title: "Two", Link: "https://example.com/2", PublishedAt: published},
	}

	saved, err := s.SaveArticles(ctx, src.ID, entries)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if diff := cmp.Diff(1, saved); diff != "" {
		t.Errorf("save count (-want +got):\n%s", diff)
	}
}

func TestSaveArticlesSameGUIDAcrossSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	srcA := mustCreateSource(t, s, "a", "https://a.example.com/rss")
	srcB := mustCreateSource(t, s, "b", "https://b.example.com/rss")

	published := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	entries := []model.Entry{{GUID: "shared", Title: "T", Link: "https://example.com/t", PublishedAt: published}}

	for _, src := range []*model.Source{srcA, srcB} {
		saved, err := s.SaveArticles(ctx, src.ID, entries)
		if err != nil {
			t.Fatalf("save for source %d: %v", src.ID, err)
		}
		if diff := cmp.Diff(1, saved); diff != "" {
			t.Errorf("save count for source %d (-want +got):\n%s", src.ID, diff)
		}
	}
}

func TestRecordFetchOutcomes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	srcA := mustCreateSource(t, s, "a", "https://a.example.com/rss")
	srcB := mustCreateSource(t, s, "b", "https://b.example.com/rss")

	if err := s.RecordFetchFailure(ctx, srcA.ID); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := s.RecordFetchFailure(ctx, srcA.ID); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	a, err := s.GetSource(ctx, srcA.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if diff := cmp.Diff(2, a.FetchErrorCount); diff != "" {
		t.Errorf("failure count (-want +got):\n%s", diff)
	}

	// Failures on one source never touch another.
	b, err := s.GetSource(ctx, srcB.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if diff := cmp.Diff(0, b.FetchErrorCount); diff != "" {
		t.Errorf("sibling failure count (-want +got):\n%s", diff)
	}

	if err := s.RecordFetchSuccess(ctx, srcA.ID); err != nil {
		t.Fatalf("record success: %v", err)
	}
	a, err = s.GetSource(ctx, srcA.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if diff := cmp.Diff(0, a.FetchErrorCount); diff != "" {
		t.Errorf("count after success (-want +got):\n%s", diff)
	}
	if a.LastFetchedAt == nil {
		t.Error("expected last_fetched_at to be set after success")
	}
}

func TestApplyFilterResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	active := &model.Keyword{Keyword: "docker", Enabled: true}
	if err := s.CreateKeyword(ctx, active); err != nil {
		t.Fatalf("create keyword: %v", err)
	}
	disabled := &model.Keyword{Keyword: "legacy", Enabled: false}
	if err := s.CreateKeyword(ctx, disabled); err != nil {
		t.Fatalf("create keyword: %v", err)
	}

	articles, err := s.ListUnfiltered(ctx, nil)
	if err != nil {
		t.Fatalf("list unfiltered: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 unfiltered articles, got %d", len(articles))
	}

	err = s.ApplyFilterResults(ctx, []int64{articles[0].ID}, map[string]int{"docker": 2, "legacy": 1})
	if err != nil {
		t.Fatalf("apply filter results: %v", err)
	}

	remaining, err := s.ListUnfiltered(ctx, nil)
	if err != nil {
		t.Fatalf("list unfiltered: %v", err)
	}
	if diff := cmp.Diff(2, len(remaining)); diff != "" {
		t.Errorf("remaining unfiltered (-want +got):\n%s", diff)
	}

	filtered, err := s.ListFiltered(ctx)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if diff := cmp.Diff(1, len(filtered)); diff != "" {
		t.Errorf("filtered count (-want +got):\n%s", diff)
	}

	keywords, err := s.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("list keywords: %v", err)
	}
	counts := map[string]int64{}
	for _, kw := range keywords {
		counts[kw.Keyword] = kw.MatchCount
	}
	// Disabled rules keep their counter even when named in the pass.
	want := map[string]int64{"docker": 2, "legacy": 0}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("match counts (-want +got):\n%s", diff)
	}
}

func TestListUnfilteredRestrictedToIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	all, err := s.ListUnfiltered(ctx, nil)
	if err != nil {
		t.Fatalf("list unfiltered: %v", err)
	}

	subset, err := s.ListUnfiltered(ctx, []int64{all[0].ID})
	if err != nil {
		t.Fatalf("list unfiltered subset: %v", err)
	}
	if diff := cmp.Diff(1, len(subset)); diff != "" {
		t.Fatalf("subset size (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(all[0].ID, subset[0].ID); diff != "" {
		t.Errorf("subset id (-want +got):\n%s", diff)
	}
}

func TestListArticlesPaged(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	page, err := s.ListArticles(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if diff := cmp.Diff([]string{"a-3", "a-2"}, articleGUIDs(page)); diff != "" {
		t.Errorf("first page (-want +got):\n%s", diff)
	}

	page, err = s.ListArticles(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if diff := cmp.Diff([]string{"a-1"}, articleGUIDs(page)); diff != "" {
		t.Errorf("second page (-want +got):\n%s", diff)
	}
}

func TestListSummarizable(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	// a-3 has no content and must never show up.
	got, err := s.ListSummarizable(ctx, 10)
	if err != nil {
		t.Fatalf("list summarizable: %v", err)
	}
	guids := articleGUIDs(got)
	if diff := cmp.Diff([]string{"a-2", "a-1"}, guids); diff != "" {
		t.Errorf("summarizable guids (-want +got):\n%s", diff)
	}

	if err := s.SaveSummaries(ctx, map[int64]string{got[0].ID: "摘要"}); err != nil {
		t.Fatalf("save summaries: %v", err)
	}

	got, err = s.ListSummarizable(ctx, 10)
	if err != nil {
		t.Fatalf("list summarizable: %v", err)
	}
	if diff := cmp.Diff([]string{"a-1"}, articleGUIDs(got)); diff != "" {
		t.Errorf("summarizable after summary (-want +got):\n%s", diff)
	}

	got, err = s.ListSummarizable(ctx, 1)
	if err != nil {
		t.Fatalf("list summarizable: %v", err)
	}
	if diff := cmp.Diff(1, len(got)); diff != "" {
		t.Errorf("limited size (-want +got):\n%s", diff)
	}
}

func TestSaveSummariesSetsFlagAndText(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	all, err := s.ListUnfiltered(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	id := all[0].ID
	if err := s.SaveSummaries(ctx, map[int64]string{id: "一句话摘要"}); err != nil {
		t.Fatalf("save summaries: %v", err)
	}

	a, err := s.GetArticle(ctx, id)
	if err != nil {
		t.Fatalf("get article: %v", err)
	}
	if !a.HasSummary {
		t.Error("expected has_summary to be set")
	}
	if diff := cmp.Diff("一句话摘要", a.Summary); diff != "" {
		t.Errorf("summary text (-want +got):\n%s", diff)
	}
}

func TestArticleFlags(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	all, err := s.ListUnfiltered(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	id := all[0].ID

	if err := s.SetArticleFavorite(ctx, id, true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}
	if err := s.SetArticleRead(ctx, id, true); err != nil {
		t.Fatalf("set read: %v", err)
	}

	favorites, err := s.ListFavorites(ctx)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if diff := cmp.Diff(1, len(favorites)); diff != "" {
		t.Fatalf("favorites count (-want +got):\n%s", diff)
	}
	if !favorites[0].IsRead {
		t.Error("expected article to be marked read")
	}

	if err := s.SetArticleFavorite(ctx, id, false); err != nil {
		t.Fatalf("unset favorite: %v", err)
	}
	favorites, err = s.ListFavorites(ctx)
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if diff := cmp.Diff(0, len(favorites)); diff != "" {
		t.Errorf("favorites after unset (-want +got):\n%s", diff)
	}
}

func TestKeywordNormalization(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	kw := &model.Keyword{Keyword: "  Docker ", Enabled: true}
	if err := s.CreateKeyword(ctx, kw); err != nil {
		t.Fatalf("create keyword: %v", err)
	}
	if diff := cmp.Diff("docker", kw.Keyword); diff != "" {
		t.Errorf("normalized keyword (-want +got):\n%s", diff)
	}

	dup := &model.Keyword{Keyword: "DOCKER", Enabled: true}
	if err := s.CreateKeyword(ctx, dup); err == nil {
		t.Error("expected duplicate keyword to be rejected")
	}
}

func TestKeywordEnableDisable(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	kw := &model.Keyword{Keyword: "rust", Enabled: true}
	if err := s.CreateKeyword(ctx, kw); err != nil {
		t.Fatalf("create keyword: %v", err)
	}

	enabled, err := s.ListEnabledKeywords(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if diff := cmp.Diff(1, len(enabled)); diff != "" {
		t.Fatalf("enabled count (-want +got):\n%s", diff)
	}

	if err := s.SetKeywordEnabled(ctx, kw.ID, false); err != nil {
		t.Fatalf("disable keyword: %v", err)
	}
	enabled, err = s.ListEnabledKeywords(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if diff := cmp.Diff(0, len(enabled)); diff != "" {
		t.Errorf("enabled count after disable (-want +got):\n%s", diff)
	}
}

func TestSourceEnableAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")

	if err := s.SetSourceEnabled(ctx, src.ID, false); err != nil {
		t.Fatalf("disable source: %v", err)
	}
	enabled, err := s.ListEnabledSources(ctx)
	if err != nil {
		t.Fatalf("list enabled sources: %v", err)
	}
	if diff := cmp.Diff(0, len(enabled)); diff != "" {
		t.Errorf("enabled sources (-want +got):\n%s", diff)
	}

	if err := s.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("delete source: %v", err)
	}
	all, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if diff := cmp.Diff(0, len(all)); diff != "" {
		t.Errorf("sources after delete (-want +got):\n%s", diff)
	}
}

func TestWebhookConfigLazyDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	cfg, err := s.GetWebhookConfig(ctx)
	if err != nil {
		t.Fatalf("get webhook config: %v", err)
	}
	if diff := cmp.Diff(model.PlatformGeneric, cfg.Platform); diff != "" {
		t.Errorf("default platform (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("09:00", cfg.ScheduleTime); diff != "" {
		t.Errorf("default schedule time (-want +got):\n%s", diff)
	}
	if !cfg.PushFavorites {
		t.Error("expected push_favorites default to be true")
	}
	if cfg.Enabled || cfg.ScheduleEnabled || cfg.PushFiltered {
		t.Error("expected enabled flags to default to false")
	}

	cfg.Enabled = true
	cfg.URL = "https://hooks.example.com/x"
	cfg.Platform = model.PlatformFeishu
	cfg.ScheduleEnabled = true
	cfg.ScheduleFrequency = model.FreqWeekly
	cfg.ScheduleTime = "18:30"
	cfg.ScheduleDayOfWeek = 5
	if err := s.UpdateWebhookConfig(ctx, cfg); err != nil {
		t.Fatalf("update webhook config: %v", err)
	}

	got, err := s.GetWebhookConfig(ctx)
	if err != nil {
		t.Fatalf("get webhook config: %v", err)
	}
	ignore := cmp.Comparer(func(_, _ time.Time) bool { return true })
	if diff := cmp.Diff(cfg, got, ignore); diff != "" {
		t.Errorf("updated config (-want +got):\n%s", diff)
	}
}

func TestAISettingsLazyDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	settings, err := s.GetAISettings(ctx)
	if err != nil {
		t.Fatalf("get ai settings: %v", err)
	}
	want := &model.AISettings{ID: 1, Model: "glm-4", MaxSummaryLength: 100, Enabled: true}
	if diff := cmp.Diff(want, settings); diff != "" {
		t.Errorf("default settings (-want +got):\n%s", diff)
	}

	settings.APIKey = "sk-test"
	settings.MaxSummaryLength = 80
	if err := s.UpdateAISettings(ctx, settings); err != nil {
		t.Fatalf("update ai settings: %v", err)
	}

	got, err := s.GetAISettings(ctx)
	if err != nil {
		t.Fatalf("get ai settings: %v", err)
	}
	if diff := cmp.Diff(settings, got); diff != "" {
		t.Errorf("updated settings (-want +got):\n%s", diff)
	}
}

func TestUpdateWebhookConfigRejectsUnknownPlatform(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	cfg, err := s.GetWebhookConfig(ctx)
	if err != nil {
		t.Fatalf("get webhook config: %v", err)
	}
	cfg.Platform = "slack"

	if err := s.UpdateWebhookConfig(ctx, cfg); err == nil {
		t.Fatal("expected an error for an unsupported platform")
	}

	got, err := s.GetWebhookConfig(ctx)
	if err != nil {
		t.Fatalf("get webhook config: %v", err)
	}
	if diff := cmp.Diff(model.PlatformGeneric, got.Platform); diff != "" {
		t.Errorf("stored platform (-want +got):\n%s", diff)
	}
}

func TestAIFilterConfigLazyDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	cfg, err := s.GetAIFilterConfig(ctx)
	if err != nil {
		t.Fatalf("get ai filter config: %v", err)
	}
	want := &model.AIFilterConfig{ID: 1, Enabled: false, FilterPrompt: "", AutoApply: true}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("default config (-want +got):\n%s", diff)
	}

	cfg.Enabled = true
	cfg.FilterPrompt = "只保留技术文章"
	cfg.AutoApply = false
	if err := s.UpdateAIFilterConfig(ctx, cfg); err != nil {
		t.Fatalf("update ai filter config: %v", err)
	}

	got, err := s.GetAIFilterConfig(ctx)
	if err != nil {
		t.Fatalf("get ai filter config: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("updated config (-want +got):\n%s", diff)
	}

	if err := s.RecordAIFilterRun(ctx); err != nil {
		t.Fatalf("record ai filter run: %v", err)
	}
	got, err = s.GetAIFilterConfig(ctx)
	if err != nil {
		t.Fatalf("get ai filter config: %v", err)
	}
	if got.LastRun == nil {
		t.Error("expected last run to be recorded")
	}
}

func TestApplyAIFilterResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	src := mustCreateSource(t, s, "feed", "https://example.com/rss")
	if _, err := s.SaveArticles(ctx, src.ID, testEntries()); err != nil {
		t.Fatalf("save articles: %v", err)
	}

	articles, err := s.ListArticles(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("expected 3 articles, got %d", len(articles))
	}
	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}

	// First pass keeps only the first article.
	marked, err := s.ApplyAIFilterResults(ctx, ids, ids[:1])
	if err != nil {
		t.Fatalf("apply ai filter results: %v", err)
	}
	if diff := cmp.Diff(2, marked); diff != "" {
		t.Errorf("marked count (-want +got):\n%s", diff)
	}

	filtered, err := s.ListAIFiltered(ctx)
	if err != nil {
		t.Fatalf("list ai filtered: %v", err)
	}
	if diff := cmp.Diff(articleGUIDs(articles[1:]), articleGUIDs(filtered)); diff != "" {
		t.Errorf("ai filtered guids (-want +got):\n%s", diff)
	}

	// A later pass with a different keep set replaces the marks wholesale.
	marked, err = s.ApplyAIFilterResults(ctx, ids, ids[1:])
	if err != nil {
		t.Fatalf("apply ai filter results: %v", err)
	}
	if diff := cmp.Diff(1, marked); diff != "" {
		t.Errorf("marked count (-want +got):\n%s", diff)
	}

	filtered, err = s.ListAIFiltered(ctx)
	if err != nil {
		t.Fatalf("list ai filtered: %v", err)
	}
	if diff := cmp.Diff(articleGUIDs(articles[:1]), articleGUIDs(filtered)); diff != "" {
		t.Errorf("ai filtered guids (-want +got):\n%s", diff)
	}
}

func articleGUIDs(articles []model.Article) []string {
	guids := make([]string, 0, len(articles))
	for _, a := range articles {
		guids = append(guids, a.GUID)
	}
	return guids
}
