package summary

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"briefly/internal/config"
	"briefly/internal/model"
	"briefly/internal/storage"
)

const (
	// minContentLength is the shortest article content worth summarizing.
	minContentLength = 50
	// maxPromptContentChars bounds the content handed to the model.
	maxPromptContentChars = 4000
	// summarySlack is how far past the configured length a returned summary
	// may run before it is truncated with an ellipsis.
	summarySlack = 50
	// DefaultConcurrency bounds in-flight completion calls per batch.
	DefaultConcurrency = 5
)

// Summarizer generates and persists article summaries.
type Summarizer struct {
	store storage.Storage
	cfg   *config.Config
	log   *slog.Logger

	// newCompleter builds a client from resolved settings; swapped in tests.
	newCompleter func(apiKey, baseURL, aiModel string) Completer
}

// New creates a Summarizer that resolves its AI settings from storage with
// config fallbacks.
func New(store storage.Storage, cfg *config.Config, log *slog.Logger) *Summarizer {
	return &Summarizer{
		store: store,
		cfg:   cfg,
		log:   log,
		newCompleter: func(apiKey, baseURL, aiModel string) Completer {
			return NewClient(http.DefaultClient, apiKey, baseURL, aiModel)
		},
	}
}

// resolve merges the persisted AI settings with the config fallbacks and
// returns a client, or nil when no API key is available.
func (s *Summarizer) resolve(ctx context.Context) (Completer, *model.AISettings, error) {
	settings, err := s.store.GetAISettings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get ai settings: %w", err)
	}

	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = s.cfg.AIAPIKey
	}
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = s.cfg.AIBaseURL
	}
	aiModel := settings.Model
	if aiModel == "" {
		aiModel = s.cfg.AIModel
	}
	if settings.MaxSummaryLength <= 0 {
		settings.MaxSummaryLength = s.cfg.MaxSummaryLength
	}

	if apiKey == "" {
		return nil, settings, nil
	}
	return s.newCompleter(apiKey, baseURL, aiModel), settings, nil
}

// Client exposes the resolved completion client for other components that
// talk to the same AI endpoint. The client is nil when no API key is set.
func (s *Summarizer) Client(ctx context.Context) (Completer, *model.AISettings, error) {
	return s.resolve(ctx)
}

// Eligible reports whether an article qualifies for summarization.
func Eligible(a model.Article) bool {
	return !a.HasSummary && len([]rune(a.Content)) > minContentLength
}

// SummarizeBatch summarizes the eligible articles with at most maxConcurrent
// in-flight completion calls, persists all successes in one commit after every
// call resolves, and returns the success count. A missing API key makes the
// whole batch a zero-success no-op; individual call failures are logged and
// skipped.
func (s *Summarizer) SummarizeBatch(ctx context.Context, articles []model.Article, maxConcurrent int64) (int, error) {
	var eligible []model.Article
	for _, a := range articles {
		if Eligible(a) {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	client, settings, err := s.resolve(ctx)
	if err != nil {
		return 0, err
	}
	if client == nil {
		s.log.Warn("skipping summarization: AI API key not configured")
		return 0, nil
	}

	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(maxConcurrent)

	var (
		mu        sync.Mutex
		summaries = make(map[int64]string, len(eligible))
		wg        sync.WaitGroup
	)

	for _, a := range eligible {
		wg.Add(1)
		go func(a model.Article) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			text, err := s.summarizeOne(ctx, client, a, settings.MaxSummaryLength)
			if err != nil {
				s.log.Error("summarize article", "article_id", a.ID, "error", err)
				return
			}
			mu.Lock()
			summaries[a.ID] = text
			mu.Unlock()
		}(a)
	}
	wg.Wait()

	if err := s.store.SaveSummaries(ctx, summaries); err != nil {
		return 0, fmt.Errorf("save summaries: %w", err)
	}

	s.log.Info("batch summarization complete", "succeeded", len(summaries), "eligible", len(eligible))
	return len(summaries), nil
}

// SummarizeArticle summarizes a single stored article on demand. Articles
// that already carry a summary return it unchanged; too-short content yields
// an empty summary without an error.
func (s *Summarizer) SummarizeArticle(ctx context.Context, id int64) (string, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get article: %w", err)
	}
	if article.HasSummary {
		return article.Summary, nil
	}
	if len([]rune(article.Content)) <= minContentLength {
		s.log.Warn("content too short to summarize", "article_id", id)
		return "", nil
	}

	client, settings, err := s.resolve(ctx)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", ErrNotConfigured
	}

	text, err := s.summarizeOne(ctx, client, *article, settings.MaxSummaryLength)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveSummaries(ctx, map[int64]string{id: text}); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	return text, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, client Completer, a model.Article, maxLen int) (string, error) {
	text, err := client.Complete(ctx, BuildPrompt(a.Title, a.Content, maxLen))
	if err != nil {
		return "", err
	}
	return truncateSummary(strings.TrimSpace(text), maxLen), nil
}

// ValidateKey checks that the configured endpoint accepts the API key.
func (s *Summarizer) ValidateKey(ctx context.Context) (bool, string) {
	client, _, err := s.resolve(ctx)
	if err != nil {
		return false, err.Error()
	}
	if client == nil {
		return false, "API key not configured"
	}

	if _, err := client.Complete(ctx, "测试"); err != nil {
		switch {
		case err == ErrRateLimited:
			return false, "rate limited"
		case err == ErrTimeout:
			return false, "request timed out"
		default:
			return false, err.Error()
		}
	}
	return true, "API key is valid"
}

// TestSummary generates a canned summary to verify the endpoint end to end.
func (s *Summarizer) TestSummary(ctx context.Context) (bool, string) {
	client, settings, err := s.resolve(ctx)
	if err != nil {
		return false, err.Error()
	}
	if client == nil {
		return false, "API key not configured"
	}

	article := model.Article{
		Title:   "人工智能技术的最新发展趋势",
		Content: "人工智能技术在过去一年取得了显著进展。",
	}
	text, err := s.summarizeOne(ctx, client, article, settings.MaxSummaryLength)
	if err != nil {
		return false, err.Error()
	}
	return true, text
}

// BuildPrompt assembles the summarization prompt, truncating oversized
// content first.
func BuildPrompt(title, content string, maxLen int) string {
	r := []rune(content)
	if len(r) > maxPromptContentChars {
		r = r[:maxPromptContentChars]
	}
	return fmt.Sprintf(
		"请用中文简洁地总结以下文章，摘要字数控制在 %d 字以内：\n\n标题：%s\n\n内容：\n%s\n\n请直接输出摘要，不需要任何前缀或格式。",
		maxLen, title, string(r),
	)
}

// truncateSummary bounds an over-long model response, leaving summarySlack
// characters of headroom before cutting and appending an ellipsis.
func truncateSummary(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen+summarySlack {
		return text
	}
	return string(r[:maxLen]) + "..."
}
