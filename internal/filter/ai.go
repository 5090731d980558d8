package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"briefly/internal/model"
	"briefly/internal/storage"
	"briefly/internal/summary"
)

// Preconditions the AI filter pass refuses to run without.
var (
	ErrAIFilterDisabled    = errors.New("ai filter: disabled")
	ErrMissingFilterPrompt = errors.New("ai filter: filter prompt not set")
)

// aiFilterBatchSize caps how many recent articles one pass sends to the model.
const aiFilterBatchSize = 100

// jsonObjectRE extracts the outermost JSON object from a model response that
// may wrap it in prose or code fences.
var jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)

// AIEngine runs prompt-based filtering passes: the model judges recent
// articles against a user-written prompt and the rest get marked as
// AI-filtered. Marks are recomputed from scratch on every pass.
type AIEngine struct {
	store storage.Storage
	log   *slog.Logger

	// resolve yields the completion client; swapped in tests.
	resolve func(ctx context.Context) (summary.Completer, *model.AISettings, error)
}

// NewAIEngine creates an AIEngine sharing the summarizer's AI client.
func NewAIEngine(store storage.Storage, s *summary.Summarizer, log *slog.Logger) *AIEngine {
	return &AIEngine{store: store, log: log, resolve: s.Client}
}

// Apply runs one AI filter pass over the most recent articles and returns how
// many were marked. The pass requires the filter to be enabled, a non-empty
// prompt, and a configured API key.
func (e *AIEngine) Apply(ctx context.Context) (int, error) {
	cfg, err := e.store.GetAIFilterConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("get ai filter config: %w", err)
	}
	if !cfg.Enabled {
		return 0, ErrAIFilterDisabled
	}
	if strings.TrimSpace(cfg.FilterPrompt) == "" {
		return 0, ErrMissingFilterPrompt
	}

	client, _, err := e.resolve(ctx)
	if err != nil {
		return 0, err
	}
	if client == nil {
		return 0, summary.ErrNotConfigured
	}

	articles, err := e.store.ListArticles(ctx, aiFilterBatchSize, 0)
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}
	if len(articles) == 0 {
		return 0, nil
	}

	resp, err := client.Complete(ctx, BuildFilterPrompt(cfg.FilterPrompt, articles))
	if err != nil {
		return 0, fmt.Errorf("ai filter completion: %w", err)
	}

	keepIDs := parseKeepIDs(resp)
	candidateIDs := make([]int64, 0, len(articles))
	for _, a := range articles {
		candidateIDs = append(candidateIDs, a.ID)
	}

	marked, err := e.store.ApplyAIFilterResults(ctx, candidateIDs, keepIDs)
	if err != nil {
		return 0, fmt.Errorf("apply ai filter results: %w", err)
	}
	if err := e.store.RecordAIFilterRun(ctx); err != nil {
		return marked, fmt.Errorf("record ai filter run: %w", err)
	}

	e.log.Info("ai filter pass complete", "candidates", len(articles), "kept", len(keepIDs), "marked", marked)
	return marked, nil
}

// AutoApply runs a pass only when the filter is both enabled and set to
// auto-apply. It reports whether a pass ran.
func (e *AIEngine) AutoApply(ctx context.Context) (int, bool, error) {
	cfg, err := e.store.GetAIFilterConfig(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("get ai filter config: %w", err)
	}
	if !cfg.Enabled || !cfg.AutoApply {
		return 0, false, nil
	}
	marked, err := e.Apply(ctx)
	return marked, true, err
}

// BuildFilterPrompt numbers the candidates (title plus a trimmed description)
// and instructs the model to answer with a keep_ids JSON object.
func BuildFilterPrompt(userPrompt string, articles []model.Article) string {
	var b strings.Builder
	b.WriteString("你是一个文章筛选助手。根据下面的筛选要求判断每篇文章是否值得保留。\n")
	b.WriteString("筛选要求：")
	b.WriteString(userPrompt)
	b.WriteString("\n\n文章列表：\n")
	for _, a := range articles {
		desc := []rune(a.Description)
		if len(desc) > 200 {
			desc = desc[:200]
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", a.ID, a.Title, string(desc))
	}
	b.WriteString(`只输出一个 JSON 对象，格式为 {"keep_ids": [文章编号]}，不要输出其他内容。`)
	return b.String()
}

// parseKeepIDs pulls the keep_ids list out of the model response. A response
// with no parsable object keeps nothing, so every candidate gets marked.
func parseKeepIDs(resp string) []int64 {
	raw := jsonObjectRE.FindString(resp)
	if raw == "" {
		return nil
	}
	var parsed struct {
		KeepIDs []int64 `json:"keep_ids"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed.KeepIDs
}
