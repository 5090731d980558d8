// Package notify formats article batches into chat-platform webhook payloads
// and delivers them.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"briefly/internal/model"
)

// maxItemsPerMessage bounds how many articles one message renders.
const maxItemsPerMessage = 20

// ErrNotConfigured reports a disabled webhook or a missing URL. Callers
// treat it as a structured "skipped" outcome, not a failure.
var ErrNotConfigured = errors.New("webhook: not configured")

// ArticleRef is the slice of an article a message renders.
type ArticleRef struct {
	Title string
	Link  string
}

// Refs extracts message references from stored articles.
func Refs(articles []model.Article) []ArticleRef {
	refs := make([]ArticleRef, 0, len(articles))
	for _, a := range articles {
		refs = append(refs, ArticleRef{Title: a.Title, Link: a.Link})
	}
	return refs
}

type builderFunc func(title string, refs []ArticleRef) map[string]any

// One builder per platform; adding a platform means one enum variant and one
// entry here.
var builders = map[model.Platform]builderFunc{
	model.PlatformWeCom:      buildWeCom,
	model.PlatformDingTalk:   buildDingTalk,
	model.PlatformFeishu:     buildFeishu,
	model.PlatformFeishuCard: buildFeishuCard,
	model.PlatformFeishuFlow: buildFeishuFlow,
	model.PlatformGeneric:    buildGeneric,
}

// BuildMessage renders up to maxItemsPerMessage articles as a titled list in
// the platform's payload shape. Unknown platforms fall back to the generic
// shape.
func BuildMessage(title string, refs []ArticleRef, platform model.Platform) map[string]any {
	if len(refs) > maxItemsPerMessage {
		refs = refs[:maxItemsPerMessage]
	}
	build, ok := builders[platform]
	if !ok {
		build = buildGeneric
	}
	return build(title, refs)
}

func markdownList(refs []ArticleRef) string {
	var b strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&b, "- [%s](%s)\n", r.Title, r.Link)
	}
	return b.String()
}

func buildWeCom(title string, refs []ArticleRef) map[string]any {
	return map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"content": fmt.Sprintf("**%s**\n\n%s", title, markdownList(refs)),
		},
	}
}

func buildDingTalk(title string, refs []ArticleRef) map[string]any {
	return map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"title": title,
			"text":  fmt.Sprintf("## %s\n\n%s", title, markdownList(refs)),
		},
	}
}

func buildFeishu(title string, refs []ArticleRef) map[string]any {
	var b strings.Builder
	b.WriteString(title + "\n")
	for _, r := range refs {
		fmt.Fprintf(&b, "%s %s\n", r.Title, r.Link)
	}
	return map[string]any{
		"msg_type": "text",
		"content":  map[string]any{"text": b.String()},
	}
}

func buildFeishuCard(title string, refs []ArticleRef) map[string]any {
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title": map[string]any{"tag": "plain_text", "content": title},
			},
			"elements": []any{
				map[string]any{
					"tag":  "div",
					"text": map[string]any{"tag": "lark_md", "content": markdownList(refs)},
				},
			},
		},
	}
}

func buildFeishuFlow(title string, refs []ArticleRef) map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		items = append(items, map[string]any{"title": r.Title, "link": r.Link})
	}
	return map[string]any{
		"title":    title,
		"articles": items,
	}
}

func buildGeneric(title string, refs []ArticleRef) map[string]any {
	return map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]any{
			"title": title,
			"text":  fmt.Sprintf("**%s**\n\n%s", title, markdownList(refs)),
		},
	}
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier posts webhook payloads.
type Notifier struct {
	client  HTTPClient
	log     *slog.Logger
	timeout time.Duration
}

// New creates a Notifier with the given HTTP client.
func New(client HTTPClient, log *slog.Logger) *Notifier {
	return &Notifier{client: client, log: log, timeout: 30 * time.Second}
}

// webhookReply covers both the wecom/dingtalk and the feishu error envelopes,
// which report failures inside a 200 response.
type webhookReply struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
	Code    *int   `json:"code"`
	Msg     string `json:"msg"`
}

// Send posts the payload to url and treats both transport failures and
// in-body platform error codes as failures.
func (n *Notifier) Send(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}

	var reply webhookReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		// Generic endpoints may reply with anything; 2xx is enough.
		return nil
	}
	if reply.ErrCode != nil && *reply.ErrCode != 0 {
		return fmt.Errorf("webhook rejected: errcode %d: %s", *reply.ErrCode, reply.ErrMsg)
	}
	if reply.Code != nil && *reply.Code != 0 {
		return fmt.Errorf("webhook rejected: code %d: %s", *reply.Code, reply.Msg)
	}
	return nil
}

// Push formats the articles for the configured platform and delivers them.
// A disabled webhook or empty URL returns ErrNotConfigured.
func (n *Notifier) Push(ctx context.Context, cfg *model.WebhookConfig, title string, refs []ArticleRef) error {
	if !cfg.Enabled || cfg.URL == "" {
		return ErrNotConfigured
	}
	if len(refs) == 0 {
		return nil
	}

	if err := n.Send(ctx, cfg.URL, BuildMessage(title, refs, cfg.Platform)); err != nil {
		return err
	}
	n.log.Info("webhook push sent", "platform", string(cfg.Platform), "articles", len(refs))
	return nil
}

// PushNow delivers a single article immediately, outside the schedule.
func (n *Notifier) PushNow(ctx context.Context, cfg *model.WebhookConfig, a model.Article) error {
	return n.Push(ctx, cfg, "Briefly 文章推送", Refs([]model.Article{a}))
}

// ConnectionResult is the outcome of probing a webhook URL.
type ConnectionResult struct {
	Success bool
	Message string
}

// TestConnection sends a canned message through the configured webhook.
func (n *Notifier) TestConnection(ctx context.Context, cfg *model.WebhookConfig) *ConnectionResult {
	if !cfg.Enabled || cfg.URL == "" {
		return &ConnectionResult{Message: "webhook not configured"}
	}
	refs := []ArticleRef{{Title: "这是一条测试通知，用于验证 Webhook 配置是否正确。", Link: ""}}
	if err := n.Send(ctx, cfg.URL, BuildMessage("Briefly 测试通知", refs, cfg.Platform)); err != nil {
		return &ConnectionResult{Message: err.Error()}
	}
	return &ConnectionResult{Success: true, Message: "test notification sent"}
}
