// Package fetcher handles feed downloading, parsing, and normalization.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sethvargo/go-retry"

	"briefly/internal/model"
)

// Retry policy for transient fetch failures.
const (
	maxAttempts    = 3
	initialBackoff = 2 * time.Second
	maxBackoff     = 10 * time.Second
)

// untitledPlaceholder replaces missing or garbled entry titles.
const untitledPlaceholder = "untitled"

// ErrorKind classifies a fetch failure. Network and timeout failures are
// transient and retried; HTTP error statuses and parse failures are not.
type ErrorKind int

// Fetch failure classes.
const (
	KindNetwork ErrorKind = iota
	KindTimeout
	KindHTTPStatus
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http status"
	case KindParse:
		return "parse"
	}
	return "unknown"
}

// FetchError is a classified fetch failure for a single source URL.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is worth retrying.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindTimeout
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feed sources.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	backoff time.Duration
	now     func() time.Time
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
		backoff: initialBackoff,
		now:     time.Now,
	}
}

// SetTimeout overrides the default 30-second request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// SetBackoff overrides the initial retry backoff (useful for testing).
func (f *Fetcher) SetBackoff(d time.Duration) {
	f.backoff = d
}

// Fetch downloads and parses one source, retrying transient failures up to
// three attempts with exponential backoff. The final failure is returned
// unchanged after the attempts are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, source model.Source) ([]model.Entry, error) {
	var entries []model.Entry

	b := retry.WithMaxRetries(maxAttempts-1,
		retry.WithCappedDuration(maxBackoff, retry.NewExponential(f.backoff)))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var ferr error
		entries, ferr = f.fetchOnce(ctx, source.URL)
		if ferr == nil {
			return nil
		}
		var fe *FetchError
		if errors.As(ferr, &fe) && fe.Retryable() {
			return retry.RetryableError(ferr)
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]model.Entry, error) {
	feed, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}

	now := f.now().UTC()
	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, normalizeItem(item, now))
	}
	return entries, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*gofeed.Feed, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "Briefly/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		kind := KindNetwork
		if reqCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return nil, &FetchError{Kind: kind, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind: KindHTTPStatus, URL: url,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &FetchError{Kind: KindParse, URL: url, Err: err}
	}
	return feed, nil
}

// SourceResult is the outcome of fetching one source. Exactly one of Entries
// and Err is meaningful; an empty feed yields both nil.
type SourceResult struct {
	Source  model.Source
	Entries []model.Entry
	Err     error
}

// FetchAll fetches the sources concurrently, one goroutine per source. A
// source's terminal failure never cancels or delays the others; all outcomes
// are collected and returned together, in source order.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.Source) []SourceResult {
	results := make([]SourceResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src model.Source) {
			defer wg.Done()
			entries, err := f.Fetch(ctx, src)
			results[i] = SourceResult{Source: src, Entries: entries, Err: err}
		}(i, src)
	}
	wg.Wait()

	return results
}

// ConnectionResult is the outcome of probing a feed URL.
type ConnectionResult struct {
	Success    bool
	Message    string
	FeedTitle  string
	EntryCount int
}

// TestConnection probes url once, without retries, and reports whether it
// serves a parseable feed.
func (f *Fetcher) TestConnection(ctx context.Context, url string) *ConnectionResult {
	feed, err := f.download(ctx, url)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Kind == KindParse {
			return &ConnectionResult{Message: "response is not a valid feed"}
		}
		return &ConnectionResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return &ConnectionResult{
		Success:    true,
		Message:    "feed reachable",
		FeedTitle:  feed.Title,
		EntryCount: len(feed.Items),
	}
}

// Ordered list of timestamp layouts tried when the parser leaves a publish
// time raw.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	"02 Jan 2006 15:04:05 MST",
	"2006-01-02",
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup tags from a text blob.
func StripHTML(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

// normalizeItem converts a parsed feed item into the canonical entry shape.
// Entries without a usable publish time get now; archival feeds may therefore
// be misordered on their first-ever fetch.
func normalizeItem(item *gofeed.Item, now time.Time) model.Entry {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}

	title := strings.TrimSpace(fixEncoding(item.Title))
	if title == "" {
		title = untitledPlaceholder
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	content = StripHTML(fixEncoding(content))

	description := strings.TrimSpace(fixEncoding(item.Description))
	if description == "" && content != "" {
		r := []rune(content)
		if len(r) > 500 {
			r = r[:500]
		}
		description = string(r)
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}
	author = fixEncoding(author)

	publishedAt := now
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		publishedAt = item.UpdatedParsed.UTC()
	} else if t, ok := parseDate(item.Published); ok {
		publishedAt = t
	} else if t, ok := parseDate(item.Updated); ok {
		publishedAt = t
	}

	return model.Entry{
		GUID:        guid,
		Title:       title,
		Link:        item.Link,
		Description: description,
		Content:     content,
		Author:      author,
		PublishedAt: publishedAt,
	}
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
