// Package model defines the domain types used across the application.
package model

import "time"

// Source represents a configured RSS feed to poll.
type Source struct {
	ID              int64
	Name            string
	URL             string
	Description     string
	Enabled         bool
	LastFetchedAt   *time.Time
	FetchErrorCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Article is a single ingested feed entry. The (SourceID, GUID) pair is its
// natural key: at most one article per source may carry a given GUID.
type Article struct {
	ID          int64
	SourceID    int64
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time

	IsFiltered   bool
	IsAIFiltered bool
	HasSummary   bool
	Summary      string
	IsRead       bool
	IsFavorite   bool

	FetchedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is a normalized feed entry produced by the fetcher, not yet persisted.
type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time
}

// Keyword is a persisted filter term. MatchCount only ever grows, one
// increment per successful filter match.
type Keyword struct {
	ID         int64
	Keyword    string
	Enabled    bool
	MatchCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Platform identifies the webhook payload format.
type Platform string

// Supported webhook platforms.
const (
	PlatformWeCom      Platform = "wecom"
	PlatformDingTalk   Platform = "dingtalk"
	PlatformFeishu     Platform = "feishu"
	PlatformFeishuCard Platform = "feishu-card"
	PlatformFeishuFlow Platform = "feishu-flow"
	PlatformGeneric    Platform = "generic"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeCom, PlatformDingTalk, PlatformFeishu,
		PlatformFeishuCard, PlatformFeishuFlow, PlatformGeneric:
		return true
	}
	return false
}

// Frequency defines how often the scheduled webhook push fires.
type Frequency string

// Supported push frequencies.
const (
	FreqHourly  Frequency = "hourly"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// WebhookConfig is the singleton (id=1) webhook push configuration.
type WebhookConfig struct {
	ID          int64
	Enabled     bool
	URL         string
	Platform    Platform
	Name        string
	Description string

	ScheduleEnabled    bool
	ScheduleFrequency  Frequency
	ScheduleTime       string // "HH:MM"
	ScheduleDayOfWeek  int    // 1-7, Monday=1
	ScheduleDayOfMonth int    // 1-28

	PushFavorites bool
	PushFiltered  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AIFilterConfig is the singleton (id=1) prompt-based article filter
// configuration. When AutoApply is set, the filter pass runs after every
// fetch.
type AIFilterConfig struct {
	ID           int64
	Enabled      bool
	FilterPrompt string
	AutoApply    bool
	LastRun      *time.Time
}

// AISettings is the singleton (id=1) AI endpoint configuration.
type AISettings struct {
	ID               int64
	APIKey           string
	BaseURL          string
	Model            string
	MaxSummaryLength int
	Enabled          bool
}
