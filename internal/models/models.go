package models

import (
	"strings"
	"time"
)

// SourceType tags which variant a ContentRecord carries
type SourceType string

const (
	SourceMediaArticle SourceType = "media_article"
	SourceSocialPost   SourceType = "social_post"
)

// Valid reports whether t is a known source type
func (t SourceType) Valid() bool {
	return t == SourceMediaArticle || t == SourceSocialPost
}

// Sentiment is the AI sentiment label of a record
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether s is a known sentiment label
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// Level is the severity shared by warning rules and alert records
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	return l == LevelHigh || l == LevelMedium || l == LevelLow
}

// Rank orders levels, higher is more severe. Unknown levels rank 0.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}

// AtLeast reports whether l is as severe as min
func (l Level) AtLeast(min Level) bool {
	return l.Rank() >= min.Rank() && l.Rank() > 0
}

// Keyword is an AI-extracted keyword with a 1-10 weight
type Keyword struct {
	Word   string `json:"word"`
	Weight int    `json:"weight"`
}

// Enrichment is the AI-derived block attached to a content record.
// It is replaced as a whole on every enrichment run.
type Enrichment struct {
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore int       `json:"sentiment_score"` // 0-100, higher is more positive
	Confidence     float64   `json:"confidence"`      // 0-1
	Keywords       []Keyword `json:"keywords"`        // weight descending
	Summary        string    `json:"summary"`
	Category       string    `json:"category"`
	Topics         []string  `json:"topics,omitempty"`
	IsAlert        bool      `json:"is_alert"`
	AlertLevel     Level     `json:"alert_level,omitempty"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// MediaArticle holds the fields specific to news-media articles
type MediaArticle struct {
	Title      string   `json:"title"`
	Source     string   `json:"source"` // publishing site
	Author     string   `json:"author"`
	URL        string   `json:"url"`
	MediaType  string   `json:"media_type"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	ViewCount  int      `json:"view_count"`
	ShareCount int      `json:"share_count"`
}

// SocialPost holds the fields specific to social-media posts
type SocialPost struct {
	UserID       string   `json:"user_id"`
	UserName     string   `json:"user_name"`
	Verified     bool     `json:"verified"`
	Followers    int      `json:"followers"`
	TopicTags    []string `json:"topic_tags"`
	Location     string   `json:"location"`
	LikeCount    int      `json:"like_count"`
	CommentCount int      `json:"comment_count"`
	RepostCount  int      `json:"repost_count"`
}

// ContentRecord is a single imported article or post. Type decides which of
// Article or Post is populated; the other is nil.
type ContentRecord struct {
	ID          string        `json:"id"`
	Type        SourceType    `json:"type"`
	Content     string        `json:"content"`
	PublishedAt time.Time     `json:"published_at"`
	Article     *MediaArticle `json:"article,omitempty"`
	Post        *SocialPost   `json:"post,omitempty"`
	Enrichment  *Enrichment   `json:"enrichment,omitempty"`
}

// NewMediaArticle builds an article record
func NewMediaArticle(id, content string, publishedAt time.Time, article MediaArticle) ContentRecord {
	return ContentRecord{
		ID:          id,
		Type:        SourceMediaArticle,
		Content:     content,
		PublishedAt: publishedAt,
		Article:     &article,
	}
}

// NewSocialPost builds a post record
func NewSocialPost(id, content string, publishedAt time.Time, post SocialPost) ContentRecord {
	return ContentRecord{
		ID:          id,
		Type:        SourceSocialPost,
		Content:     content,
		PublishedAt: publishedAt,
		Post:        &post,
	}
}

// Title returns the article title, or "" for posts
func (r ContentRecord) Title() string {
	if r.Type == SourceMediaArticle && r.Article != nil {
		return r.Article.Title
	}
	return ""
}

// Tags returns the article tags or the post topic tags
func (r ContentRecord) Tags() []string {
	switch r.Type {
	case SourceMediaArticle:
		if r.Article != nil {
			return r.Article.Tags
		}
	case SourceSocialPost:
		if r.Post != nil {
			return r.Post.TopicTags
		}
	}
	return nil
}

// SearchFields returns the text keyword rules and record search look at:
// title, body, AI summary and tags
func (r ContentRecord) SearchFields() []string {
	fields := []string{r.Title(), r.Content}
	if r.Enrichment != nil {
		fields = append(fields, r.Enrichment.Summary)
	}
	return append(fields, r.Tags()...)
}

// Mentions reports whether any search field contains term. Matching is
// case-sensitive.
func (r ContentRecord) Mentions(term string) bool {
	for _, field := range r.SearchFields() {
		if strings.Contains(field, term) {
			return true
		}
	}
	return false
}

// Origin names where the record came from: the site for articles, the user for posts
func (r ContentRecord) Origin() string {
	switch r.Type {
	case SourceMediaArticle:
		if r.Article != nil {
			return r.Article.Source
		}
	case SourceSocialPost:
		if r.Post != nil {
			return r.Post.UserName
		}
	}
	return ""
}

// Engagement sums the interaction counters of either variant
func (r ContentRecord) Engagement() int {
	switch r.Type {
	case SourceMediaArticle:
		if r.Article != nil {
			return r.Article.ViewCount + r.Article.ShareCount
		}
	case SourceSocialPost:
		if r.Post != nil {
			return r.Post.LikeCount + r.Post.CommentCount + r.Post.RepostCount
		}
	}
	return 0
}

// Analyzed reports whether the record carries an enrichment block
func (r ContentRecord) Analyzed() bool {
	return r.Enrichment != nil
}

// Clone returns a deep copy of r
func (r ContentRecord) Clone() ContentRecord {
	if r.Article != nil {
		a := *r.Article
		a.Tags = append([]string(nil), a.Tags...)
		r.Article = &a
	}
	if r.Post != nil {
		p := *r.Post
		p.TopicTags = append([]string(nil), p.TopicTags...)
		r.Post = &p
	}
	if r.Enrichment != nil {
		return r.WithEnrichment(*r.Enrichment)
	}
	return r
}

// WithEnrichment returns a copy of r whose enrichment block is replaced by e
func (r ContentRecord) WithEnrichment(e Enrichment) ContentRecord {
	e.Keywords = append([]Keyword(nil), e.Keywords...)
	e.Topics = append([]string(nil), e.Topics...)
	r.Enrichment = &e
	return r
}

// WithAlert returns a copy of r flagged as alerting. The stored level only
// ever escalates. Records without enrichment are returned unchanged.
func (r ContentRecord) WithAlert(level Level) ContentRecord {
	if r.Enrichment == nil {
		return r
	}
	e := *r.Enrichment
	e.IsAlert = true
	if level.Rank() > e.AlertLevel.Rank() {
		e.AlertLevel = level
	}
	r.Enrichment = &e
	return r
}

// RuleType is the kind of condition a warning rule checks
type RuleType string

const (
	RuleKeyword   RuleType = "keyword"
	RuleSentiment RuleType = "sentiment"
	RuleVolume    RuleType = "volume"
	RuleSpeed     RuleType = "speed"
)

// Direction says which side of a sentiment threshold is adverse
type Direction string

const (
	TriggerBelow Direction = "below"
	TriggerAbove Direction = "above"
)

// KeywordConfig triggers on records containing any of Terms
type KeywordConfig struct {
	Terms []string `json:"terms"`
}

// SentimentConfig triggers when a score is strictly beyond Threshold in the TriggerWhen direction
type SentimentConfig struct {
	Threshold   int       `json:"threshold"`
	TriggerWhen Direction `json:"trigger_when"`
}

// VolumeConfig triggers when at least Threshold records fall inside the
// trailing window. Sentiment and Source optionally narrow what counts.
type VolumeConfig struct {
	Threshold   int        `json:"threshold"`
	WindowHours int        `json:"window_hours"`
	Sentiment   Sentiment  `json:"sentiment,omitempty"`
	Source      SourceType `json:"source,omitempty"`
}

// SpeedConfig triggers when today's count exceeds yesterday's by at least Threshold
type SpeedConfig struct {
	Threshold int `json:"threshold"`
}

// RuleConfig carries one sub-shape per rule type. Only the one matching the
// rule's type is read.
type RuleConfig struct {
	Keyword   *KeywordConfig   `json:"keyword,omitempty"`
	Sentiment *SentimentConfig `json:"sentiment,omitempty"`
	Volume    *VolumeConfig    `json:"volume,omitempty"`
	Speed     *SpeedConfig     `json:"speed,omitempty"`
}

// WarningRule is a configured alerting condition
type WarningRule struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      RuleType   `json:"type"`
	Level     Level      `json:"level"`
	Enabled   bool       `json:"enabled"`
	Config    RuleConfig `json:"config"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AlertStatus is the handling state of an alert record
type AlertStatus string

const (
	StatusUnhandled  AlertStatus = "unhandled"
	StatusProcessing AlertStatus = "processing"
	StatusResolved   AlertStatus = "resolved"
	StatusIgnored    AlertStatus = "ignored"
)

// Valid reports whether s is a known status
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusUnhandled, StatusProcessing, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusIgnored
}

// AlertRecord is a raised alert. Rule id and name are copied at creation so
// the record stays readable after the rule changes. Only Status and
// UpdatedAt change after creation.
type AlertRecord struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	RuleName    string      `json:"rule_name"`
	Level       Level       `json:"level"`
	ContentID   string      `json:"content_id"`
	ContentType SourceType  `json:"content_type"`
	Reason      string      `json:"reason"`
	Suggestion  string      `json:"suggestion,omitempty"`
	Status      AlertStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SentimentDistribution counts records per sentiment label
type SentimentDistribution struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Statistics is computed on demand from the record set and never stored
type Statistics struct {
	GeneratedAt           time.Time                            `json:"generated_at"`
	Total                 int                                  `json:"total"`
	MediaCount            int                                  `json:"media_count"`
	SocialCount           int                                  `json:"social_count"`
	Unanalyzed            int                                  `json:"unanalyzed"`
	SentimentDistribution SentimentDistribution                `json:"sentiment_distribution"`
	BySource              map[SourceType]SentimentDistribution `json:"by_source"`
	TodayCount            int                                  `json:"today_count"`
	YesterdayCount        int                                  `json:"yesterday_count"`
	WindowDays            int                                  `json:"window_days"`
	WindowCount           int                                  `json:"window_count"`
}

// HotKeyword aggregates an AI keyword across records
type HotKeyword struct {
	Word   string `json:"word"`
	Count  int    `json:"count"`
	Weight int    `json:"weight"`
}

// Report represents a periodic summary of the corpus and its alerts
type Report struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	Period          string          `json:"period"` // "daily" or "weekly"
	Statistics      Statistics      `json:"statistics"`
	HotKeywords     []HotKeyword    `json:"hot_keywords"`
	TopSources      []string        `json:"top_sources"`
	OpenAlerts      []AlertRecord   `json:"open_alerts"`
	NegativeRecords []ContentRecord `json:"negative_records"`
}
