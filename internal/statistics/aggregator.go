package statistics

import (
	"fmt"
	"sort"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// DefaultWindowDays is the trailing window used when none is configured
const DefaultWindowDays = 7

// Aggregator computes statistics snapshots over a record set. Day boundaries
// are taken in the configured location.
type Aggregator struct {
	now        func() time.Time
	location   *time.Location
	windowDays int
}

// NewAggregator creates a new statistics aggregator
func NewAggregator(location *time.Location, windowDays int) *Aggregator {
	if location == nil {
		location = time.UTC
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Aggregator{
		now:        time.Now,
		location:   location,
		windowDays: windowDays,
	}
}

// WithClock replaces the time source
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Now returns the aggregator's current time in its location
func (a *Aggregator) Now() time.Time {
	return a.now().In(a.location)
}

// StartOfDay returns midnight of t's day in the aggregator's location
func (a *Aggregator) StartOfDay(t time.Time) time.Time {
	t = t.In(a.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.location)
}

// Compute builds a snapshot of records as of now
func (a *Aggregator) Compute(records []models.ContentRecord) models.Statistics {
	now := a.Now()
	today := a.StartOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	windowStart := today.AddDate(0, 0, -a.windowDays)

	stats := models.Statistics{
		GeneratedAt: now,
		WindowDays:  a.windowDays,
		BySource: map[models.SourceType]models.SentimentDistribution{
			models.SourceMediaArticle: {},
			models.SourceSocialPost:   {},
		},
	}

	for _, record := range records {
		stats.Total++
		switch record.Type {
		case models.SourceMediaArticle:
			stats.MediaCount++
		case models.SourceSocialPost:
			stats.SocialCount++
		}

		published := record.PublishedAt
		if !published.Before(today) {
			stats.TodayCount++
		} else if !published.Before(yesterday) {
			stats.YesterdayCount++
		}
		if !published.Before(windowStart) {
			stats.WindowCount++
		}

		if record.Enrichment == nil {
			stats.Unanalyzed++
			continue
		}

		addSentiment(&stats.SentimentDistribution, record.Enrichment.Sentiment)
		if record.Type.Valid() {
			dist := stats.BySource[record.Type]
			addSentiment(&dist, record.Enrichment.Sentiment)
			stats.BySource[record.Type] = dist
		}
	}

	return stats
}

func addSentiment(dist *models.SentimentDistribution, sentiment models.Sentiment) {
	switch sentiment {
	case models.SentimentPositive:
		dist.Positive++
	case models.SentimentNeutral:
		dist.Neutral++
	case models.SentimentNegative:
		dist.Negative++
	}
}

// Since returns the records published at or after since that match keep, in
// input order. A nil keep matches every record.
func Since(records []models.ContentRecord, since time.Time, keep func(models.ContentRecord) bool) []models.ContentRecord {
	var out []models.ContentRecord
	for _, record := range records {
		if record.PublishedAt.Before(since) {
			continue
		}
		if keep != nil && !keep(record) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// HotKeywords aggregates enrichment keywords across records: Count is the
// number of records carrying the word, Weight the summed weight. Results are
// ordered by count, then weight, then word.
func HotKeywords(records []models.ContentRecord, limit int) []models.HotKeyword {
	index := make(map[string]int)
	var hot []models.HotKeyword

	for _, record := range records {
		if record.Enrichment == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, keyword := range record.Enrichment.Keywords {
			i, ok := index[keyword.Word]
			if !ok {
				i = len(hot)
				index[keyword.Word] = i
				hot = append(hot, models.HotKeyword{Word: keyword.Word})
			}
			hot[i].Weight += keyword.Weight
			if !seen[keyword.Word] {
				hot[i].Count++
				seen[keyword.Word] = true
			}
		}
	}

	sort.Slice(hot, func(i, j int) bool {
		if hot[i].Count != hot[j].Count {
			return hot[i].Count > hot[j].Count
		}
		if hot[i].Weight != hot[j].Weight {
			return hot[i].Weight > hot[j].Weight
		}
		return hot[i].Word < hot[j].Word
	})

	if limit > 0 && len(hot) > limit {
		hot = hot[:limit]
	}
	return hot
}

// TopSources ranks where records came from (article site or post author) as
// "name (count)", most frequent first
func TopSources(records []models.ContentRecord, limit int) []string {
	sourceCount := make(map[string]int)
	for _, record := range records {
		if origin := record.Origin(); origin != "" {
			sourceCount[origin]++
		}
	}

	type sourceScore struct {
		source string
		count  int
	}

	scores := make([]sourceScore, 0, len(sourceCount))
	for source, count := range sourceCount {
		scores = append(scores, sourceScore{source, count})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].count != scores[j].count {
			return scores[i].count > scores[j].count
		}
		return scores[i].source < scores[j].source
	})

	var topSources []string
	for i, score := range scores {
		if limit > 0 && i >= limit {
			break
		}
		topSources = append(topSources, fmt.Sprintf("%s (%d)", score.source, score.count))
	}

	return topSources
}

// MostNegative returns up to limit analyzed negative records, lowest score first
func MostNegative(records []models.ContentRecord, limit int) []models.ContentRecord {
	var negative []models.ContentRecord
	for _, record := range records {
		if record.Enrichment != nil && record.Enrichment.Sentiment == models.SentimentNegative {
			negative = append(negative, record)
		}
	}

	sort.SliceStable(negative, func(i, j int) bool {
		return negative[i].Enrichment.SentimentScore < negative[j].Enrichment.SentimentScore
	})

	if limit > 0 && len(negative) > limit {
		negative = negative[:limit]
	}
	return negative
}
