package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/statistics"
	"github.com/sirupsen/logrus"
)

// DefaultVolumeWindow applies to volume rules that set no window
const DefaultVolumeWindow = 24 * time.Hour

// Engine turns warning rules, records and a statistics snapshot into
// candidate alerts. It stores nothing and does not deduplicate, so running it
// repeatedly over the same inputs yields the same candidates.
type Engine struct{}

// NewEngine creates a new rule evaluation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate returns candidate alerts for every enabled, valid rule, in rule
// order and then record order. Candidates have no ID and no timestamps.
// Rules with an invalid configuration are logged and skipped.
func (e *Engine) Evaluate(rules []models.WarningRule, records []models.ContentRecord, stats models.Statistics) []models.AlertRecord {
	var candidates []models.AlertRecord

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		if err := validateForEvaluation(rule); err != nil {
			metrics.RulesSkipped.WithLabelValues(string(rule.Type)).Inc()
			logrus.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"error":   err,
			}).Warn("Skipping rule with invalid configuration")
			continue
		}

		var triggered []models.AlertRecord
		switch rule.Type {
		case models.RuleKeyword:
			triggered = evaluateKeyword(rule, records)
		case models.RuleSentiment:
			triggered = evaluateSentiment(rule, records)
		case models.RuleVolume:
			triggered = evaluateVolume(rule, records, stats)
		case models.RuleSpeed:
			triggered = evaluateSpeed(rule, records, stats)
		}

		if len(triggered) > 0 {
			metrics.CandidateAlerts.WithLabelValues(string(rule.Type), string(rule.Level)).Add(float64(len(triggered)))
			logrus.WithFields(logrus.Fields{
				"rule_id":    rule.ID,
				"candidates": len(triggered),
			}).Debug("Rule triggered")
		}
		candidates = append(candidates, triggered...)
	}

	return candidates
}

func candidate(rule models.WarningRule, record models.ContentRecord, reason string) models.AlertRecord {
	return models.AlertRecord{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Level:       rule.Level,
		ContentID:   record.ID,
		ContentType: record.Type,
		Reason:      reason,
		Status:      models.StatusUnhandled,
	}
}

// evaluateKeyword raises one candidate per record containing any term in its
// title, body, summary or tags. Matching is case-sensitive.
func evaluateKeyword(rule models.WarningRule, records []models.ContentRecord) []models.AlertRecord {
	configured := terms(rule.Config.Keyword.Terms)

	var out []models.AlertRecord
	for _, record := range records {
		matched := matchTerms(configured, record)
		if len(matched) == 0 {
			continue
		}
		out = append(out, candidate(rule, record, fmt.Sprintf("Matched keywords: %s", strings.Join(matched, ", "))))
	}
	return out
}

func matchTerms(terms []string, record models.ContentRecord) []string {
	var matched []string
	for _, term := range terms {
		if record.Mentions(term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// evaluateSentiment raises one candidate per analyzed record whose score lies
// strictly beyond the threshold in the configured direction
func evaluateSentiment(rule models.WarningRule, records []models.ContentRecord) []models.AlertRecord {
	cfg := rule.Config.Sentiment

	var out []models.AlertRecord
	for _, record := range records {
		if record.Enrichment == nil {
			continue
		}

		score := record.Enrichment.SentimentScore
		var reason string
		switch {
		case cfg.TriggerWhen == models.TriggerBelow && score < cfg.Threshold:
			reason = fmt.Sprintf("Sentiment score %d is below threshold %d", score, cfg.Threshold)
		case cfg.TriggerWhen == models.TriggerAbove && score > cfg.Threshold:
			reason = fmt.Sprintf("Sentiment score %d is above threshold %d", score, cfg.Threshold)
		default:
			continue
		}
		out = append(out, candidate(rule, record, reason))
	}
	return out
}

// evaluateVolume raises at most one candidate when enough matching records
// fall inside the trailing window ending at the snapshot time
func evaluateVolume(rule models.WarningRule, records []models.ContentRecord, stats models.Statistics) []models.AlertRecord {
	cfg := rule.Config.Volume

	window := DefaultVolumeWindow
	if cfg.WindowHours > 0 {
		window = time.Duration(cfg.WindowHours) * time.Hour
	}
	since := snapshotTime(stats).Add(-window)

	matching := statistics.Since(records, since, func(record models.ContentRecord) bool {
		if cfg.Source != "" && record.Type != cfg.Source {
			return false
		}
		return cfg.Sentiment == "" || (record.Enrichment != nil && record.Enrichment.Sentiment == cfg.Sentiment)
	})

	if len(matching) < cfg.Threshold {
		return nil
	}

	representative, ok := mostRecent(matching)
	if !ok {
		return nil
	}

	reason := fmt.Sprintf("%d %s in the last %dh reached threshold %d", len(matching), describeVolume(cfg), int(window.Hours()), cfg.Threshold)
	return []models.AlertRecord{candidate(rule, representative, reason)}
}

func describeVolume(cfg *models.VolumeConfig) string {
	parts := []string{}
	if cfg.Sentiment != "" {
		parts = append(parts, string(cfg.Sentiment))
	}
	if cfg.Source != "" {
		parts = append(parts, string(cfg.Source))
	}
	parts = append(parts, "records")
	return strings.Join(parts, " ")
}

// evaluateSpeed raises at most one candidate when today's count exceeds
// yesterday's by at least the threshold
func evaluateSpeed(rule models.WarningRule, records []models.ContentRecord, stats models.Statistics) []models.AlertRecord {
	cfg := rule.Config.Speed

	delta := stats.TodayCount - stats.YesterdayCount
	if delta < cfg.Threshold {
		return nil
	}

	representative, ok := mostRecent(records)
	if !ok {
		return nil
	}

	reason := fmt.Sprintf("%d records today versus %d yesterday, increase of %d reached threshold %d",
		stats.TodayCount, stats.YesterdayCount, delta, cfg.Threshold)
	return []models.AlertRecord{candidate(rule, representative, reason)}
}

// mostRecent picks the latest published record, lowest ID on ties
func mostRecent(records []models.ContentRecord) (models.ContentRecord, bool) {
	if len(records) == 0 {
		return models.ContentRecord{}, false
	}
	best := records[0]
	for _, record := range records[1:] {
		if record.PublishedAt.After(best.PublishedAt) ||
			(record.PublishedAt.Equal(best.PublishedAt) && record.ID < best.ID) {
			best = record
		}
	}
	return best, true
}

func snapshotTime(stats models.Statistics) time.Time {
	if stats.GeneratedAt.IsZero() {
		return time.Now()
	}
	return stats.GeneratedAt
}
