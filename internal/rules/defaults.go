package rules

import (
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// DefaultRules returns the starter rule set seeded into an empty rule store
func DefaultRules(now time.Time) []models.WarningRule {
	rules := []models.WarningRule{
		{
			ID:    "default-complaint-keywords",
			Name:  "投诉与维权关键词",
			Type:  models.RuleKeyword,
			Level: models.LevelHigh,
			Config: models.RuleConfig{Keyword: &models.KeywordConfig{
				Terms: []string{"投诉", "维权", "曝光", "欺诈", "虚假宣传", "集体诉讼"},
			}},
		},
		{
			ID:    "default-incident-keywords",
			Name:  "Incidents and security issues",
			Type:  models.RuleKeyword,
			Level: models.LevelHigh,
			Config: models.RuleConfig{Keyword: &models.KeywordConfig{
				Terms: []string{"事故", "召回", "泄露", "故障", "outage", "breach", "recall", "data leak"},
			}},
		},
		{
			ID:    "default-strong-negative",
			Name:  "Strongly negative sentiment",
			Type:  models.RuleSentiment,
			Level: models.LevelHigh,
			Config: models.RuleConfig{Sentiment: &models.SentimentConfig{
				Threshold:   20,
				TriggerWhen: models.TriggerBelow,
			}},
		},
		{
			ID:    "default-negative",
			Name:  "Negative sentiment",
			Type:  models.RuleSentiment,
			Level: models.LevelMedium,
			Config: models.RuleConfig{Sentiment: &models.SentimentConfig{
				Threshold:   40,
				TriggerWhen: models.TriggerBelow,
			}},
		},
		{
			ID:    "default-negative-volume",
			Name:  "Negative volume in 24 hours",
			Type:  models.RuleVolume,
			Level: models.LevelMedium,
			Config: models.RuleConfig{Volume: &models.VolumeConfig{
				Threshold:   10,
				WindowHours: 24,
				Sentiment:   models.SentimentNegative,
			}},
		},
		{
			ID:    "default-daily-growth",
			Name:  "Daily growth",
			Type:  models.RuleSpeed,
			Level: models.LevelLow,
			Config: models.RuleConfig{Speed: &models.SpeedConfig{
				Threshold: 50,
			}},
		},
	}

	for i := range rules {
		rules[i].Enabled = true
		rules[i].CreatedAt = now
		rules[i].UpdatedAt = now
	}
	return rules
}
