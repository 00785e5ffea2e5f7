package rules

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotAt = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func enriched(id string, published time.Time, sentiment models.Sentiment, score int) models.ContentRecord {
	return models.NewSocialPost(id, "post "+id, published, models.SocialPost{UserName: "user"}).
		WithEnrichment(models.Enrichment{Sentiment: sentiment, SentimentScore: score})
}

func keywordRule(id string, level models.Level, terms ...string) models.WarningRule {
	return models.WarningRule{
		ID: id, Name: "rule " + id, Type: models.RuleKeyword, Level: level, Enabled: true,
		Config: models.RuleConfig{Keyword: &models.KeywordConfig{Terms: terms}},
	}
}

func sentimentRule(id string, threshold int, direction models.Direction) models.WarningRule {
	return models.WarningRule{
		ID: id, Name: "rule " + id, Type: models.RuleSentiment, Level: models.LevelMedium, Enabled: true,
		Config: models.RuleConfig{Sentiment: &models.SentimentConfig{Threshold: threshold, TriggerWhen: direction}},
	}
}

func TestEngine_KeywordRule(t *testing.T) {
	record := models.NewMediaArticle("a1", "消费者投诉产品质量差", snapshotAt, models.MediaArticle{Title: "产品风波"})
	other := models.NewMediaArticle("a2", "新品发布会顺利举行", snapshotAt, models.MediaArticle{Title: "发布会"})

	candidates := NewEngine().Evaluate(
		[]models.WarningRule{keywordRule("k1", models.LevelHigh, "投诉")},
		[]models.ContentRecord{record, other},
		models.Statistics{GeneratedAt: snapshotAt},
	)

	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, models.LevelHigh, c.Level)
	assert.Contains(t, c.Reason, "投诉")
	assert.Equal(t, "a1", c.ContentID)
	assert.Equal(t, models.SourceMediaArticle, c.ContentType)
	assert.Equal(t, "k1", c.RuleID)
	assert.Equal(t, "rule k1", c.RuleName)
	assert.Equal(t, models.StatusUnhandled, c.Status)
	assert.Empty(t, c.ID)
	assert.True(t, c.CreatedAt.IsZero())
}

func TestEngine_KeywordRule_Fields(t *testing.T) {
	tests := []struct {
		name     string
		record   models.ContentRecord
		terms    []string
		expected string
	}{
		{
			name:     "Title",
			record:   models.NewMediaArticle("a", "body", snapshotAt, models.MediaArticle{Title: "Recall announced"}),
			terms:    []string{"Recall"},
			expected: "Matched keywords: Recall",
		},
		{
			name: "Summary",
			record: models.NewMediaArticle("a", "body", snapshotAt, models.MediaArticle{}).
				WithEnrichment(models.Enrichment{Summary: "用户集中维权"}),
			terms:    []string{"维权"},
			expected: "Matched keywords: 维权",
		},
		{
			name:     "Post topic tags",
			record:   models.NewSocialPost("p", "body", snapshotAt, models.SocialPost{TopicTags: []string{"#质量问题#"}}),
			terms:    []string{"质量"},
			expected: "Matched keywords: 质量",
		},
		{
			name:     "Multiple terms listed once",
			record:   models.NewSocialPost("p", "投诉 曝光 投诉", snapshotAt, models.SocialPost{}),
			terms:    []string{"投诉", "曝光", "投诉", "召回"},
			expected: "Matched keywords: 投诉, 曝光",
		},
		{
			name:     "Case sensitive",
			record:   models.NewSocialPost("p", "recall announced", snapshotAt, models.SocialPost{}),
			terms:    []string{"Recall"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := NewEngine().Evaluate(
				[]models.WarningRule{keywordRule("k", models.LevelLow, tt.terms...)},
				[]models.ContentRecord{tt.record},
				models.Statistics{GeneratedAt: snapshotAt},
			)
			if tt.expected == "" {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Equal(t, tt.expected, candidates[0].Reason)
		})
	}
}

func TestEngine_SentimentRule(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		direction models.Direction
		score     int
		triggers  bool
	}{
		{"Below threshold", 40, models.TriggerBelow, 25, true},
		{"Above threshold not adverse", 40, models.TriggerBelow, 55, false},
		{"Equal does not trigger", 40, models.TriggerBelow, 40, false},
		{"Zero score", 40, models.TriggerBelow, 0, true},
		{"Above direction", 80, models.TriggerAbove, 90, true},
		{"Above direction not reached", 80, models.TriggerAbove, 70, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := NewEngine().Evaluate(
				[]models.WarningRule{sentimentRule("s", tt.threshold, tt.direction)},
				[]models.ContentRecord{enriched("r1", snapshotAt, models.SentimentNegative, tt.score)},
				models.Statistics{GeneratedAt: snapshotAt},
			)
			if !tt.triggers {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Contains(t, candidates[0].Reason, fmt.Sprintf("%d", tt.score))
			assert.Contains(t, candidates[0].Reason, fmt.Sprintf("%d", tt.threshold))
		})
	}
}

func TestEngine_SentimentRule_SkipsUnanalyzed(t *testing.T) {
	record := models.NewSocialPost("p", "text", snapshotAt, models.SocialPost{})
	candidates := NewEngine().Evaluate(
		[]models.WarningRule{sentimentRule("s", 40, models.TriggerBelow)},
		[]models.ContentRecord{record},
		models.Statistics{GeneratedAt: snapshotAt},
	)
	assert.Empty(t, candidates)
}

func TestEngine_VolumeRule(t *testing.T) {
	var records []models.ContentRecord
	for i := 0; i < 12; i++ {
		records = append(records, enriched(fmt.Sprintf("r%02d", i), snapshotAt.Add(-time.Duration(i)*time.Hour), models.SentimentNegative, 20))
	}
	// outside the window
	records = append(records, enriched("old", snapshotAt.Add(-48*time.Hour), models.SentimentNegative, 20))

	rule := models.WarningRule{
		ID: "v1", Name: "volume", Type: models.RuleVolume, Level: models.LevelMedium, Enabled: true,
		Config: models.RuleConfig{Volume: &models.VolumeConfig{Threshold: 10, WindowHours: 24}},
	}

	candidates := NewEngine().Evaluate([]models.WarningRule{rule}, records, models.Statistics{GeneratedAt: snapshotAt})
	require.Len(t, candidates, 1)
	assert.Equal(t, "r00", candidates[0].ContentID, "most recent record is the representative")
	assert.Contains(t, candidates[0].Reason, "12")

	rule.Config.Volume.Threshold = 13
	assert.Empty(t, NewEngine().Evaluate([]models.WarningRule{rule}, records, models.Statistics{GeneratedAt: snapshotAt}))
}

func TestEngine_VolumeRule_Filters(t *testing.T) {
	records := []models.ContentRecord{
		enriched("n1", snapshotAt.Add(-time.Hour), models.SentimentNegative, 20),
		enriched("n2", snapshotAt.Add(-2*time.Hour), models.SentimentNegative, 20),
		enriched("p1", snapshotAt.Add(-30*time.Minute), models.SentimentPositive, 80),
		models.NewMediaArticle("a1", "text", snapshotAt, models.MediaArticle{}),
	}

	rule := models.WarningRule{
		ID: "v", Name: "negative volume", Type: models.RuleVolume, Level: models.LevelHigh, Enabled: true,
		Config: models.RuleConfig{Volume: &models.VolumeConfig{Threshold: 2, Sentiment: models.SentimentNegative}},
	}

	candidates := NewEngine().Evaluate([]models.WarningRule{rule}, records, models.Statistics{GeneratedAt: snapshotAt})
	require.Len(t, candidates, 1)
	assert.Equal(t, "n1", candidates[0].ContentID)

	rule.Config.Volume = &models.VolumeConfig{Threshold: 2, Source: models.SourceMediaArticle}
	assert.Empty(t, NewEngine().Evaluate([]models.WarningRule{rule}, records, models.Statistics{GeneratedAt: snapshotAt}))
}

func TestEngine_SpeedRule(t *testing.T) {
	records := []models.ContentRecord{
		enriched("r1", snapshotAt.Add(-time.Hour), models.SentimentNeutral, 50),
		enriched("r2", snapshotAt.Add(-time.Minute), models.SentimentNeutral, 50),
		enriched("r0", snapshotAt.Add(-time.Minute), models.SentimentNeutral, 50),
	}
	rule := models.WarningRule{
		ID: "sp", Name: "speed", Type: models.RuleSpeed, Level: models.LevelLow, Enabled: true,
		Config: models.RuleConfig{Speed: &models.SpeedConfig{Threshold: 5}},
	}

	tests := []struct {
		name      string
		today     int
		yesterday int
		triggers  bool
	}{
		{"Increase meets threshold", 15, 10, true},
		{"Increase below threshold", 14, 10, false},
		{"Decrease", 3, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := models.Statistics{GeneratedAt: snapshotAt, TodayCount: tt.today, YesterdayCount: tt.yesterday}
			candidates := NewEngine().Evaluate([]models.WarningRule{rule}, records, stats)
			if !tt.triggers {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Equal(t, "r0", candidates[0].ContentID, "ties on time resolve to the lowest id")
		})
	}
}

func TestEngine_SkipsDisabledAndInvalidRules(t *testing.T) {
	record := enriched("r1", snapshotAt, models.SentimentNegative, 10)
	record.Content = "投诉"

	disabled := keywordRule("disabled", models.LevelHigh, "投诉")
	disabled.Enabled = false

	missingConfig := models.WarningRule{ID: "broken", Name: "broken", Type: models.RuleSentiment, Level: models.LevelHigh, Enabled: true}
	noDirection := sentimentRule("nodir", 40, "")

	valid := keywordRule("valid", models.LevelLow, "投诉")

	candidates := NewEngine().Evaluate(
		[]models.WarningRule{disabled, missingConfig, noDirection, valid},
		[]models.ContentRecord{record},
		models.Statistics{GeneratedAt: snapshotAt},
	)

	require.Len(t, candidates, 1)
	assert.Equal(t, "valid", candidates[0].RuleID)
}

func TestEngine_Idempotent(t *testing.T) {
	records := []models.ContentRecord{
		enriched("r1", snapshotAt.Add(-time.Hour), models.SentimentNegative, 15),
		enriched("r2", snapshotAt.Add(-2*time.Hour), models.SentimentNegative, 35),
	}
	records[0].Content = "投诉"
	rules := append(DefaultRules(snapshotAt), sentimentRule("s", 40, models.TriggerBelow))
	stats := models.Statistics{GeneratedAt: snapshotAt, TodayCount: 2}

	engine := NewEngine()
	first := engine.Evaluate(rules, records, stats)
	second := engine.Evaluate(rules, records, stats)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		rule  models.WarningRule
		valid bool
	}{
		{"Valid keyword", keywordRule("k", models.LevelHigh, "投诉"), true},
		{"Empty terms", keywordRule("k", models.LevelHigh, "", ""), false},
		{"Unknown level", keywordRule("k", "critical", "投诉"), false},
		{"Missing name", models.WarningRule{ID: "x", Type: models.RuleSpeed, Level: models.LevelLow,
			Config: models.RuleConfig{Speed: &models.SpeedConfig{Threshold: 1}}}, false},
		{"Sentiment out of range", sentimentRule("s", 120, models.TriggerBelow), false},
		{"Sentiment without direction", sentimentRule("s", 40, ""), false},
		{"Volume zero threshold", models.WarningRule{ID: "v", Name: "v", Type: models.RuleVolume, Level: models.LevelLow,
			Config: models.RuleConfig{Volume: &models.VolumeConfig{}}}, false},
		{"Volume bad filter", models.WarningRule{ID: "v", Name: "v", Type: models.RuleVolume, Level: models.LevelLow,
			Config: models.RuleConfig{Volume: &models.VolumeConfig{Threshold: 1, Sentiment: "angry"}}}, false},
		{"Speed missing config", models.WarningRule{ID: "s", Name: "s", Type: models.RuleSpeed, Level: models.LevelLow}, false},
		{"Unknown type", models.WarningRule{ID: "u", Name: "u", Type: "trend", Level: models.LevelLow}, false},
		{"Other sub-shapes ignored", models.WarningRule{ID: "s", Name: "s", Type: models.RuleSpeed, Level: models.LevelLow,
			Config: models.RuleConfig{
				Speed:   &models.SpeedConfig{Threshold: 3},
				Keyword: &models.KeywordConfig{},
			}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rule)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRuleConfig))

			var ruleErr *InvalidRuleConfigError
			require.True(t, errors.As(err, &ruleErr))
			assert.Equal(t, tt.rule.ID, ruleErr.RuleID)
		})
	}
}

func TestDefaultRules_AreValid(t *testing.T) {
	rules := DefaultRules(snapshotAt)
	require.NotEmpty(t, rules)

	ids := make(map[string]bool)
	for _, rule := range rules {
		assert.NoError(t, Validate(rule), rule.ID)
		assert.True(t, rule.Enabled)
		assert.False(t, ids[rule.ID], "duplicate id %s", rule.ID)
		ids[rule.ID] = true
	}
}
