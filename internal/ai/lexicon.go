package ai

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

const (
	lexiconConfidence    = 0.85
	lexiconStep          = 10
	lexiconSummaryLength = 100
)

var (
	lexiconNegative = []string{
		"问题", "投诉", "差", "烂", "失望", "糟糕", "不满",
		"bad", "terrible", "awful", "hate", "broken", "fail", "problem", "complaint",
	}
	lexiconPositive = []string{
		"好", "优秀", "满意", "棒", "赞", "支持", "喜欢",
		"good", "great", "excellent", "love", "awesome", "helpful", "solved",
	}

	// runs of two or more Han characters, or Latin words of three letters or more
	tokenPattern = regexp.MustCompile(`\p{Han}{2,}|[A-Za-z][A-Za-z0-9]{2,}`)
)

// LexiconEnricher is an offline Enricher based on word lists and term
// frequency. It never fails and needs no credentials.
type LexiconEnricher struct {
	now  func() time.Time
	topK int
}

// NewLexiconEnricher creates a new offline enricher
func NewLexiconEnricher() *LexiconEnricher {
	return &LexiconEnricher{now: time.Now, topK: defaultTopK}
}

// Enrich implements Enricher
func (l *LexiconEnricher) Enrich(ctx context.Context, content string, sourceType models.SourceType) (EnrichmentResult, error) {
	if err := ctx.Err(); err != nil {
		return EnrichmentResult{}, err
	}

	return EnrichmentResult{
		SourceType: sourceType,
		Sentiment:  lexiconSentiment(content),
		Keywords:   lexiconKeywords(content, l.topK),
		Summary:    lexiconSummary(content),
		Category:   defaultCategory,
		Topics:     []string{},
		AnalyzedAt: l.now(),
	}, nil
}

// lexiconSentiment moves a neutral score of 50 by a fixed step for every
// listed word present in the content
func lexiconSentiment(content string) SentimentResult {
	lower := strings.ToLower(content)
	score := defaultScore

	for _, word := range lexiconNegative {
		if strings.Contains(lower, word) {
			score -= lexiconStep
		}
	}
	for _, word := range lexiconPositive {
		if strings.Contains(lower, word) {
			score += lexiconStep
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	label := models.SentimentNeutral
	if score >= 60 {
		label = models.SentimentPositive
	} else if score <= 40 {
		label = models.SentimentNegative
	}

	return SentimentResult{Label: label, Score: score, Confidence: lexiconConfidence}
}

func lexiconKeywords(content string, topK int) []models.Keyword {
	counts := make(map[string]int)
	var order []string
	for _, token := range tokenPattern.FindAllString(content, -1) {
		token = strings.ToLower(token)
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	keywords := make([]models.Keyword, 0, len(order))
	for _, word := range order {
		keywords = append(keywords, models.Keyword{Word: word, Weight: clampWeight(counts[word])})
	}
	sort.SliceStable(keywords, func(i, j int) bool {
		return counts[keywords[i].Word] > counts[keywords[j].Word]
	})

	if topK > 0 && len(keywords) > topK {
		keywords = keywords[:topK]
	}
	return keywords
}

func lexiconSummary(content string) string {
	content = strings.TrimSpace(content)
	summary := truncate(content, lexiconSummaryLength)
	if summary != content {
		summary += "..."
	}
	return summary
}
