package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/sirupsen/logrus"
)

// Input limits in runes, applied before a prompt is sent
const (
	sentimentInputLimit     = 500
	keywordInputLimit       = 800
	summaryInputLimit       = 1000
	comprehensiveInputLimit = 1000
	categoryInputLimit      = 500
	suggestionInputLimit    = 500

	suggestionMaxLength  = 300
	defaultTopK          = 10
	defaultSummaryLength = 200
)

// SentimentResult is the outcome of sentiment classification
type SentimentResult struct {
	Label      models.Sentiment `json:"label"`
	Score      int              `json:"score"`
	Confidence float64          `json:"confidence"`
	degradation
}

// CategoryResult is the outcome of categorization
type CategoryResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	degradation
}

// EnrichmentResult is the full analysis of one piece of content. RecordID is
// empty until the caller attaches it.
type EnrichmentResult struct {
	RecordID   string            `json:"record_id"`
	SourceType models.SourceType `json:"source_type"`
	Sentiment  SentimentResult   `json:"sentiment"`
	Keywords   []models.Keyword  `json:"keywords"`
	Summary    string            `json:"summary"`
	Category   string            `json:"category"`
	Topics     []string          `json:"topics"`
	AnalyzedAt time.Time         `json:"analyzed_at"`
	degradation
}

// Enrichment converts the result into the block stored on a record
func (r EnrichmentResult) Enrichment() models.Enrichment {
	return models.Enrichment{
		Sentiment:      r.Sentiment.Label,
		SentimentScore: r.Sentiment.Score,
		Confidence:     r.Sentiment.Confidence,
		Keywords:       append([]models.Keyword{}, r.Keywords...),
		Summary:        r.Summary,
		Category:       r.Category,
		Topics:         append([]string{}, r.Topics...),
		AnalyzedAt:     r.AnalyzedAt,
	}
}

// Client runs analysis prompts through a Transport and turns the untrusted
// replies into fully populated results. It only fails when the transport does.
type Client struct {
	transport     Transport
	now           func() time.Time
	topK          int
	summaryLength int
}

// NewClient creates a new AI enrichment client
func NewClient(transport Transport) *Client {
	return &Client{
		transport:     transport,
		now:           time.Now,
		topK:          defaultTopK,
		summaryLength: defaultSummaryLength,
	}
}

func describe(st models.SourceType) string {
	if st == models.SourceSocialPost {
		return "social media post"
	}
	return "news article"
}

const sentimentSystemPrompt = `You are a public opinion analyst. Classify the sentiment of the %s you are given objectively.
- positive: approval, praise, support or other favourable feeling
- neutral: factual statement without clear feeling
- negative: criticism, complaint, dissatisfaction or other unfavourable feeling
Reply with JSON only.`

const sentimentUserPrompt = `Classify the sentiment of this %s:

%s

Reply in exactly this JSON shape:
{"sentiment": "positive|neutral|negative", "score": 0-100 integer where higher is more positive, "confidence": 0.0-1.0, "reason": "short justification"}`

// ClassifySentiment labels content as positive, neutral or negative with a 0-100 score
func (c *Client) ClassifySentiment(ctx context.Context, content string, sourceType models.SourceType) (SentimentResult, error) {
	reply, err := c.transport.Call(ctx,
		fmt.Sprintf(sentimentSystemPrompt, describe(sourceType)),
		fmt.Sprintf(sentimentUserPrompt, describe(sourceType), truncate(content, sentimentInputLimit)),
	)
	if err != nil {
		return SentimentResult{}, fmt.Errorf("sentiment classification failed: %w", err)
	}

	result := sentimentFromObject(parseObject(reply), "sentiment", "score")
	logDegraded("sentiment", result.Degraded())
	return result, nil
}

func sentimentFromObject(obj map[string]json.RawMessage, labelKey, scoreKey string) SentimentResult {
	var result SentimentResult
	result.Label = take(&result.degradation, "sentiment", parseLabel(obj[labelKey]))
	result.Score = take(&result.degradation, "score", parseScore(obj[scoreKey]))
	result.Confidence = take(&result.degradation, "confidence", parseConfidence(obj["confidence"], defaultConfidence))
	return result
}

// ExtractKeywords returns up to topK keywords ordered by weight. topK <= 0 uses the default.
func (c *Client) ExtractKeywords(ctx context.Context, content string, topK int) ([]models.Keyword, error) {
	if topK <= 0 {
		topK = c.topK
	}

	reply, err := c.transport.Call(ctx,
		"You extract the most important keywords from text. Reply with a JSON array only.",
		fmt.Sprintf(`Extract the %d most important keywords from this text:

%s

Reply in exactly this JSON shape, weight is 1-10 importance:
[{"word": "keyword", "weight": 8}]`, topK, truncate(content, keywordInputLimit)),
	)
	if err != nil {
		return nil, fmt.Errorf("keyword extraction failed: %w", err)
	}

	return parseKeywords(parseArray(reply), topK), nil
}

// Summarize condenses content to at most maxLength runes. maxLength <= 0 uses the default.
func (c *Client) Summarize(ctx context.Context, content string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = c.summaryLength
	}

	reply, err := c.transport.Call(ctx,
		"You write concise, faithful summaries. Reply with the summary text only.",
		fmt.Sprintf("Summarize this text in at most %d characters:\n\n%s", maxLength, truncate(content, summaryInputLimit)),
	)
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	return truncate(stripFences(reply), maxLength), nil
}

const categoryUserPrompt = `Pick the category that best fits this text:

%s

Categories: complaint, suggestion, inquiry, praise, neutral_report, other.
Reply in exactly this JSON shape:
{"category": "one of the categories", "confidence": 0.0-1.0}`

// Categorize assigns one of the known content categories
func (c *Client) Categorize(ctx context.Context, content string) (CategoryResult, error) {
	reply, err := c.transport.Call(ctx,
		"You classify public opinion content into categories. Reply with JSON only.",
		fmt.Sprintf(categoryUserPrompt, truncate(content, categoryInputLimit)),
	)
	if err != nil {
		return CategoryResult{}, fmt.Errorf("categorization failed: %w", err)
	}

	obj := parseObject(reply)
	var result CategoryResult
	result.Category = take(&result.degradation, "category", parseCategory(obj["category"]))
	result.Confidence = take(&result.degradation, "confidence", parseConfidence(obj["confidence"], defaultCategoryConfidence))
	logDegraded("category", result.Degraded())
	return result, nil
}

const comprehensiveUserPrompt = `Analyze this %s:

%s

Reply in exactly this JSON shape:
{
  "sentiment": "positive|neutral|negative",
  "sentimentScore": 0-100 integer where higher is more positive,
  "confidence": 0.0-1.0,
  "keywords": [{"word": "keyword", "weight": 1-10}],
  "summary": "summary in at most %d characters",
  "category": "complaint|suggestion|inquiry|praise|neutral_report|other",
  "topics": ["topic"]
}`

// Enrich performs sentiment, keywords, summary and category in one round trip.
// Each field is defaulted independently when the reply is malformed.
func (c *Client) Enrich(ctx context.Context, content string, sourceType models.SourceType) (EnrichmentResult, error) {
	reply, err := c.transport.Call(ctx,
		fmt.Sprintf("You are a public opinion analyst reviewing a %s. Reply with JSON only.", describe(sourceType)),
		fmt.Sprintf(comprehensiveUserPrompt, describe(sourceType), truncate(content, comprehensiveInputLimit), c.summaryLength),
	)
	if err != nil {
		return EnrichmentResult{}, fmt.Errorf("comprehensive analysis failed: %w", err)
	}

	obj := parseObject(reply)
	scoreKey := "sentimentScore"
	if _, ok := obj[scoreKey]; !ok {
		scoreKey = "score"
	}

	result := EnrichmentResult{
		SourceType: sourceType,
		Sentiment:  sentimentFromObject(obj, "sentiment", scoreKey),
		AnalyzedAt: c.now(),
	}
	result.fields = append(result.fields, result.Sentiment.fields...)
	result.Keywords = take(&result.degradation, "keywords", parseKeywordField(obj["keywords"], c.topK))
	result.Summary = take(&result.degradation, "summary", parseSummary(obj["summary"], c.summaryLength))
	result.Category = take(&result.degradation, "category", parseCategory(obj["category"]))
	result.Topics = take(&result.degradation, "topics", parseStrings(obj["topics"]))

	logDegraded("comprehensive", result.Degraded())
	return result, nil
}

// SuggestRemediation asks for a short handling recommendation for an alert
func (c *Client) SuggestRemediation(ctx context.Context, alert models.AlertRecord, record models.ContentRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert level: %s\n", alert.Level)
	fmt.Fprintf(&b, "Rule: %s\n", alert.RuleName)
	fmt.Fprintf(&b, "Reason: %s\n", alert.Reason)
	if title := record.Title(); title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	fmt.Fprintf(&b, "Content: %s\n", truncate(record.Content, suggestionInputLimit))

	reply, err := c.transport.Call(ctx,
		"You are a crisis communication advisor. Give a concrete, actionable handling recommendation in plain text.",
		fmt.Sprintf("Recommend how to handle this public opinion alert in at most %d characters.\n\n%s", suggestionMaxLength, b.String()),
	)
	if err != nil {
		return "", fmt.Errorf("remediation suggestion failed: %w", err)
	}

	return truncate(stripFences(reply), suggestionMaxLength), nil
}

// SentimentEnricher enriches with a sentiment classification only, leaving
// keywords and summary empty and the category at its default
type SentimentEnricher struct {
	client *Client
}

// NewSentimentEnricher creates an enricher backed by ClassifySentiment
func NewSentimentEnricher(client *Client) *SentimentEnricher {
	return &SentimentEnricher{client: client}
}

// Enrich implements Enricher
func (s *SentimentEnricher) Enrich(ctx context.Context, content string, sourceType models.SourceType) (EnrichmentResult, error) {
	sentiment, err := s.client.ClassifySentiment(ctx, content, sourceType)
	if err != nil {
		return EnrichmentResult{}, err
	}

	result := EnrichmentResult{
		SourceType: sourceType,
		Sentiment:  sentiment,
		Keywords:   []models.Keyword{},
		Category:   defaultCategory,
		Topics:     []string{},
		AnalyzedAt: s.client.now(),
	}
	result.fields = sentiment.Degraded()
	return result, nil
}

func logDegraded(operation string, fields []string) {
	if len(fields) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"operation": operation,
		"fields":    strings.Join(fields, ","),
	}).Debug("AI response incomplete, using defaults")
}
