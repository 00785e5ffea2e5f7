package ai

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

const (
	defaultLabel              = models.SentimentNeutral
	defaultScore              = 50
	defaultConfidence         = 0.8
	defaultCategory           = "other"
	defaultCategoryConfidence = 0.7
)

// Categories the model is asked to choose from
var knownCategories = map[string]bool{
	"complaint":      true,
	"suggestion":     true,
	"inquiry":        true,
	"praise":         true,
	"neutral_report": true,
	"other":          true,
}

// localizedCategories maps the Chinese labels models commonly answer with
var localizedCategories = map[string]string{
	"投诉":   "complaint",
	"建议":   "suggestion",
	"咨询":   "inquiry",
	"表扬":   "praise",
	"中性报道": "neutral_report",
	"其他":   "other",
}

type fieldState int

const (
	fieldParsed fieldState = iota
	fieldDefaulted
)

// parsedField carries a value together with whether it came from the model
// output or from the field's default
type parsedField[T any] struct {
	Value T
	State fieldState
}

func parsed[T any](v T) parsedField[T] {
	return parsedField[T]{Value: v, State: fieldParsed}
}

func defaulted[T any](v T) parsedField[T] {
	return parsedField[T]{Value: v, State: fieldDefaulted}
}

// degradation lists the fields of a result that fell back to defaults
type degradation struct {
	fields []string
}

// Degraded returns the names of fields that were absent or malformed in the
// model output and replaced with defaults
func (d degradation) Degraded() []string {
	return append([]string(nil), d.fields...)
}

func take[T any](d *degradation, name string, f parsedField[T]) T {
	if f.State == fieldDefaulted {
		d.fields = append(d.fields, name)
	}
	return f.Value
}

// extractJSON returns the first balanced, valid JSON value delimited by
// open/close found anywhere in text, or "" when there is none
func extractJSON(text string, open, close byte) string {
	offset := 0
	for {
		idx := strings.IndexByte(text[offset:], open)
		if idx < 0 {
			return ""
		}
		start := offset + idx
		if end := matchClosing(text, start, open, close); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		offset = start + 1
	}
}

func matchClosing(text string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseObject decodes the first JSON object in text. A response without one
// yields an empty map.
func parseObject(text string) map[string]json.RawMessage {
	obj := make(map[string]json.RawMessage)
	if raw := extractJSON(text, '{', '}'); raw != "" {
		_ = json.Unmarshal([]byte(raw), &obj)
	}
	return obj
}

// parseArray decodes the first JSON array in text. A response without one
// yields an empty slice.
func parseArray(text string) []json.RawMessage {
	var arr []json.RawMessage
	if raw := extractJSON(text, '[', ']'); raw != "" {
		_ = json.Unmarshal([]byte(raw), &arr)
	}
	return arr
}

// absent reports a missing or null field
func absent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func parseLabel(raw json.RawMessage) parsedField[models.Sentiment] {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return defaulted(defaultLabel)
	}
	label := models.Sentiment(strings.ToLower(strings.TrimSpace(s)))
	if !label.Valid() {
		return defaulted(defaultLabel)
	}
	return parsed(label)
}

func parseScore(raw json.RawMessage) parsedField[int] {
	if absent(raw) {
		return defaulted(defaultScore)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || f < 0 || f > 100 {
		return defaulted(defaultScore)
	}
	return parsed(int(math.Round(f)))
}

func parseConfidence(raw json.RawMessage, fallback float64) parsedField[float64] {
	if absent(raw) {
		return defaulted(fallback)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || f < 0 || f > 1 {
		return defaulted(fallback)
	}
	return parsed(f)
}

func parseCategory(raw json.RawMessage) parsedField[string] {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return defaulted(defaultCategory)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return defaulted(defaultCategory)
	}
	if mapped, ok := localizedCategories[s]; ok {
		return parsed(mapped)
	}
	if lower := strings.ToLower(s); knownCategories[lower] {
		return parsed(lower)
	}
	return parsed(s)
}

func parseSummary(raw json.RawMessage, maxLength int) parsedField[string] {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return defaulted("")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return defaulted("")
	}
	return parsed(truncate(s, maxLength))
}

func parseStrings(raw json.RawMessage) parsedField[[]string] {
	if absent(raw) {
		return defaulted([]string{})
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return defaulted([]string{})
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return parsed(out)
}

func parseKeywordField(raw json.RawMessage, topK int) parsedField[[]models.Keyword] {
	if absent(raw) {
		return defaulted([]models.Keyword{})
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return defaulted([]models.Keyword{})
	}
	return parsed(parseKeywords(items, topK))
}

// parseKeywords keeps well-formed entries, clamps weights to 1-10 and orders
// them by weight descending. Entries may be objects or bare strings.
func parseKeywords(items []json.RawMessage, topK int) []models.Keyword {
	keywords := make([]models.Keyword, 0, len(items))
	for _, item := range items {
		var entry struct {
			Word   *string  `json:"word"`
			Weight *float64 `json:"weight"`
		}
		if err := json.Unmarshal(item, &entry); err == nil && entry.Word != nil {
			word := strings.TrimSpace(*entry.Word)
			if word == "" {
				continue
			}
			weight := 1
			if entry.Weight != nil && !math.IsNaN(*entry.Weight) {
				weight = clampWeight(int(math.Round(*entry.Weight)))
			}
			keywords = append(keywords, models.Keyword{Word: word, Weight: weight})
			continue
		}

		var word string
		if err := json.Unmarshal(item, &word); err == nil && strings.TrimSpace(word) != "" {
			keywords = append(keywords, models.Keyword{Word: strings.TrimSpace(word), Weight: 1})
		}
	}

	sort.SliceStable(keywords, func(i, j int) bool {
		return keywords[i].Weight > keywords[j].Weight
	})

	if topK > 0 && len(keywords) > topK {
		keywords = keywords[:topK]
	}
	return keywords
}

func clampWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > 10 {
		return 10
	}
	return w
}

// stripFences removes a surrounding markdown code fence
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// truncate cuts s to at most n runes. n <= 0 disables the limit.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
