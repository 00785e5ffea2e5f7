package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// ErrInvalidRuleConfig is matched by every rule validation failure
var ErrInvalidRuleConfig = errors.New("invalid rule configuration")

// InvalidRuleConfigError describes why a rule cannot be evaluated
type InvalidRuleConfigError struct {
	RuleID   string
	RuleType models.RuleType
	Reason   string
}

func (e *InvalidRuleConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s rule %q: %s", e.RuleType, e.RuleID, e.Reason)
}

func (e *InvalidRuleConfigError) Is(target error) bool {
	return target == ErrInvalidRuleConfig
}

// Validate checks everything a stored rule needs: a name, a known level and
// the configuration sub-shape for its type
func Validate(rule models.WarningRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return invalid(rule, "name is required")
	}
	return validateForEvaluation(rule)
}

func validateForEvaluation(rule models.WarningRule) error {
	if !rule.Level.Valid() {
		return invalid(rule, fmt.Sprintf("unknown level %q", rule.Level))
	}

	cfg := rule.Config
	switch rule.Type {
	case models.RuleKeyword:
		if cfg.Keyword == nil {
			return invalid(rule, "keyword configuration is missing")
		}
		if len(terms(cfg.Keyword.Terms)) == 0 {
			return invalid(rule, "at least one non-empty term is required")
		}

	case models.RuleSentiment:
		if cfg.Sentiment == nil {
			return invalid(rule, "sentiment configuration is missing")
		}
		if cfg.Sentiment.Threshold < 0 || cfg.Sentiment.Threshold > 100 {
			return invalid(rule, "threshold must be between 0 and 100")
		}
		if cfg.Sentiment.TriggerWhen != models.TriggerBelow && cfg.Sentiment.TriggerWhen != models.TriggerAbove {
			return invalid(rule, "trigger_when must be 'below' or 'above'")
		}

	case models.RuleVolume:
		if cfg.Volume == nil {
			return invalid(rule, "volume configuration is missing")
		}
		if cfg.Volume.Threshold <= 0 {
			return invalid(rule, "threshold must be positive")
		}
		if cfg.Volume.WindowHours < 0 {
			return invalid(rule, "window_hours must not be negative")
		}
		if cfg.Volume.Sentiment != "" && !cfg.Volume.Sentiment.Valid() {
			return invalid(rule, fmt.Sprintf("unknown sentiment filter %q", cfg.Volume.Sentiment))
		}
		if cfg.Volume.Source != "" && !cfg.Volume.Source.Valid() {
			return invalid(rule, fmt.Sprintf("unknown source filter %q", cfg.Volume.Source))
		}

	case models.RuleSpeed:
		if cfg.Speed == nil {
			return invalid(rule, "speed configuration is missing")
		}
		if cfg.Speed.Threshold <= 0 {
			return invalid(rule, "threshold must be positive")
		}

	default:
		return invalid(rule, fmt.Sprintf("unknown rule type %q", rule.Type))
	}

	return nil
}

func invalid(rule models.WarningRule, reason string) error {
	return &InvalidRuleConfigError{RuleID: rule.ID, RuleType: rule.Type, Reason: reason}
}

// terms drops empty entries and duplicates, keeping configured order
func terms(configured []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, term := range configured {
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}
