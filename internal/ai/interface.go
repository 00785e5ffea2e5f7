package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// ErrEnrichmentUnavailable is matched by every transport failure
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// Transport is the single call primitive to an external text-analysis model.
// Implementations perform no retries.
type Transport interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Enricher produces a complete enrichment result for one piece of content
type Enricher interface {
	Enrich(ctx context.Context, content string, sourceType models.SourceType) (EnrichmentResult, error)
}

// Ensure the enrichers implement Enricher
var (
	_ Enricher = (*Client)(nil)
	_ Enricher = (*SentimentEnricher)(nil)
	_ Enricher = (*LexiconEnricher)(nil)
)

// TransportError reports a failed network, auth or quota call
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrEnrichmentUnavailable
}

// TransportConfig holds the settings shared by the remote transports
type TransportConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}
