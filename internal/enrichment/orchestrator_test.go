package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnricher scores every record at 30 and fails for the configured contents
type fakeEnricher struct {
	mu      sync.Mutex
	fail    map[string]bool
	delay   map[string]time.Duration
	onCall  func(content string)
	calls   []string
	active  int32
	maxSeen int32
}

func (f *fakeEnricher) Enrich(ctx context.Context, content string, sourceType models.SourceType) (ai.EnrichmentResult, error) {
	current := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, content)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(content)
	}
	if d := f.delay[content]; d > 0 {
		time.Sleep(d)
	}
	if f.fail[content] {
		return ai.EnrichmentResult{}, &ai.TransportError{Provider: "fake", Err: errors.New("boom")}
	}

	return ai.EnrichmentResult{
		SourceType: sourceType,
		Sentiment:  ai.SentimentResult{Label: models.SentimentNegative, Score: 30, Confidence: 0.9},
		Keywords:   []models.Keyword{{Word: content, Weight: 5}},
		Summary:    "summary of " + content,
		Category:   "complaint",
		AnalyzedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

func makeRecords(n int) []models.ContentRecord {
	records := make([]models.ContentRecord, n)
	for i := range records {
		records[i] = models.NewSocialPost(
			fmt.Sprintf("r%d", i),
			fmt.Sprintf("content-%d", i),
			time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
			models.SocialPost{UserName: "user"},
		)
	}
	return records
}

func fastOptions() Options {
	return Options{MaxBatchSize: 5, Concurrency: 1, CallInterval: 0}
}

func TestOrchestrator_EnrichBatch_PartialFailure(t *testing.T) {
	enricher := &fakeEnricher{fail: map[string]bool{"content-2": true}}
	orchestrator := NewOrchestrator(enricher, fastOptions())

	records := makeRecords(5)
	outcomes := orchestrator.EnrichBatch(context.Background(), records)
	require.Len(t, outcomes, 5)

	summary := Summarize(outcomes)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures, "r2")

	assert.False(t, outcomes[2].Succeeded())
	assert.ErrorIs(t, outcomes[2].Err, ai.ErrEnrichmentUnavailable)
	assert.Nil(t, outcomes[2].Record.Enrichment)

	for i, outcome := range outcomes {
		assert.Equal(t, i, outcome.Index)
		assert.Equal(t, records[i].ID, outcome.RecordID)
		if i == 2 {
			continue
		}
		require.True(t, outcome.Succeeded())
		assert.Equal(t, records[i].ID, outcome.Result.RecordID)
		require.NotNil(t, outcome.Record.Enrichment)
		assert.Equal(t, 30, outcome.Record.Enrichment.SentimentScore)
		assert.Equal(t, "summary of "+records[i].Content, outcome.Record.Enrichment.Summary)
	}

	assert.Nil(t, records[0].Enrichment, "input records are not modified")
}

func TestOrchestrator_EnrichBatch_Limit(t *testing.T) {
	enricher := &fakeEnricher{}
	orchestrator := NewOrchestrator(enricher, fastOptions())

	outcomes := orchestrator.EnrichBatch(context.Background(), makeRecords(7))
	require.Len(t, outcomes, 7)
	assert.Len(t, enricher.calls, 5)
	assert.ErrorIs(t, outcomes[5].Err, ErrBatchLimit)
	assert.ErrorIs(t, outcomes[6].Err, ErrBatchLimit)
	assert.Equal(t, "r6", outcomes[6].RecordID)
}

func TestOrchestrator_EnrichBatch_InvalidRecords(t *testing.T) {
	enricher := &fakeEnricher{}
	orchestrator := NewOrchestrator(enricher, fastOptions())

	records := makeRecords(3)
	records[0].Content = "   "
	records[1].Type = "forum"

	outcomes := orchestrator.EnrichBatch(context.Background(), records)
	assert.ErrorIs(t, outcomes[0].Err, ErrEmptyContent)
	assert.ErrorIs(t, outcomes[1].Err, ErrInvalidRecord)
	assert.True(t, outcomes[2].Succeeded())
	assert.Equal(t, []string{"content-2"}, enricher.calls)
}

func TestOrchestrator_EnrichBatch_PreservesInputOrder(t *testing.T) {
	enricher := &fakeEnricher{delay: map[string]time.Duration{
		"content-0": 60 * time.Millisecond,
		"content-1": 30 * time.Millisecond,
	}}
	orchestrator := NewOrchestrator(enricher, Options{MaxBatchSize: 5, Concurrency: 3})

	records := makeRecords(4)
	outcomes := orchestrator.EnrichBatch(context.Background(), records)

	for i, outcome := range outcomes {
		require.True(t, outcome.Succeeded())
		assert.Equal(t, records[i].ID, outcome.RecordID)
		assert.Equal(t, records[i].ID, outcome.Record.ID)
		assert.Equal(t, records[i].Content, outcome.Record.Enrichment.Keywords[0].Word)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&enricher.maxSeen), int32(3))
	assert.Greater(t, atomic.LoadInt32(&enricher.maxSeen), int32(1))
}

func TestOrchestrator_EnrichBatch_CallInterval(t *testing.T) {
	enricher := &fakeEnricher{}
	orchestrator := NewOrchestrator(enricher, Options{MaxBatchSize: 5, Concurrency: 1, CallInterval: 40 * time.Millisecond})

	start := time.Now()
	outcomes := orchestrator.EnrichBatch(context.Background(), makeRecords(3))
	elapsed := time.Since(start)

	assert.Equal(t, 3, Summarize(outcomes).Succeeded)
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
}

func TestOrchestrator_EnrichBatch_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enricher := &fakeEnricher{}
	enricher.onCall = func(content string) {
		if content == "content-1" {
			cancel()
		}
	}
	orchestrator := NewOrchestrator(enricher, fastOptions())

	outcomes := orchestrator.EnrichBatch(ctx, makeRecords(5))
	require.Len(t, outcomes, 5)

	assert.True(t, outcomes[0].Succeeded())
	assert.True(t, outcomes[1].Succeeded(), "in-flight call completes after cancellation")
	for _, outcome := range outcomes[2:] {
		assert.ErrorIs(t, outcome.Err, ErrCancelled)
	}
	assert.Len(t, enricher.calls, 2)
}

func TestOrchestrator_EnrichAll(t *testing.T) {
	enricher := &fakeEnricher{fail: map[string]bool{"content-6": true}}
	orchestrator := NewOrchestrator(enricher, Options{MaxBatchSize: 3})

	records := makeRecords(8)
	outcomes := orchestrator.EnrichAll(context.Background(), records)
	require.Len(t, outcomes, 8)

	for i, outcome := range outcomes {
		assert.Equal(t, i, outcome.Index)
		assert.Equal(t, records[i].ID, outcome.RecordID)
	}
	assert.Equal(t, 7, Summarize(outcomes).Succeeded)

	merged := Merge(records, outcomes)
	require.Len(t, merged, 8)
	for i, record := range merged {
		assert.Equal(t, records[i].ID, record.ID)
		if i == 6 {
			assert.Nil(t, record.Enrichment)
			continue
		}
		assert.NotNil(t, record.Enrichment)
	}
	assert.Len(t, Enriched(outcomes), 7)
}

func TestMerge_ReplacesWholeBlock(t *testing.T) {
	record := makeRecords(1)[0].WithEnrichment(models.Enrichment{
		Sentiment:  models.SentimentPositive,
		Topics:     []string{"stale"},
		IsAlert:    true,
		AlertLevel: models.LevelHigh,
	})

	orchestrator := NewOrchestrator(&fakeEnricher{}, fastOptions())
	outcomes := orchestrator.EnrichBatch(context.Background(), []models.ContentRecord{record})
	merged := Merge([]models.ContentRecord{record}, outcomes)

	require.NotNil(t, merged[0].Enrichment)
	assert.Equal(t, models.SentimentNegative, merged[0].Enrichment.Sentiment)
	assert.Empty(t, merged[0].Enrichment.Topics)
	assert.False(t, merged[0].Enrichment.IsAlert)
	assert.Empty(t, merged[0].Enrichment.AlertLevel)
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	orchestrator := NewOrchestrator(&fakeEnricher{}, Options{CallInterval: -time.Second})
	opts := orchestrator.Options()
	assert.Equal(t, 5, opts.MaxBatchSize)
	assert.Equal(t, 1, opts.Concurrency)
	assert.Equal(t, time.Duration(0), opts.CallInterval)
}
