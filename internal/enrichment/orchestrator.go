package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrBatchLimit marks records beyond the per-invocation ceiling
	ErrBatchLimit = errors.New("record exceeds the batch size limit")
	// ErrEmptyContent marks records with no text to analyze
	ErrEmptyContent = errors.New("record has no content")
	// ErrInvalidRecord marks records without a known source type
	ErrInvalidRecord = errors.New("record has an unknown source type")
	// ErrCancelled marks records not processed because the run was cancelled
	ErrCancelled = errors.New("enrichment cancelled before the record was processed")
)

// Options tunes batch size, concurrency and call spacing
type Options struct {
	MaxBatchSize int
	Concurrency  int
	CallInterval time.Duration
}

// DefaultOptions returns sequential processing of up to 5 records with one second between calls
func DefaultOptions() Options {
	return Options{
		MaxBatchSize: 5,
		Concurrency:  1,
		CallInterval: time.Second,
	}
}

// Outcome is the result for one input record. Index is the record's position
// in the input, whatever order calls completed in.
type Outcome struct {
	Index    int
	RecordID string
	Record   models.ContentRecord
	Result   ai.EnrichmentResult
	Err      error
}

// Succeeded reports whether the record was enriched
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Orchestrator drives an Enricher over batches of records
type Orchestrator struct {
	enricher ai.Enricher
	opts     Options
	limiter  *rate.Limiter
}

// NewOrchestrator creates a new batch orchestrator. Non-positive batch size or
// concurrency fall back to the defaults.
func NewOrchestrator(enricher ai.Enricher, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaults.MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.CallInterval < 0 {
		opts.CallInterval = 0
	}

	limit := rate.Inf
	if opts.CallInterval > 0 {
		limit = rate.Every(opts.CallInterval)
	}

	return &Orchestrator{
		enricher: enricher,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Options returns the effective options
func (o *Orchestrator) Options() Options {
	return o.opts
}

// EnrichBatch enriches up to MaxBatchSize records and returns one outcome per
// input record in input order. It never fails as a whole: records past the
// ceiling, empty records, failed calls and records not started before ctx was
// cancelled are all reported as failed outcomes. Calls already in flight when
// ctx is cancelled run to completion.
func (o *Orchestrator) EnrichBatch(ctx context.Context, records []models.ContentRecord) []Outcome {
	outcomes := make([]Outcome, len(records))
	for i, record := range records {
		outcomes[i] = Outcome{Index: i, RecordID: record.ID, Record: record}
	}

	limit := len(records)
	if limit > o.opts.MaxBatchSize {
		limit = o.opts.MaxBatchSize
		logrus.Warnf("Batch of %d records exceeds limit of %d, %d records not processed", len(records), limit, len(records)-limit)
		for i := limit; i < len(records); i++ {
			outcomes[i].Err = ErrBatchLimit
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)

	for i := 0; i < limit; i++ {
		i := i
		record := records[i]

		if err := checkRecord(record); err != nil {
			outcomes[i].Err = err
			continue
		}

		if ctx.Err() != nil {
			outcomes[i].Err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			continue
		}

		g.Go(func() error {
			if err := o.limiter.Wait(ctx); err != nil {
				outcomes[i].Err = fmt.Errorf("%w: %v", ErrCancelled, err)
				return nil
			}
			outcomes[i] = o.enrichOne(context.WithoutCancel(ctx), i, record)
			return nil
		})
	}

	_ = g.Wait()

	for _, outcome := range outcomes {
		recordOutcome(outcome)
	}

	return outcomes
}

// EnrichAll splits records into MaxBatchSize chunks and runs EnrichBatch on
// each. Outcome indexes refer to positions in records.
func (o *Orchestrator) EnrichAll(ctx context.Context, records []models.ContentRecord) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for start := 0; start < len(records); start += o.opts.MaxBatchSize {
		end := start + o.opts.MaxBatchSize
		if end > len(records) {
			end = len(records)
		}

		for _, outcome := range o.EnrichBatch(ctx, records[start:end]) {
			outcome.Index += start
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes
}

func checkRecord(record models.ContentRecord) error {
	if !record.Type.Valid() {
		return ErrInvalidRecord
	}
	if strings.TrimSpace(record.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

func (o *Orchestrator) enrichOne(ctx context.Context, index int, record models.ContentRecord) Outcome {
	outcome := Outcome{Index: index, RecordID: record.ID, Record: record}

	start := time.Now()
	result, err := o.enricher.Enrich(ctx, record.Content, record.Type)
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		outcome.Err = err
		return outcome
	}

	result.RecordID = record.ID
	result.SourceType = record.Type
	outcome.Result = result
	outcome.Record = record.WithEnrichment(result.Enrichment())
	return outcome
}

func recordOutcome(outcome Outcome) {
	switch {
	case outcome.Err == nil:
		metrics.EnrichmentOutcomes.WithLabelValues("success").Inc()
		for _, field := range outcome.Result.Degraded() {
			metrics.DegradedFields.WithLabelValues(field).Inc()
		}
		logrus.WithField("record_id", outcome.RecordID).Debug("Record enriched")
	case errors.Is(outcome.Err, ErrCancelled), errors.Is(outcome.Err, ErrBatchLimit):
		metrics.EnrichmentOutcomes.WithLabelValues("skipped").Inc()
		logrus.WithField("record_id", outcome.RecordID).Debugf("Record not processed: %v", outcome.Err)
	default:
		metrics.EnrichmentOutcomes.WithLabelValues("failed").Inc()
		logrus.WithFields(logrus.Fields{
			"record_id": outcome.RecordID,
			"error":     outcome.Err,
		}).Warn("Skipping record, enrichment failed")
	}
}

// Merge returns records in their original order with each successful
// outcome's enriched record in place of the original
func Merge(records []models.ContentRecord, outcomes []Outcome) []models.ContentRecord {
	merged := append([]models.ContentRecord(nil), records...)
	for _, outcome := range outcomes {
		if !outcome.Succeeded() || outcome.Index < 0 || outcome.Index >= len(merged) {
			continue
		}
		if merged[outcome.Index].ID != outcome.RecordID {
			continue
		}
		merged[outcome.Index] = outcome.Record
	}
	return merged
}

// Enriched returns the records of successful outcomes in input order
func Enriched(outcomes []Outcome) []models.ContentRecord {
	var records []models.ContentRecord
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			records = append(records, outcome.Record)
		}
	}
	return records
}

// Summary counts outcomes and keeps the failure reason per record id
type Summary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Summarize builds a Summary over outcomes
func Summarize(outcomes []Outcome) Summary {
	summary := Summary{Total: len(outcomes), Failures: make(map[string]string)}
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			summary.Succeeded++
			continue
		}
		summary.Failed++
		summary.Failures[outcome.RecordID] = outcome.Err.Error()
	}
	return summary
}
