package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/alerts"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/enrichment"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/notifications"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/rules"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/statistics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
)

const (
	reportHotKeywords = 10
	reportTopSources  = 5
	reportNegative    = 5
)

// Suggester produces a remediation suggestion for a candidate alert
type Suggester interface {
	SuggestRemediation(ctx context.Context, alert models.AlertRecord, record models.ContentRecord) (string, error)
}

// Ensure the AI client can serve as a Suggester
var _ Suggester = (*ai.Client)(nil)

// Service runs the enrichment and evaluation passes over the record store
// and produces periodic reports
type Service struct {
	config              *config.Config
	store               storage.Store
	archive             storage.Archive
	notificationService notifications.NotificationInterface
	suggester           Suggester

	orchestrator *enrichment.Orchestrator
	engine       *rules.Engine
	alerts       *alerts.Manager
	aggregator   *statistics.Aggregator

	metrics *Metrics
	mu      sync.RWMutex
	runMu   sync.Mutex
	writeMu sync.Mutex
}

// Metrics holds pipeline run metrics
type Metrics struct {
	TotalRecords       int            `json:"total_records"`
	LastRun            time.Time      `json:"last_run"`
	LastRunDuration    string         `json:"last_run_duration"`
	RunCount           int            `json:"run_count"`
	Enriched           int            `json:"enriched"`
	EnrichmentFailures int            `json:"enrichment_failures"`
	CandidateAlerts    int            `json:"candidate_alerts"`
	AdmittedAlerts     int            `json:"admitted_alerts"`
	SuppressedAlerts   int            `json:"suppressed_alerts"`
	OpenAlerts         int            `json:"open_alerts"`
	SourceMetrics      map[string]int `json:"source_metrics"`
	SentimentBreakdown map[string]int `json:"sentiment_breakdown"`
	ErrorCount         int            `json:"error_count"`
	LastError          string         `json:"last_error,omitempty"`
}

// EvaluationSummary describes one evaluation pass
type EvaluationSummary struct {
	Candidates int                  `json:"candidates"`
	Admitted   []models.AlertRecord `json:"admitted"`
	Suppressed int                  `json:"suppressed"`
	Notified   int                  `json:"notified"`
}

// RunSummary describes one full pipeline run
type RunSummary struct {
	Enrichment enrichment.Summary `json:"enrichment"`
	Evaluation EvaluationSummary  `json:"evaluation"`
	Duration   string             `json:"duration"`
}

// NewService creates a new pipeline service. archive and suggester may be nil.
func NewService(
	cfg *config.Config,
	store storage.Store,
	archive storage.Archive,
	notificationService notifications.NotificationInterface,
	enricher ai.Enricher,
	suggester Suggester,
) *Service {
	return &Service{
		config:              cfg,
		store:               store,
		archive:             archive,
		notificationService: notificationService,
		suggester:           suggester,
		orchestrator: enrichment.NewOrchestrator(enricher, enrichment.Options{
			MaxBatchSize: cfg.EnrichBatchSize,
			Concurrency:  cfg.EnrichConcurrency,
			CallInterval: cfg.EnrichInterval,
		}),
		engine:     rules.NewEngine(),
		alerts:     alerts.NewManager(store),
		aggregator: statistics.NewAggregator(cfg.Location(), cfg.StatsWindowDays),
		metrics: &Metrics{
			SourceMetrics:      make(map[string]int),
			SentimentBreakdown: make(map[string]int),
		},
	}
}

// WithClock replaces the time source used for statistics and alert timestamps
func (s *Service) WithClock(now func() time.Time) *Service {
	s.aggregator.WithClock(now)
	s.alerts.WithClock(now)
	return s
}

// Alerts returns the lifecycle manager all alert writes go through
func (s *Service) Alerts() *alerts.Manager {
	return s.alerts
}

// Store returns the underlying record, rule and alert store
func (s *Service) Store() storage.Store {
	return s.store
}

// SeedDefaultRules installs the default rule set when no rules exist yet
func (s *Service) SeedDefaultRules(ctx context.Context) (int, error) {
	existing, err := s.store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	seeded := 0
	for _, rule := range rules.DefaultRules(time.Now()) {
		if err := s.store.CreateRule(ctx, rule); err != nil {
			return seeded, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
		}
		seeded++
	}

	logrus.Infof("Seeded %d default warning rules", seeded)
	return seeded, nil
}

// RunEnrichment enriches records without an enrichment block, or every record
// when reenrich is set. Successful records are written back; failures are
// reported per record id in the summary.
func (s *Service) RunEnrichment(ctx context.Context, reenrich bool) (enrichment.Summary, error) {
	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		return enrichment.Summary{}, fmt.Errorf("failed to list records: %w", err)
	}

	var pending []models.ContentRecord
	for _, record := range records {
		if reenrich || !record.Analyzed() {
			pending = append(pending, record)
		}
	}

	if len(pending) == 0 {
		logrus.Info("No records pending enrichment")
		return enrichment.Summarize(nil), nil
	}

	logrus.Infof("Enriching %d records", len(pending))
	outcomes := s.orchestrator.EnrichAll(ctx, pending)

	if enriched := enrichment.Enriched(outcomes); len(enriched) > 0 {
		if err := s.writeBack(ctx, enriched); err != nil {
			return enrichment.Summary{}, fmt.Errorf("failed to store enriched records: %w", err)
		}
	}

	summary := enrichment.Summarize(outcomes)
	logrus.WithFields(logrus.Fields{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Enrichment pass completed")

	return summary, nil
}

// RunEvaluation evaluates the enabled rules against the current records,
// admits the candidates through the lifecycle manager, flags the alerting
// records and notifies admitted alerts at or above the notify level.
func (s *Service) RunEvaluation(ctx context.Context) (EvaluationSummary, error) {
	var summary EvaluationSummary

	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		return summary, fmt.Errorf("failed to list records: %w", err)
	}

	ruleSet, err := s.store.ListRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list rules: %w", err)
	}

	stats := s.aggregator.Compute(records)
	candidates := s.engine.Evaluate(ruleSet, records, stats)
	summary.Candidates = len(candidates)

	byID := make(map[string]models.ContentRecord, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}
	flagged := make(map[string]models.ContentRecord)

	for _, candidate := range candidates {
		record := byID[candidate.ContentID]
		candidate = s.withSuggestion(ctx, candidate, record)

		admission, err := s.alerts.Admit(ctx, candidate)
		if err != nil {
			return summary, err
		}
		if admission.Suppressed {
			summary.Suppressed++
			continue
		}

		summary.Admitted = append(summary.Admitted, admission.Alert)

		if current, ok := flagged[record.ID]; ok {
			record = current
		}
		if record.Analyzed() {
			flagged[record.ID] = record.WithAlert(admission.Alert.Level)
		}

		if admission.Alert.Level.AtLeast(s.config.NotifyLevel) {
			alert := admission.Alert
			if err := s.notificationService.SendAlert(&alert); err != nil {
				logrus.WithField("alert_id", alert.ID).Errorf("Failed to send alert notification: %v", err)
			} else {
				summary.Notified++
			}
		}
	}

	if len(flagged) > 0 {
		updates := make([]models.ContentRecord, 0, len(flagged))
		for _, record := range records {
			if updated, ok := flagged[record.ID]; ok {
				updates = append(updates, updated)
			}
		}
		if err := s.writeBack(ctx, updates); err != nil {
			return summary, fmt.Errorf("failed to flag alerting records: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"candidates": summary.Candidates,
		"admitted":   len(summary.Admitted),
		"suppressed": summary.Suppressed,
	}).Info("Evaluation pass completed")

	return summary, nil
}

// withSuggestion attaches an AI remediation suggestion to candidates at or
// above the suggestion level that would not be suppressed. Failures leave
// the candidate without a suggestion.
func (s *Service) withSuggestion(ctx context.Context, candidate models.AlertRecord, record models.ContentRecord) models.AlertRecord {
	if s.suggester == nil || !s.config.AISuggestions || !candidate.Level.AtLeast(s.config.SuggestionLevel) {
		return candidate
	}

	if _, open, err := s.alerts.FindOpen(ctx, candidate); err != nil || open {
		return candidate
	}

	suggestion, err := s.suggester.SuggestRemediation(ctx, candidate, record)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"rule_id":    candidate.RuleID,
			"content_id": candidate.ContentID,
		}).Warnf("Remediation suggestion failed: %v", err)
		return candidate
	}

	candidate.Suggestion = suggestion
	return candidate
}

// RunPipeline runs an enrichment pass followed by an evaluation pass.
// Concurrent calls are serialized.
func (s *Service) RunPipeline(ctx context.Context) (RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	logrus.Info("Starting pipeline run")

	var run RunSummary
	var err error

	run.Enrichment, err = s.RunEnrichment(ctx, false)
	if err == nil {
		run.Evaluation, err = s.RunEvaluation(ctx)
	}
	run.Duration = time.Since(start).String()

	s.updateMetrics(ctx, run, time.Since(start), err)

	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		logrus.Errorf("Pipeline run failed: %v", err)
		return run, err
	}

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	logrus.Infof("Pipeline run completed in %v", time.Since(start))
	return run, nil
}

// Statistics computes a snapshot over the current record set
func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		return models.Statistics{}, fmt.Errorf("failed to list records: %w", err)
	}
	return s.aggregator.Compute(records), nil
}

// ImportRecords stores records as given, replacing any with the same id
func (s *Service) ImportRecords(ctx context.Context, records []models.ContentRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.store.UpsertRecords(ctx, records)
}

// DeleteRecords removes records by id and returns how many existed
func (s *Service) DeleteRecords(ctx context.Context, ids ...string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.store.DeleteRecords(ctx, ids...)
}

// writeBack stores pass results for records whose imported fields are still
// what the pass read. Records deleted or re-imported since then are left alone.
func (s *Service) writeBack(ctx context.Context, updates []models.ContentRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := make([]models.ContentRecord, 0, len(updates))
	for _, update := range updates {
		stored, err := s.store.GetRecord(ctx, update.ID)
		if errors.Is(err, storage.ErrNotFound) {
			logrus.WithField("record_id", update.ID).Info("Record deleted during pipeline pass, result dropped")
			continue
		}
		if err != nil {
			return err
		}
		if !sameImport(stored, update) {
			logrus.WithField("record_id", update.ID).Info("Record re-imported during pipeline pass, result dropped")
			continue
		}
		current = append(current, update)
	}

	if len(current) == 0 {
		return nil
	}
	return s.store.UpsertRecords(ctx, current)
}

// sameImport compares everything but the enrichment block
func sameImport(a, b models.ContentRecord) bool {
	a.Enrichment, b.Enrichment = nil, nil
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// SearchRecords returns records mentioning query in their title, body,
// summary or tags, optionally narrowed to one source type
func (s *Service) SearchRecords(ctx context.Context, query string, sourceType models.SourceType) ([]models.ContentRecord, error) {
	records, err := s.store.ListRecords(ctx, sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	matches := []models.ContentRecord{}
	for _, record := range records {
		if record.Mentions(query) {
			matches = append(matches, record)
		}
	}
	return matches, nil
}

// HotKeywords aggregates the most frequent AI keywords
func (s *Service) HotKeywords(ctx context.Context, limit int) ([]models.HotKeyword, error) {
	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return statistics.HotKeywords(records, limit), nil
}

// GenerateReport builds a report for period ("daily" or "weekly", empty for
// the configured schedule), archives it when an archive is configured and
// sends it through the notification channels.
func (s *Service) GenerateReport(ctx context.Context, period string) (*models.Report, error) {
	if period == "" {
		period = s.config.ReportSchedule
	}
	if period != "daily" && period != "weekly" {
		return nil, fmt.Errorf("unknown report period %q", period)
	}

	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	open, err := s.alerts.Open(ctx)
	if err != nil {
		return nil, err
	}

	report := s.buildReport(records, open, period)

	if err := s.archiveReport(ctx, report); err != nil {
		logrus.Errorf("Failed to archive report: %v", err)
	}

	if err := s.notificationService.SendReport(report); err != nil {
		return report, fmt.Errorf("failed to send report: %w", err)
	}

	return report, nil
}

// BuildReport assembles a report from records and open alerts without
// archiving or sending it
func (s *Service) BuildReport(records []models.ContentRecord, open []models.AlertRecord, period string) *models.Report {
	return s.buildReport(records, open, period)
}

func (s *Service) buildReport(records []models.ContentRecord, open []models.AlertRecord, period string) *models.Report {
	stats := s.aggregator.Compute(records)
	return &models.Report{
		GeneratedAt:     stats.GeneratedAt,
		Period:          period,
		Statistics:      stats,
		HotKeywords:     statistics.HotKeywords(records, reportHotKeywords),
		TopSources:      statistics.TopSources(records, reportTopSources),
		OpenAlerts:      open,
		NegativeRecords: statistics.MostNegative(records, reportNegative),
	}
}

func (s *Service) archiveReport(ctx context.Context, report *models.Report) error {
	if s.archive == nil {
		return nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	filename := fmt.Sprintf("report-%s-%s.json", report.Period, report.GeneratedAt.UTC().Format("2006-01-02-15-04-05"))
	return s.archive.Store(ctx, filename, data)
}

func (s *Service) updateMetrics(ctx context.Context, run RunSummary, duration time.Duration, runErr error) {
	records, err := s.store.ListRecords(ctx, "")
	if err != nil {
		logrus.Warnf("Failed to refresh record metrics: %v", err)
	}
	open, err := s.alerts.Open(ctx)
	if err != nil {
		logrus.Warnf("Failed to refresh alert metrics: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastRun = time.Now()
	s.metrics.LastRunDuration = duration.String()
	s.metrics.RunCount++
	s.metrics.Enriched += run.Enrichment.Succeeded
	s.metrics.EnrichmentFailures += run.Enrichment.Failed
	s.metrics.CandidateAlerts += run.Evaluation.Candidates
	s.metrics.AdmittedAlerts += len(run.Evaluation.Admitted)
	s.metrics.SuppressedAlerts += run.Evaluation.Suppressed
	s.metrics.OpenAlerts = len(open)

	if runErr != nil {
		s.metrics.ErrorCount++
		s.metrics.LastError = runErr.Error()
	}

	if records == nil {
		return
	}

	s.metrics.TotalRecords = len(records)
	s.metrics.SourceMetrics = make(map[string]int)
	s.metrics.SentimentBreakdown = make(map[string]int)

	for _, record := range records {
		s.metrics.SourceMetrics[string(record.Type)]++
		if record.Analyzed() {
			s.metrics.SentimentBreakdown[string(record.Enrichment.Sentiment)]++
		}
	}

	for _, source := range []models.SourceType{models.SourceMediaArticle, models.SourceSocialPost} {
		metrics.RecordsTotal.WithLabelValues(string(source)).Set(float64(s.metrics.SourceMetrics[string(source)]))
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
