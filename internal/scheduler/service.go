package scheduler

import (
	"context"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	pipelineTimeout = 30 * time.Minute
	reportTimeout   = 5 * time.Minute
)

// Pipeline is the work the scheduler triggers
type Pipeline interface {
	RunPipeline(ctx context.Context) (monitoring.RunSummary, error)
	GenerateReport(ctx context.Context, period string) (*models.Report, error)
}

// Ensure the monitoring service satisfies Pipeline
var _ Pipeline = (*monitoring.Service)(nil)

// Service handles scheduling of pipeline runs and periodic reports
type Service struct {
	config   *config.Config
	pipeline Pipeline
	cron     *cron.Cron
}

// NewService creates a new scheduler service. Schedules are evaluated in the
// configured time zone.
func NewService(cfg *config.Config, pipeline Pipeline) *Service {
	return &Service{
		config:   cfg,
		pipeline: pipeline,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(cfg.Location())),
	}
}

// ReportExpression returns the cron expression for the configured report schedule
func ReportExpression(schedule string) string {
	switch schedule {
	case "daily":
		// Run daily at 9 AM
		return "0 0 9 * * *"
	default:
		// Run weekly on Monday at 9 AM
		return "0 0 9 * * MON"
	}
}

// Start registers the jobs and starts the cron runner
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.PipelineSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()

		logrus.Info("Starting scheduled pipeline run")
		if _, err := s.pipeline.RunPipeline(ctx); err != nil {
			logrus.Errorf("Scheduled pipeline run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(ReportExpression(s.config.ReportSchedule), func() {
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()

		logrus.Infof("Generating scheduled %s report", s.config.ReportSchedule)
		if _, err := s.pipeline.GenerateReport(ctx, s.config.ReportSchedule); err != nil {
			logrus.Errorf("Scheduled report failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: pipeline %q, %s reports", s.config.PipelineSchedule, s.config.ReportSchedule)
	return nil
}

// Entries returns the number of registered jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
