package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/robfig/cron/v3"
)

// AI providers
const (
	ProviderZhipu   = "zhipu"
	ProviderOpenAI  = "openai"
	ProviderLexicon = "lexicon"
)

// Enrichment modes
const (
	ModeComprehensive = "comprehensive"
	ModeSentiment     = "sentiment"
)

// Storage drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	PipelineSchedule string // cron expression with a seconds field
	ReportSchedule   string // "daily" or "weekly"
	TimeZone         string
	StatsWindowDays  int

	// AI provider configuration
	AIProvider    string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AITemperature float64
	AITimeout     time.Duration

	// Batch enrichment
	EnrichBatchSize   int
	EnrichConcurrency int
	EnrichInterval    time.Duration
	EnrichMode        string

	// Alerting
	AISuggestions    bool
	SuggestionLevel  models.Level
	NotifyLevel      models.Level
	SeedDefaultRules bool

	// Storage configuration
	StorageDriver    string
	DatabasePath     string
	StorageAccount   string
	StorageContainer string
	ArchiveDir       string

	// Notification configuration
	TeamsWebhookURL    string
	NotificationEmails []string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		PipelineSchedule: getEnv("PIPELINE_SCHEDULE", "0 */15 * * * *"),
		ReportSchedule:   getEnv("REPORT_SCHEDULE", "daily"),
		TimeZone:         getEnv("TIMEZONE", "UTC"),
		StatsWindowDays:  getIntEnv("STATS_WINDOW_DAYS", 7),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", ProviderZhipu)),
		AIAPIKey:      getEnv("AI_API_KEY", ""),
		AIBaseURL:     getEnv("AI_BASE_URL", ""),
		AIModel:       getEnv("AI_MODEL", ""),
		AITemperature: getFloatEnv("AI_TEMPERATURE", 0.3),
		AITimeout:     getDurationEnv("AI_TIMEOUT", 60*time.Second),

		EnrichBatchSize:   getIntEnv("ENRICH_BATCH_SIZE", 5),
		EnrichConcurrency: getIntEnv("ENRICH_CONCURRENCY", 1),
		EnrichInterval:    getDurationEnv("ENRICH_INTERVAL", time.Second),
		EnrichMode:        strings.ToLower(getEnv("ENRICH_MODE", ModeComprehensive)),

		AISuggestions:    getBoolEnv("AI_SUGGESTIONS", true),
		SuggestionLevel:  models.Level(strings.ToLower(getEnv("SUGGESTION_LEVEL", string(models.LevelHigh)))),
		NotifyLevel:      models.Level(strings.ToLower(getEnv("NOTIFY_LEVEL", string(models.LevelMedium)))),
		SeedDefaultRules: getBoolEnv("SEED_DEFAULT_RULES", true),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		DatabasePath:     getEnv("DATABASE_PATH", "sentiment.db"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "reports"),
		ArchiveDir:       getEnv("ARCHIVE_DIR", ""),

		TeamsWebhookURL:    getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmails: getSliceEnv("NOTIFICATION_EMAIL", nil),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AIProvider {
	case ProviderZhipu, ProviderOpenAI:
		if c.AIAPIKey == "" {
			return fmt.Errorf("AI_API_KEY is required for provider %q", c.AIProvider)
		}
	case ProviderLexicon:
	default:
		return fmt.Errorf("AI_PROVIDER must be 'zhipu', 'openai' or 'lexicon'")
	}

	if c.EnrichMode != ModeComprehensive && c.EnrichMode != ModeSentiment {
		return fmt.Errorf("ENRICH_MODE must be 'comprehensive' or 'sentiment'")
	}

	if c.EnrichBatchSize <= 0 {
		return fmt.Errorf("ENRICH_BATCH_SIZE must be positive")
	}

	if c.EnrichConcurrency <= 0 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be positive")
	}

	if c.EnrichInterval < 0 {
		return fmt.Errorf("ENRICH_INTERVAL must not be negative")
	}

	if c.StatsWindowDays <= 0 {
		return fmt.Errorf("STATS_WINDOW_DAYS must be positive")
	}

	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.PipelineSchedule); err != nil {
		return fmt.Errorf("PIPELINE_SCHEDULE is not a valid cron expression: %w", err)
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE is not a valid location: %w", err)
	}

	if !c.SuggestionLevel.Valid() || !c.NotifyLevel.Valid() {
		return fmt.Errorf("SUGGESTION_LEVEL and NOTIFY_LEVEL must be 'high', 'medium' or 'low'")
	}

	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be 'memory' or 'sqlite'")
	}

	if len(c.NotificationEmails) > 0 {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Location returns the configured time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	return defaultValue
}
