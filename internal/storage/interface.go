package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// ErrNotFound is returned when a record, rule or alert id is unknown
var ErrNotFound = errors.New("not found")

// RecordStore holds content records. ListRecords with an empty source type
// returns every record, most recently published first.
type RecordStore interface {
	ListRecords(ctx context.Context, sourceType models.SourceType) ([]models.ContentRecord, error)
	GetRecord(ctx context.Context, id string) (models.ContentRecord, error)
	UpsertRecords(ctx context.Context, records []models.ContentRecord) error
	DeleteRecords(ctx context.Context, ids ...string) (int, error)
	ClearRecords(ctx context.Context) error
}

// RuleStore holds warning rules
type RuleStore interface {
	ListRules(ctx context.Context) ([]models.WarningRule, error)
	GetRule(ctx context.Context, id string) (models.WarningRule, error)
	CreateRule(ctx context.Context, rule models.WarningRule) error
	UpdateRule(ctx context.Context, rule models.WarningRule) error
	DeleteRule(ctx context.Context, id string) error
}

// AlertStore holds alert records. ListAlerts returns the newest first.
type AlertStore interface {
	ListAlerts(ctx context.Context) ([]models.AlertRecord, error)
	GetAlert(ctx context.Context, id string) (models.AlertRecord, error)
	CreateAlert(ctx context.Context, alert models.AlertRecord) error
	UpdateAlert(ctx context.Context, alert models.AlertRecord) error
	DeleteAlert(ctx context.Context, id string) error
}

// Store combines the record, rule and alert stores
type Store interface {
	RecordStore
	RuleStore
	AlertStore
	Close() error
}

// Archive defines the contract for storing generated report files
type Archive interface {
	Store(ctx context.Context, filename string, data []byte) error
	Retrieve(ctx context.Context, filename string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, filename string) error
}

// checkReportName rejects names that are empty or carry a directory part
func checkReportName(name string) error {
	if name == "" || name == "." || name == ".." || name != path.Base(name) || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("invalid report name %q", name)
	}
	return nil
}
