package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/metrics"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
)

// ErrInvalidTransition is matched by every rejected status change
var ErrInvalidTransition = errors.New("invalid alert status transition")

// InvalidTransitionError describes a rejected status change
type InvalidTransitionError struct {
	ID   string
	From models.AlertStatus
	To   models.AlertStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var allowed = map[models.AlertStatus][]models.AlertStatus{
	models.StatusUnhandled:  {models.StatusProcessing, models.StatusResolved, models.StatusIgnored},
	models.StatusProcessing: {models.StatusResolved, models.StatusIgnored},
}

// CanTransition reports whether an alert in status from may move to status to
func CanTransition(from, to models.AlertStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Admission is the outcome of admitting a candidate. When Suppressed is set,
// Alert is the zero value and DuplicateOf names the open alert that blocked it.
type Admission struct {
	Alert       models.AlertRecord `json:"alert"`
	Suppressed  bool               `json:"suppressed"`
	DuplicateOf string             `json:"duplicate_of,omitempty"`
}

// Manager owns alert admission and status transitions. All alert writes go
// through it.
type Manager struct {
	store storage.AlertStore
	now   func() time.Time
	newID func() string
	mu    sync.Mutex
}

// NewManager creates a lifecycle manager over store
func NewManager(store storage.AlertStore) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Admit stores candidate as a new unhandled alert unless an open alert
// already exists for the same rule and content record.
func (m *Manager) Admit(ctx context.Context, candidate models.AlertRecord) (Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open, found, err := m.findOpen(ctx, candidate)
	if err != nil {
		return Admission{}, err
	}
	if found {
		metrics.AlertAdmissions.WithLabelValues("suppressed").Inc()
		logrus.WithFields(logrus.Fields{
			"rule_id":    candidate.RuleID,
			"content_id": candidate.ContentID,
			"open_alert": open.ID,
		}).Debug("Suppressed duplicate alert")
		return Admission{Suppressed: true, DuplicateOf: open.ID}, nil
	}

	now := m.now()
	alert := candidate
	alert.ID = m.newID()
	alert.Status = models.StatusUnhandled
	alert.CreatedAt = now
	alert.UpdatedAt = now

	if err := m.store.CreateAlert(ctx, alert); err != nil {
		return Admission{}, fmt.Errorf("failed to store alert: %w", err)
	}

	metrics.AlertAdmissions.WithLabelValues("admitted").Inc()
	logrus.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"rule_id":    alert.RuleID,
		"content_id": alert.ContentID,
		"level":      alert.Level,
	}).Info("Alert raised")

	return Admission{Alert: alert}, nil
}

// FindOpen returns the open alert that would suppress candidate, if any
func (m *Manager) FindOpen(ctx context.Context, candidate models.AlertRecord) (models.AlertRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOpen(ctx, candidate)
}

func (m *Manager) findOpen(ctx context.Context, candidate models.AlertRecord) (models.AlertRecord, bool, error) {
	existing, err := m.store.ListAlerts(ctx)
	if err != nil {
		return models.AlertRecord{}, false, fmt.Errorf("failed to list alerts: %w", err)
	}

	for _, alert := range existing {
		if alert.RuleID == candidate.RuleID && alert.ContentID == candidate.ContentID && !alert.Status.Terminal() {
			return alert, true, nil
		}
	}
	return models.AlertRecord{}, false, nil
}

// Transition moves alert id to status to. Rejected changes leave the stored
// alert untouched and return an error matching ErrInvalidTransition.
func (m *Manager) Transition(ctx context.Context, id string, to models.AlertStatus) (models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return models.AlertRecord{}, err
	}

	from := alert.Status
	if !CanTransition(from, to) {
		metrics.AlertTransitions.WithLabelValues(string(from), string(to), "rejected").Inc()
		return alert, &InvalidTransitionError{ID: id, From: from, To: to}
	}

	alert.Status = to
	alert.UpdatedAt = m.now()
	if err := m.store.UpdateAlert(ctx, alert); err != nil {
		return models.AlertRecord{}, fmt.Errorf("failed to update alert: %w", err)
	}

	metrics.AlertTransitions.WithLabelValues(string(from), string(to), "accepted").Inc()
	logrus.WithFields(logrus.Fields{
		"alert_id": id,
		"from":     from,
		"to":       to,
	}).Info("Alert status changed")

	return alert, nil
}

// List returns alerts newest first, filtered by status when one is given
func (m *Manager) List(ctx context.Context, status models.AlertStatus) ([]models.AlertRecord, error) {
	all, err := m.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	if status == "" {
		return all, nil
	}

	filtered := make([]models.AlertRecord, 0, len(all))
	for _, alert := range all {
		if alert.Status == status {
			filtered = append(filtered, alert)
		}
	}
	return filtered, nil
}

// Open returns alerts that are neither resolved nor ignored
func (m *Manager) Open(ctx context.Context) ([]models.AlertRecord, error) {
	all, err := m.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	open := make([]models.AlertRecord, 0, len(all))
	for _, alert := range all {
		if !alert.Status.Terminal() {
			open = append(open, alert)
		}
	}
	return open, nil
}
