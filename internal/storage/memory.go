package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
)

// MemoryStore keeps records, rules and alerts in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ContentRecord
	rules   map[string]models.WarningRule
	alerts  map[string]models.AlertRecord
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.ContentRecord),
		rules:   make(map[string]models.WarningRule),
		alerts:  make(map[string]models.AlertRecord),
	}
}

func (m *MemoryStore) ListRecords(ctx context.Context, sourceType models.SourceType) ([]models.ContentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]models.ContentRecord, 0, len(m.records))
	for _, record := range m.records {
		if sourceType != "" && record.Type != sourceType {
			continue
		}
		records = append(records, record.Clone())
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].PublishedAt.Equal(records[j].PublishedAt) {
			return records[i].PublishedAt.After(records[j].PublishedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, id string) (models.ContentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return models.ContentRecord{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return record.Clone(), nil
}

func (m *MemoryStore) UpsertRecords(ctx context.Context, records []models.ContentRecord) error {
	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("record id is required")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		m.records[record.ID] = record.Clone()
	}
	return nil
}

func (m *MemoryStore) DeleteRecords(ctx context.Context, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) ClearRecords(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]models.ContentRecord)
	return nil
}

func (m *MemoryStore) ListRules(ctx context.Context) ([]models.WarningRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]models.WarningRule, 0, len(m.rules))
	for _, rule := range m.rules {
		rules = append(rules, cloneRule(rule))
	}

	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func (m *MemoryStore) GetRule(ctx context.Context, id string) (models.WarningRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return models.WarningRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return cloneRule(rule), nil
}

func (m *MemoryStore) CreateRule(ctx context.Context, rule models.WarningRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.ID]; ok {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	m.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (m *MemoryStore) UpdateRule(ctx context.Context, rule models.WarningRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.ID]; !ok {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	m.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (m *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(m.rules, id)
	return nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]models.AlertRecord, 0, len(m.alerts))
	for _, alert := range m.alerts {
		alerts = append(alerts, alert)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

func (m *MemoryStore) GetAlert(ctx context.Context, id string) (models.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return models.AlertRecord{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

func (m *MemoryStore) CreateAlert(ctx context.Context, alert models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[alert.ID]; ok {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MemoryStore) UpdateAlert(ctx context.Context, alert models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[alert.ID]; !ok {
		return fmt.Errorf("alert %s: %w", alert.ID, ErrNotFound)
	}
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MemoryStore) DeleteAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	delete(m.alerts, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneRule(rule models.WarningRule) models.WarningRule {
	cfg := rule.Config
	if cfg.Keyword != nil {
		k := *cfg.Keyword
		k.Terms = append([]string(nil), k.Terms...)
		cfg.Keyword = &k
	}
	if cfg.Sentiment != nil {
		s := *cfg.Sentiment
		cfg.Sentiment = &s
	}
	if cfg.Volume != nil {
		v := *cfg.Volume
		cfg.Volume = &v
	}
	if cfg.Speed != nil {
		s := *cfg.Speed
		cfg.Speed = &s
	}
	rule.Config = cfg
	return rule
}
