package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/migrations"
)

// Fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Ensure SQLite implements Store
var _ Store = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// recordDetails is the JSON shape of the variant-specific columns
type recordDetails struct {
	Article *models.MediaArticle `json:"article,omitempty"`
	Post    *models.SocialPost   `json:"post,omitempty"`
}

// ListRecords returns records of the given type, or all when sourceType is empty.
func (s *SQLite) ListRecords(ctx context.Context, sourceType models.SourceType) ([]models.ContentRecord, error) {
	query := `SELECT id, type, content, published_at, details, enrichment FROM records`
	var args []any
	if sourceType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(sourceType))
	}
	query += ` ORDER BY published_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []models.ContentRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetRecord returns a single record by its ID.
func (s *SQLite) GetRecord(ctx context.Context, id string) (models.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, content, published_at, details, enrichment FROM records WHERE id = ?`, id,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ContentRecord{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return record, err
}

// UpsertRecords inserts or replaces records in a single transaction.
func (s *SQLite) UpsertRecords(ctx context.Context, records []models.ContentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("record id is required")
		}

		details, err := json.Marshal(recordDetails{Article: record.Article, Post: record.Post})
		if err != nil {
			return fmt.Errorf("marshal record %s details: %w", record.ID, err)
		}

		var enrichment *string
		if record.Enrichment != nil {
			data, err := json.Marshal(record.Enrichment)
			if err != nil {
				return fmt.Errorf("marshal record %s enrichment: %w", record.ID, err)
			}
			v := string(data)
			enrichment = &v
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (id, type, content, published_at, details, enrichment, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   type = excluded.type,
			   content = excluded.content,
			   published_at = excluded.published_at,
			   details = excluded.details,
			   enrichment = excluded.enrichment,
			   updated_at = excluded.updated_at`,
			record.ID, string(record.Type), record.Content, formatTime(record.PublishedAt), string(details), enrichment, now,
		)
		if err != nil {
			return fmt.Errorf("upsert record %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteRecords removes the given records and reports how many existed.
func (s *SQLite) DeleteRecords(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ClearRecords removes every record.
func (s *SQLite) ClearRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// ListRules returns all rules, oldest first.
func (s *SQLite) ListRules(ctx context.Context) ([]models.WarningRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, level, enabled, config, created_at, updated_at
		 FROM rules ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := []models.WarningRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id string) (models.WarningRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, level, enabled, config, created_at, updated_at FROM rules WHERE id = ?`, id,
	)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WarningRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, err
}

// CreateRule inserts a new rule.
func (s *SQLite) CreateRule(ctx context.Context, rule models.WarningRule) error {
	config, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("marshal rule config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, type, level, enabled, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(rule.Type), string(rule.Level), boolToInt(rule.Enabled), string(config),
		formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// UpdateRule persists changes to an existing rule.
func (s *SQLite) UpdateRule(ctx context.Context, rule models.WarningRule) error {
	config, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("marshal rule config: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name = ?, type = ?, level = ?, enabled = ?, config = ?, updated_at = ?
		 WHERE id = ?`,
		rule.Name, string(rule.Type), string(rule.Level), boolToInt(rule.Enabled), string(config),
		formatTime(rule.UpdatedAt), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireAffected(res, "rule", rule.ID)
}

// DeleteRule removes a rule. Alerts raised by it keep the denormalized rule name.
func (s *SQLite) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res, "rule", id)
}

// ListAlerts returns all alerts, newest first.
func (s *SQLite) ListAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_id, rule_name, level, content_id, content_type, reason, suggestion, status, created_at, updated_at
		 FROM alerts ORDER BY created_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	alerts := []models.AlertRecord{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetAlert returns a single alert by its ID.
func (s *SQLite) GetAlert(ctx context.Context, id string) (models.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, rule_id, rule_name, level, content_id, content_type, reason, suggestion, status, created_at, updated_at
		 FROM alerts WHERE id = ?`, id,
	)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AlertRecord{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, err
}

// CreateAlert inserts a new alert.
func (s *SQLite) CreateAlert(ctx context.Context, alert models.AlertRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, rule_id, rule_name, level, content_id, content_type, reason, suggestion, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleID, alert.RuleName, string(alert.Level), alert.ContentID, string(alert.ContentType),
		alert.Reason, alert.Suggestion, string(alert.Status), formatTime(alert.CreatedAt), formatTime(alert.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// UpdateAlert persists the mutable fields of an alert: status and updated_at.
func (s *SQLite) UpdateAlert(ctx context.Context, alert models.AlertRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?`,
		string(alert.Status), formatTime(alert.UpdatedAt), alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	return requireAffected(res, "alert", alert.ID)
}

// DeleteAlert removes an alert.
func (s *SQLite) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return requireAffected(res, "alert", id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (models.ContentRecord, error) {
	var r models.ContentRecord
	var typ, published, details string
	var enrichment sql.NullString
	if err := row.Scan(&r.ID, &typ, &r.Content, &published, &details, &enrichment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan record: %w", err)
	}

	r.Type = models.SourceType(typ)
	r.PublishedAt, _ = time.Parse(timeLayout, published)

	var d recordDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return r, fmt.Errorf("decode record %s details: %w", r.ID, err)
	}
	r.Article = d.Article
	r.Post = d.Post

	if enrichment.Valid {
		var e models.Enrichment
		if err := json.Unmarshal([]byte(enrichment.String), &e); err != nil {
			return r, fmt.Errorf("decode record %s enrichment: %w", r.ID, err)
		}
		r.Enrichment = &e
	}
	return r, nil
}

func scanRule(row scannable) (models.WarningRule, error) {
	var r models.WarningRule
	var typ, level, config, created, updated string
	var enabled int
	if err := row.Scan(&r.ID, &r.Name, &typ, &level, &enabled, &config, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan rule: %w", err)
	}

	r.Type = models.RuleType(typ)
	r.Level = models.Level(level)
	r.Enabled = enabled == 1
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	r.UpdatedAt, _ = time.Parse(timeLayout, updated)
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return r, fmt.Errorf("decode rule %s config: %w", r.ID, err)
	}
	return r, nil
}

func scanAlert(row scannable) (models.AlertRecord, error) {
	var a models.AlertRecord
	var level, contentType, status, created, updated string
	err := row.Scan(&a.ID, &a.RuleID, &a.RuleName, &level, &a.ContentID, &contentType,
		&a.Reason, &a.Suggestion, &status, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("scan alert: %w", err)
	}

	a.Level = models.Level(level)
	a.ContentType = models.SourceType(contentType)
	a.Status = models.AlertStatus(status)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	a.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return a, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
