// Package migrations holds the SQLite schema for records, rules and alerts.
// Files are embedded so the service binary carries its own schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed *.sql
var FS embed.FS

// Run brings the schema in db up to the latest version. A provider is used
// instead of goose's package-level state so several stores can migrate at once.
func Run(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, result := range results {
		logrus.WithFields(logrus.Fields{
			"version":  result.Source.Version,
			"file":     result.Source.Path,
			"duration": result.Duration,
		}).Info("Applied schema migration")
	}
	return nil
}
