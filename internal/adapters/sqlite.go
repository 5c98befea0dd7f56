package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go-dbsync/internal/models"

	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) vendor() string     { return models.DataSourceTypeSQLite }
func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) dsn(ep Endpoint) (string, error) {
	if ep.Database == "" {
		return "", &ConfigurationError{Field: "database", Reason: "sqlite needs a file path or :memory:"}
	}
	return ep.Database, nil
}

// configure pins the pool to one connection: sqlite serialises writers and a
// :memory: database only exists on the connection that created it.
func (sqliteDialect) configure(ctx context.Context, db *sql.DB, ep Endpoint) error {
	db.SetMaxOpenConns(1)
	_, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	return err
}

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d sqliteDialect) quoteTable(ep Endpoint, table string) string { return d.quote(table) }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) containsExpr(column, ph string) string {
	return fmt.Sprintf("CAST(%s AS TEXT) LIKE %s ESCAPE '!'", column, ph)
}

func (d sqliteDialect) upsertSuffix(key string, update []string) string {
	if len(update) == 0 {
		return fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", d.quote(key))
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.quote(c), d.quote(c))
	}
	return fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", d.quote(key), strings.Join(sets, ", "))
}

func (sqliteDialect) tables(ctx context.Context, db *sql.DB, ep Endpoint) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (d sqliteDialect) schema(ctx context.Context, db *sql.DB, ep Endpoint, table string) ([]models.Column, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+d.quote(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []models.Column{}
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		cols = append(cols, column(name, dataType, notNull == 0, def, pk > 0))
	}
	return cols, rows.Err()
}
