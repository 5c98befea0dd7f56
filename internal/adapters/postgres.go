package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go-dbsync/internal/models"

	"github.com/lib/pq"
)

type postgresDialect struct{}

func (postgresDialect) vendor() string     { return models.DataSourceTypePostgreSQL }
func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) dsn(ep Endpoint) (string, error) {
	port := ep.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + pqValue(ep.Host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + pqValue(ep.Database),
		"sslmode=" + pqValue(ep.extraString("sslmode", "disable")),
	}
	if ep.Username != "" {
		parts = append(parts, "user="+pqValue(ep.Username))
	}
	if ep.Password != "" {
		parts = append(parts, "password="+pqValue(ep.Password))
	}
	return strings.Join(parts, " "), nil
}

// pqValue quotes a keyword/value connection string value.
func pqValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func (postgresDialect) configure(ctx context.Context, db *sql.DB, ep Endpoint) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return nil
}

func (postgresDialect) quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (postgresDialect) quoteTable(ep Endpoint, table string) string {
	if schema := ep.extraString("schema", ""); schema != "" {
		return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(table)
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) containsExpr(column, ph string) string {
	return fmt.Sprintf("CAST(%s AS TEXT) ILIKE %s ESCAPE '!'", column, ph)
}

func (d postgresDialect) upsertSuffix(key string, update []string) string {
	if len(update) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", d.quote(key))
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", d.quote(c), d.quote(c))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", d.quote(key), strings.Join(sets, ", "))
}

func (postgresDialect) tables(ctx context.Context, db *sql.DB, ep Endpoint) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, ep.extraString("schema", "public"))
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (postgresDialect) schema(ctx context.Context, db *sql.DB, ep Endpoint, table string) ([]models.Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON tc.constraint_name = k.constraint_name
					AND tc.table_schema = k.table_schema
					AND tc.table_name = k.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, ep.extraString("schema", "public"), table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []models.Column{}
	for rows.Next() {
		var name, dataType, nullable string
		var def sql.NullString
		var pk bool
		if err := rows.Scan(&name, &dataType, &nullable, &def, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		cols = append(cols, column(name, dataType, nullable == "YES", def, pk))
	}
	return cols, rows.Err()
}

func column(name, dataType string, nullable bool, def sql.NullString, pk bool) models.Column {
	c := models.Column{Name: name, Type: dataType, Nullable: nullable, PrimaryKey: pk}
	if def.Valid {
		c.Default = def.String
	}
	return c
}
