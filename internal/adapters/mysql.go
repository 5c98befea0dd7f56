package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go-dbsync/internal/models"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func (mysqlDialect) vendor() string     { return models.DataSourceTypeMySQL }
func (mysqlDialect) driverName() string { return "mysql" }

func (mysqlDialect) dsn(ep Endpoint) (string, error) {
	port := ep.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = ep.Username
	cfg.Passwd = ep.Password
	cfg.Net = "tcp"
	cfg.Addr = ep.Host + ":" + strconv.Itoa(port)
	cfg.DBName = ep.Database
	cfg.ParseTime = true
	if tls := ep.extraString("tls", ""); tls != "" {
		cfg.TLSConfig = tls
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) configure(ctx context.Context, db *sql.DB, ep Endpoint) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return nil
}

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d mysqlDialect) quoteTable(ep Endpoint, table string) string { return d.quote(table) }

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) containsExpr(column, ph string) string {
	return fmt.Sprintf("CAST(%s AS CHAR) LIKE %s ESCAPE '!'", column, ph)
}

func (d mysqlDialect) upsertSuffix(key string, update []string) string {
	if len(update) == 0 {
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", d.quote(key), d.quote(key))
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.quote(c), d.quote(c))
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (mysqlDialect) tables(ctx context.Context, db *sql.DB, ep Endpoint) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (mysqlDialect) schema(ctx context.Context, db *sql.DB, ep Endpoint, table string) ([]models.Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []models.Column{}
	for rows.Next() {
		var name, dataType, nullable, key string
		var def sql.NullString
		if err := rows.Scan(&name, &dataType, &nullable, &def, &key); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		cols = append(cols, column(name, dataType, nullable == "YES", def, key == "PRI"))
	}
	return cols, rows.Err()
}
