// Package mysql is the MySQL engine adapter. It is the only relational
// adapter that surfaces enum metadata: information_schema exposes the full
// value set in COLUMN_TYPE, which the synthesis machine turns into
// allowed-value hints.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// Driver implements gateway.Engine for MySQL. The MariaDB adapter reuses it
// as a variant: same wire protocol and information_schema layout, different
// tag and no enum metadata exposure.
type Driver struct {
	tag      gateway.EngineTag
	enumMeta bool
	log      *logger.Logger
}

// New creates the MySQL adapter.
func New(log *logger.Logger) *Driver {
	return NewVariant(gateway.EngineMySQL, true, log)
}

// NewVariant creates an adapter for a MySQL-protocol engine registered under
// its own tag. enumMeta controls whether enum value sets are captured.
func NewVariant(tag gateway.EngineTag, enumMeta bool, log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{tag: tag, enumMeta: enumMeta, log: log}
}

func (d *Driver) Tag() gateway.EngineTag { return d.tag }

// Test opens a connection, pings, and closes it.
func (d *Driver) Test(ctx context.Context, desc gateway.Descriptor) error {
	db, err := d.open(desc)
	if err != nil {
		return err
	}
	defer d.close(db)

	if err := db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Introspect lists tables, columns, and enum value sets for the connected
// database. Row counts come from information_schema's statistics estimate.
func (d *Driver) Introspect(ctx context.Context, desc gateway.Descriptor) (*schema.Snapshot, error) {
	db, err := d.open(desc)
	if err != nil {
		return nil, err
	}
	defer d.close(db)

	tables, err := d.listTables(ctx, db)
	if err != nil {
		return nil, err
	}

	snap := &schema.Snapshot{
		Engine:   string(d.Tag()),
		Database: desc.Database,
	}
	for _, t := range tables {
		cols, err := d.fetchColumns(ctx, db, t.name)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", t.name, err)
		}
		snap.Tables = append(snap.Tables, schema.Table{
			Name:     t.name,
			Columns:  cols,
			RowCount: t.rowCount,
		})
	}
	return snap, nil
}

// Execute runs one read query and scans every row.
func (d *Driver) Execute(ctx context.Context, desc gateway.Descriptor, query string) ([]map[string]any, error) {
	db, err := d.open(desc)
	if err != nil {
		return nil, err
	}
	defer d.close(db)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return gateway.ScanRows(&sqlRows{rows: rows})
}

// open creates a fresh handle for this call. It is closed before the
// operation returns; no pool outlives a request.
func (d *Driver) open(desc gateway.Descriptor) (*sql.DB, error) {
	dsn, err := driverDSN(desc.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *Driver) close(db *sql.DB) {
	if err := db.Close(); err != nil {
		d.log.With().Err(err).Logger().Warn("mysql connection close failed")
	}
}

type tableStat struct {
	name     string
	rowCount int64
}

func (d *Driver) listTables(ctx context.Context, db *sql.DB) ([]tableStat, error) {
	const q = `
		SELECT table_name, COALESCE(table_rows, -1)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []tableStat
	for rows.Next() {
		var t tableStat
		if err := rows.Scan(&t.name, &t.rowCount); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (d *Driver) fetchColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       column_type,
		       is_nullable = 'YES',
		       column_key  = 'PRI',
		       column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		var columnType string
		if err := rows.Scan(&c.Name, &c.Type, &columnType, &c.Nullable, &c.PrimaryKey, &c.Default); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		if d.enumMeta && c.Type == "enum" {
			c.EnumValues = parseEnumValues(columnType)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// parseEnumValues extracts the value set from a COLUMN_TYPE like
// enum('pending','shipped','cancelled').
func parseEnumValues(columnType string) []string {
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start < 0 || end <= start {
		return nil
	}

	var values []string
	for _, part := range strings.Split(columnType[start+1:end], ",") {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, "'")
		part = strings.ReplaceAll(part, "''", "'")
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}

// driverDSN converts a mysql:// URL into the go-sql-driver DSN form.
// DSNs already in driver form (user:pass@tcp(host)/db) pass through.
func driverDSN(raw string) (string, error) {
	if !strings.HasPrefix(raw, "mysql://") && !strings.HasPrefix(raw, "mariadb://") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := u.Host
	if u.Port() == "" {
		host += ":3306"
	}

	var creds string
	if u.User != nil {
		creds = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			creds += ":" + pass
		}
		creds += "@"
	}

	dsn := fmt.Sprintf("%stcp(%s)/%s", creds, host, strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return dsn, nil
}

// --- database/sql wrappers ---

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

// --- error mapping ---

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case 1044, 1045, 1046, 1049: // access / unknown database
		return errs.ErrKindConnectionFailed
	case 1040, 1203: // too many connections
		return errs.ErrKindConnectionFailed
	case 1054, 1064, 1146: // bad field, syntax, unknown table
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
