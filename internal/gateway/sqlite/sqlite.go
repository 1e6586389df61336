// Package sqlite is the SQLite engine adapter, backed by mattn/go-sqlite3.
// The descriptor DSN is a file path, optionally prefixed with sqlite://.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// Driver implements gateway.Engine for SQLite.
type Driver struct {
	log *logger.Logger
}

// New creates the adapter.
func New(log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{log: log}
}

func (d *Driver) Tag() gateway.EngineTag { return gateway.EngineSQLite }

// Test opens the database file read-only and pings it.
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

// Introspect lists tables from sqlite_master and columns via PRAGMA
// table_info. SQLite keeps no statistics worth trusting, so row counts come
// from COUNT(*) — cheap against a local file.
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
		Engine:   string(gateway.EngineSQLite),
		Database: desc.Database,
	}
	for _, name := range tables {
		cols, err := d.fetchColumns(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", name, err)
		}
		snap.Tables = append(snap.Tables, schema.Table{
			Name:     name,
			Columns:  cols,
			RowCount: d.countRows(ctx, db, name),
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

func (d *Driver) open(desc gateway.Descriptor) (*sql.DB, error) {
	path := strings.TrimPrefix(desc.DSN, "sqlite://")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (d *Driver) close(db *sql.DB) {
	if err := db.Close(); err != nil {
		d.log.With().Err(err).Logger().Warn("sqlite connection close failed")
	}
}

func (d *Driver) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (d *Driver) fetchColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error) {
	q := fmt.Sprintf(`PRAGMA table_info(%s)`, gateway.EngineSQLite.QuoteIdentifier(table))

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    *string
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, schema.Column{
			Name:       name,
			Type:       strings.ToLower(ctype),
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
			Default:    dflt,
		})
	}
	return cols, rows.Err()
}

func (d *Driver) countRows(ctx context.Context, db *sql.DB, table string) int64 {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, gateway.EngineSQLite.QuoteIdentifier(table))

	var n int64
	if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return -1
	}
	return n
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.rows.Err() }

// mapError translates sqlite3 driver errors into *errs.Error.
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

	// The sqlite3 driver reports missing files and locked databases as
	// plain errors; anything mentioning the file is a connection problem.
	if strings.Contains(err.Error(), "unable to open database") {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
