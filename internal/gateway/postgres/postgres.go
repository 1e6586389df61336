// Package postgres is the PostgreSQL engine adapter, backed by a single pgx
// connection per operation. No pool: connect-execute-close keeps tenant
// credential exposure to one call frame and rules out cross-tenant reuse.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// Driver implements gateway.Engine for PostgreSQL.
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

func (d *Driver) Tag() gateway.EngineTag { return gateway.EnginePostgres }

// Test opens a connection, pings, and closes it.
func (d *Driver) Test(ctx context.Context, desc gateway.Descriptor) error {
	conn, err := d.connect(ctx, desc)
	if err != nil {
		return err
	}
	defer d.close(ctx, conn)

	if err := conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Introspect lists tables and columns from information_schema. Row counts
// come from the planner's estimate in pg_class: cheap and close enough for
// prompt context.
func (d *Driver) Introspect(ctx context.Context, desc gateway.Descriptor) (*schema.Snapshot, error) {
	conn, err := d.connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer d.close(ctx, conn)

	tables, err := d.listTables(ctx, conn)
	if err != nil {
		return nil, err
	}

	snap := &schema.Snapshot{
		Engine:   string(gateway.EnginePostgres),
		Database: desc.Database,
	}
	for _, name := range tables {
		cols, err := d.fetchColumns(ctx, conn, name)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", name, err)
		}
		snap.Tables = append(snap.Tables, schema.Table{
			Name:     name,
			Columns:  cols,
			RowCount: d.estimateRows(ctx, conn, name),
		})
	}
	return snap, nil
}

// Execute runs one read query and scans every row.
func (d *Driver) Execute(ctx context.Context, desc gateway.Descriptor, query string) ([]map[string]any, error) {
	conn, err := d.connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer d.close(ctx, conn)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return gateway.ScanRows(&pgxRows{rows: rows})
}

func (d *Driver) connect(ctx context.Context, desc gateway.Descriptor) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, desc.DSN)
	if err != nil {
		return nil, mapError(err, "failed to connect")
	}
	return conn, nil
}

// close is best-effort: a failed close is logged, never propagated.
func (d *Driver) close(ctx context.Context, conn *pgx.Conn) {
	if err := conn.Close(ctx); err != nil {
		d.log.With().Err(err).Logger().Warn("postgres connection close failed")
	}
}

func (d *Driver) listTables(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := conn.Query(ctx, q)
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

func (d *Driver) fetchColumns(ctx context.Context, conn *pgx.Conn, table string) ([]schema.Column, error) {
	const q = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       c.column_default,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = 'public'
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = 'public'
		  AND c.table_name   = $1
		ORDER BY c.ordinal_position`

	rows, err := conn.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Default, &c.PrimaryKey); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// estimateRows reads the planner estimate; -1 on any failure.
func (d *Driver) estimateRows(ctx context.Context, conn *pgx.Conn, table string) int64 {
	const q = `SELECT reltuples::bigint FROM pg_class WHERE relname = $1`

	var n int64
	if err := conn.QueryRow(ctx, q, table).Scan(&n); err != nil {
		return -1
	}
	return n
}

// pgxRows wraps pgx.Rows to satisfy gateway.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, fd := range descs {
		cols[i] = fd.Name
	}
	return cols, nil
}

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes).
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		// Class 08 — connection errors.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			kind = errs.ErrKindConnectionFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth).
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
