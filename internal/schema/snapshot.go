// Package schema models the normalized table/column metadata captured from a
// tenant database. A Snapshot is immutable once produced: staleness triggers
// re-introspection and replacement, never in-place mutation.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column describes a single column in a table.
type Column struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primary_key"`
	Default    *string  `json:"default,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"` // only where the engine exposes enum metadata
}

// Table describes a table (or, for document engines, a collection) and its
// columns. RowCount is best-effort: -1 means unknown.
type Table struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Snapshot is the full introspected schema of one tenant database.
type Snapshot struct {
	Engine     string    `json:"engine"`
	Database   string    `json:"database"`
	Tables     []Table   `json:"tables"`
	CapturedAt time.Time `json:"captured_at"`
}

// Validate checks the snapshot invariants: column names must be unique within
// each table.
func (s *Snapshot) Validate() error {
	for _, t := range s.Tables {
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if seen[c.Name] {
				return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
			}
			seen[c.Name] = true
		}
	}
	return nil
}

// Stale reports whether the snapshot is older than the freshness window.
func (s *Snapshot) Stale(window time.Duration, now time.Time) bool {
	return now.Sub(s.CapturedAt) > window
}

// Table returns the named table, or nil if absent.
func (s *Snapshot) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Canonical serializes the snapshot's structure deterministically: tables and
// columns sorted by name, one line per column. CapturedAt and RowCount are
// excluded so two introspections of an unchanged database hash identically.
func (s *Snapshot) Canonical() string {
	tables := make([]Table, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	fmt.Fprintf(&b, "engine=%s;database=%s\n", s.Engine, s.Database)
	for _, t := range tables {
		cols := make([]Column, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

		fmt.Fprintf(&b, "table=%s\n", t.Name)
		for _, c := range cols {
			fmt.Fprintf(&b, "  %s:%s nullable=%t pk=%t", c.Name, c.Type, c.Nullable, c.PrimaryKey)
			if c.Default != nil {
				fmt.Fprintf(&b, " default=%s", *c.Default)
			}
			if len(c.EnumValues) > 0 {
				fmt.Fprintf(&b, " enum=[%s]", strings.Join(c.EnumValues, ","))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Hash returns the content hash of the canonical form, used as the
// schema-version component of generated-query cache keys.
func (s *Snapshot) Hash() string {
	sum := sha256.Sum256([]byte(s.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Describe renders the snapshot as compact prompt text for the completion
// collaborator: one line per table with typed columns, enum values inline.
func (s *Snapshot) Describe() string {
	var b strings.Builder
	for _, t := range s.Tables {
		b.WriteString(t.Name)
		b.WriteString("(")
		for i, c := range t.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Name)
			b.WriteString(" ")
			b.WriteString(c.Type)
			if c.PrimaryKey {
				b.WriteString(" PK")
			}
			if len(c.EnumValues) > 0 {
				fmt.Fprintf(&b, " IN(%s)", strings.Join(c.EnumValues, "|"))
			}
		}
		b.WriteString(")")
		if t.RowCount >= 0 {
			fmt.Fprintf(&b, " ~%d rows", t.RowCount)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
