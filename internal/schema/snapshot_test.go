package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopSnapshot() *Snapshot {
	return &Snapshot{
		Engine:   "postgres",
		Database: "shop",
		Tables: []Table{
			{
				Name: "orders",
				Columns: []Column{
					{Name: "id", Type: "integer", PrimaryKey: true},
					{Name: "status", Type: "text", Nullable: true, EnumValues: []string{"pending", "shipped"}},
				},
				RowCount: 120,
			},
			{
				Name:     "customers",
				Columns:  []Column{{Name: "id", Type: "integer", PrimaryKey: true}},
				RowCount: -1,
			},
		},
		CapturedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSnapshot_HashIgnoresOrderingAndVolatileFields(t *testing.T) {
	a := shopSnapshot()

	b := shopSnapshot()
	b.Tables[0], b.Tables[1] = b.Tables[1], b.Tables[0]
	b.Tables[1].Columns[0], b.Tables[1].Columns[1] = b.Tables[1].Columns[1], b.Tables[1].Columns[0]
	b.CapturedAt = b.CapturedAt.Add(48 * time.Hour)
	b.Tables[1].RowCount = 999999

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestSnapshot_HashChangesWithStructure(t *testing.T) {
	a := shopSnapshot()

	b := shopSnapshot()
	b.Tables[0].Columns[1].Type = "varchar"

	c := shopSnapshot()
	c.Tables = c.Tables[:1]

	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestSnapshot_ValidateRejectsDuplicateColumns(t *testing.T) {
	s := shopSnapshot()
	require.NoError(t, s.Validate())

	s.Tables[0].Columns = append(s.Tables[0].Columns, Column{Name: "id", Type: "text"})
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestSnapshot_Stale(t *testing.T) {
	s := shopSnapshot()
	window := 24 * time.Hour

	assert.False(t, s.Stale(window, s.CapturedAt.Add(23*time.Hour)))
	assert.True(t, s.Stale(window, s.CapturedAt.Add(25*time.Hour)))
}

func TestSnapshot_Table(t *testing.T) {
	s := shopSnapshot()

	tbl := s.Table("orders")
	require.NotNil(t, tbl)
	assert.Len(t, tbl.Columns, 2)

	assert.Nil(t, s.Table("missing"))
}

func TestSnapshot_Describe(t *testing.T) {
	got := shopSnapshot().Describe()

	assert.Contains(t, got, "orders(")
	assert.Contains(t, got, "id integer PK")
	assert.Contains(t, got, "IN(pending|shipped)")
	assert.Contains(t, got, "~120 rows")
	assert.NotContains(t, got, "~-1", "unknown row counts are omitted")
}
