package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticIndex_LookupAboveThreshold(t *testing.T) {
	si := NewSemanticIndex(0.85, 10)
	si.Add("t1", "db1", "show me sales", []float64{1, 0, 0}, "SELECT * FROM sales")

	tests := []struct {
		name   string
		vector []float64
		wantOK bool
	}{
		{name: "identical vector", vector: []float64{1, 0, 0}, wantOK: true},
		{name: "close vector", vector: []float64{0.99, 0.05, 0}, wantOK: true},
		{name: "orthogonal vector", vector: []float64{0, 1, 0}, wantOK: false},
		{name: "dimension mismatch", vector: []float64{1, 0}, wantOK: false},
		{name: "zero vector", vector: []float64{0, 0, 0}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := si.Lookup("t1", "db1", tt.vector)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "SELECT * FROM sales", match.QueryText)
				assert.GreaterOrEqual(t, match.Score, 0.85)
			}
		})
	}
}

func TestSemanticIndex_PicksBestMatch(t *testing.T) {
	si := NewSemanticIndex(0.5, 10)
	si.Add("t1", "db1", "orders last week", []float64{1, 1, 0}, "SELECT * FROM orders")
	si.Add("t1", "db1", "all sales", []float64{1, 0, 0}, "SELECT * FROM sales")

	match, ok := si.Lookup("t1", "db1", []float64{1, 0.1, 0})
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM sales", match.QueryText)
}

func TestSemanticIndex_ScopedByTenantAndDatabase(t *testing.T) {
	si := NewSemanticIndex(0.85, 10)
	si.Add("t1", "db1", "show me sales", []float64{1, 0}, "SELECT * FROM sales")

	_, ok := si.Lookup("t2", "db1", []float64{1, 0})
	assert.False(t, ok, "other tenant must not see the entry")

	_, ok = si.Lookup("t1", "db2", []float64{1, 0})
	assert.False(t, ok, "other database must not see the entry")
}

func TestSemanticIndex_Invalidate(t *testing.T) {
	si := NewSemanticIndex(0.85, 10)
	si.Add("t1", "db1", "q1", []float64{1, 0}, "SELECT 1")
	si.Add("t1", "db2", "q2", []float64{1, 0}, "SELECT 2")

	si.Invalidate("t1", "db1")
	_, ok := si.Lookup("t1", "db1", []float64{1, 0})
	assert.False(t, ok)
	_, ok = si.Lookup("t1", "db2", []float64{1, 0})
	assert.True(t, ok)

	si.Invalidate("t1", "")
	_, ok = si.Lookup("t1", "db2", []float64{1, 0})
	assert.False(t, ok)
}

func TestSemanticIndex_BoundPerScope(t *testing.T) {
	si := NewSemanticIndex(0.85, 2)
	si.Add("t1", "db1", "q1", []float64{1, 0}, "SELECT 1")
	si.Add("t1", "db1", "q2", []float64{0, 1}, "SELECT 2")
	si.Add("t1", "db1", "q3", []float64{0.7, 0.7}, "SELECT 3")

	// Oldest triple was dropped to make room.
	_, ok := si.Lookup("t1", "db1", []float64{1, 0})
	assert.False(t, ok)
	_, ok = si.Lookup("t1", "db1", []float64{0, 1})
	assert.True(t, ok)
}

func TestSemanticIndex_IgnoresEmptyVector(t *testing.T) {
	si := NewSemanticIndex(0.85, 10)
	si.Add("t1", "db1", "q", nil, "SELECT 1")

	_, ok := si.Lookup("t1", "db1", []float64{1})
	assert.False(t, ok)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{3, 4}, []float64{3, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Zero(t, cosineSimilarity([]float64{1}, []float64{1, 1}))
}
