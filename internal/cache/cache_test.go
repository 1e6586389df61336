package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration, maxPerTenant int) (*Store, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New("test", ttl, maxPerTenant, nil)
	s.WithClock(func() time.Time { return now })
	return s, &now
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	key := Key{Tenant: "t1", Database: "db1", Hash: "abc"}

	s.Put(key, []byte("payload"))

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestStore_MissAfterTTL(t *testing.T) {
	s, now := newTestStore(time.Hour, 10)
	key := Key{Tenant: "t1", Hash: "abc"}

	s.Put(key, []byte("payload"))

	*now = now.Add(time.Hour + time.Second)

	_, ok := s.Get(key)
	assert.False(t, ok)

	// Lazy eviction removed the entry entirely.
	assert.Equal(t, 0, s.Stats("t1").EntryCount)
}

func TestStore_HitCountsMonotone(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	key := Key{Tenant: "t1", Hash: "abc"}

	s.Put(key, []byte("v"))

	first, ok1 := s.Get(key)
	second, ok2 := s.Get(key)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), s.Stats("t1").HitCount)

	_, _ = s.Get(key)
	assert.Equal(t, int64(3), s.Stats("t1").HitCount)
}

func TestStore_PerTenantLRUBound(t *testing.T) {
	s, now := newTestStore(time.Hour, 2)

	s.Put(Key{Tenant: "t1", Hash: "a"}, []byte("a"))
	*now = now.Add(time.Second)
	s.Put(Key{Tenant: "t1", Hash: "b"}, []byte("b"))
	*now = now.Add(time.Second)

	// Touch "a" so "b" becomes least recently accessed.
	_, ok := s.Get(Key{Tenant: "t1", Hash: "a"})
	require.True(t, ok)
	*now = now.Add(time.Second)

	s.Put(Key{Tenant: "t1", Hash: "c"}, []byte("c"))

	_, okA := s.Get(Key{Tenant: "t1", Hash: "a"})
	_, okB := s.Get(Key{Tenant: "t1", Hash: "b"})
	_, okC := s.Get(Key{Tenant: "t1", Hash: "c"})
	assert.True(t, okA)
	assert.False(t, okB, "least recently accessed entry should be evicted")
	assert.True(t, okC)
}

func TestStore_NonPositiveBoundIsUnbounded(t *testing.T) {
	s, _ := newTestStore(time.Hour, 0)

	for _, hash := range []string{"a", "b", "c", "d"} {
		s.Put(Key{Tenant: "t1", Hash: hash}, []byte(hash))
	}

	assert.Equal(t, 4, s.Stats("t1").EntryCount)
	got, ok := s.Get(Key{Tenant: "t1", Hash: "a"})
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}

func TestStore_BoundDoesNotCrossTenants(t *testing.T) {
	s, _ := newTestStore(time.Hour, 1)

	s.Put(Key{Tenant: "t1", Hash: "a"}, []byte("a"))
	s.Put(Key{Tenant: "t2", Hash: "b"}, []byte("b"))

	_, ok1 := s.Get(Key{Tenant: "t1", Hash: "a"})
	_, ok2 := s.Get(Key{Tenant: "t2", Hash: "b"})
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestStore_Invalidate(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)

	s.Put(Key{Tenant: "t1", Database: "db1", Hash: "a"}, []byte("a"))
	s.Put(Key{Tenant: "t1", Database: "db2", Hash: "b"}, []byte("b"))
	s.Put(Key{Tenant: "t2", Database: "db1", Hash: "c"}, []byte("c"))

	removed := s.InvalidateDatabase("t1", "db1")
	assert.Equal(t, 1, removed)

	removed = s.InvalidateTenant("t1")
	assert.Equal(t, 1, removed)

	_, ok := s.Get(Key{Tenant: "t2", Database: "db1", Hash: "c"})
	assert.True(t, ok, "other tenants are untouched")

	assert.Equal(t, 1, s.InvalidateAll())
}

func TestStore_CleanupExpired(t *testing.T) {
	s, now := newTestStore(time.Hour, 10)

	s.Put(Key{Tenant: "t1", Hash: "a"}, []byte("a"))
	s.PutTTL(Key{Tenant: "t1", Hash: "b"}, []byte("b"), 10*time.Hour)

	*now = now.Add(2 * time.Hour)

	assert.Equal(t, 1, s.CleanupExpired())
	assert.Equal(t, 1, s.Stats("t1").EntryCount)
}

func TestStore_GetJSONCorruptIsMiss(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)
	key := Key{Tenant: "t1", Hash: "a"}

	s.Put(key, []byte("{not json"))

	var out map[string]string
	ok := s.GetJSON(key, &out)
	assert.False(t, ok)

	// The corrupt entry is dropped, not retried forever.
	_, present := s.Get(key)
	assert.False(t, present)
}

func TestStore_StatsScopedByTenant(t *testing.T) {
	s, _ := newTestStore(time.Hour, 10)

	s.Put(Key{Tenant: "t1", Hash: "a"}, []byte("a"))
	s.Put(Key{Tenant: "t2", Hash: "b"}, []byte("b"))
	_, _ = s.Get(Key{Tenant: "t1", Hash: "a"})

	assert.Equal(t, Stats{EntryCount: 1, HitCount: 1}, s.Stats("t1"))
	assert.Equal(t, Stats{EntryCount: 1, HitCount: 0}, s.Stats("t2"))
	assert.Equal(t, Stats{EntryCount: 2, HitCount: 1}, s.Stats(""))
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Show Me SALES", want: "show me sales"},
		{name: "collapses whitespace", in: "  show\t me   sales \n", want: "show me sales"},
		{name: "already normal", in: "show me sales", want: "show me sales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuestion(tt.in))
		})
	}
}

func TestQueryKey_EquivalentQuestions(t *testing.T) {
	a := QueryKey("t1", "db1", "Show me  sales", "schemahash")
	b := QueryKey("t1", "db1", "show me sales", "schemahash")
	c := QueryKey("t1", "db1", "show me sales", "otherhash")

	assert.Equal(t, a, b, "normalized questions share a key")
	assert.NotEqual(t, a, c, "schema version is part of the key")
}
