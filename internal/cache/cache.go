// Package cache implements the content-addressed TTL caches that sit in front
// of the expensive gateway operations: schema introspection, query generation,
// and embedding calls.
//
// All state is in process memory behind one mutex per Store. Expiry is lazy
// (checked on read) plus an explicit CleanupExpired sweep; scheduling that
// sweep is the caller's responsibility — no background timer runs here.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/edarah/dbgateway/internal/logger"
)

type entry struct {
	payload        []byte
	createdAt      time.Time
	expiresAt      time.Time
	hitCount       int64
	lastAccessedAt time.Time
}

// Stats reports per-tenant (or global) cache counters.
type Stats struct {
	EntryCount int   `json:"entry_count"`
	HitCount   int64 `json:"hit_count"`
}

// Store is one cache kind: a bounded, tenant-scoped TTL map.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	mu           sync.Mutex
	name         string
	ttl          time.Duration
	maxPerTenant int
	entries      map[Key]*entry
	evictedHits  map[string]int64 // hit counts survive eviction for stats
	now          func() time.Time
	log          *logger.Logger
}

// New creates a Store with the given default TTL and per-tenant size bound.
// A non-positive maxPerTenant disables the bound.
func New(name string, ttl time.Duration, maxPerTenant int, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		name:         name,
		ttl:          ttl,
		maxPerTenant: maxPerTenant,
		entries:      make(map[Key]*entry),
		evictedHits:  make(map[string]int64),
		now:          time.Now,
		log:          log,
	}
}

// WithClock replaces the time source. Used by tests to advance past TTLs.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Get returns the payload for key, or false on miss. An expired entry is
// evicted on the spot and reported as a miss. A hit refreshes the entry's
// hit count and last-accessed time.
func (s *Store) Get(key Key) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	now := s.now()
	if now.After(e.expiresAt) {
		s.evictLocked(key, e)
		return nil, false
	}

	e.hitCount++
	e.lastAccessedAt = now
	return e.payload, true
}

// GetJSON decodes the payload for key into v. A payload that fails to decode
// is treated as corrupt: the entry is dropped and the call reports a miss.
func (s *Store) GetJSON(key Key, v any) bool {
	payload, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		s.log.WarnWith("dropping corrupt cache entry", map[string]any{
			"cache":  s.name,
			"tenant": key.Tenant,
			"error":  err.Error(),
		})
		s.Delete(key)
		return false
	}
	return true
}

// Put stores payload under key with the default TTL.
func (s *Store) Put(key Key, payload []byte) {
	s.PutTTL(key, payload, s.ttl)
}

// PutTTL stores payload under key with an explicit TTL override. If the
// tenant is at its size bound, the least-recently-accessed entries for that
// tenant are evicted first.
func (s *Store) PutTTL(key Key, payload []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.entries[key]; !exists {
		s.boundTenantLocked(key.Tenant)
	}
	s.entries[key] = &entry{
		payload:        payload,
		createdAt:      now,
		expiresAt:      now.Add(ttl),
		lastAccessedAt: now,
	}
}

// PutJSON encodes v and stores it under key with the default TTL.
func (s *Store) PutJSON(key Key, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Put(key, payload)
	return nil
}

// Delete removes a single entry if present.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.evictLocked(key, e)
	}
}

// InvalidateTenant removes every entry belonging to tenant and returns the
// number removed.
func (s *Store) InvalidateTenant(tenant string) int {
	return s.invalidate(func(k Key) bool { return k.Tenant == tenant })
}

// InvalidateDatabase removes every entry for one tenant database.
func (s *Store) InvalidateDatabase(tenant, database string) int {
	return s.invalidate(func(k Key) bool { return k.Tenant == tenant && k.Database == database })
}

// InvalidateAll removes every entry in the store.
func (s *Store) InvalidateAll() int {
	return s.invalidate(func(Key) bool { return true })
}

func (s *Store) invalidate(match func(Key) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if match(k) {
			s.evictLocked(k, e)
			removed++
		}
	}
	return removed
}

// CleanupExpired sweeps out every expired entry and returns the number
// removed. Callers schedule this periodically or on demand.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			s.evictLocked(k, e)
			removed++
		}
	}
	if removed > 0 {
		s.log.With().Str("cache", s.name).Int("removed", removed).Logger().
			Debug("expired entries swept")
	}
	return removed
}

// Stats returns counters for one tenant, or for the whole store when tenant
// is empty. Hit counts include entries that have since been evicted.
func (s *Store) Stats(tenant string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	for k, e := range s.entries {
		if tenant != "" && k.Tenant != tenant {
			continue
		}
		st.EntryCount++
		st.HitCount += e.hitCount
	}
	if tenant == "" {
		for _, hits := range s.evictedHits {
			st.HitCount += hits
		}
	} else {
		st.HitCount += s.evictedHits[tenant]
	}
	return st
}

// evictLocked removes an entry while preserving its hit count for stats.
func (s *Store) evictLocked(k Key, e *entry) {
	s.evictedHits[k.Tenant] += e.hitCount
	delete(s.entries, k)
}

// boundTenantLocked enforces the per-tenant size bound before an insert:
// while the tenant holds maxPerTenant entries or more, the one with the
// oldest lastAccessedAt goes first. Approximate LRU by timestamp comparison —
// eviction is amortized and not latency-critical.
// A non-positive bound means unbounded.
func (s *Store) boundTenantLocked(tenant string) {
	if s.maxPerTenant <= 0 {
		return
	}
	for {
		count := 0
		var oldestKey Key
		var oldest *entry
		for k, e := range s.entries {
			if k.Tenant != tenant {
				continue
			}
			count++
			if oldest == nil || e.lastAccessedAt.Before(oldest.lastAccessedAt) {
				oldestKey, oldest = k, e
			}
		}
		if count < s.maxPerTenant {
			return
		}
		s.evictLocked(oldestKey, oldest)
	}
}
