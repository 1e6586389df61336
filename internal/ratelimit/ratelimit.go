// Package ratelimit gates analysis requests per tenant with a token bucket.
//
// State lives only in process memory: a restart refills every tenant. That is
// a documented limitation of the single-process deployment, not a bug — the
// Limiter sits behind a small interface-shaped surface so a shared store can
// replace it without touching call sites.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/edarah/dbgateway/internal/config"
	"github.com/edarah/dbgateway/internal/logger"
)

// PlanProvider resolves a tenant's active plan name. The empty string means
// no active plan and maps to the default tier.
type PlanProvider interface {
	ActivePlan(ctx context.Context, tenantID string) (string, error)
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type bucket struct {
	tier         config.TierConfig
	remaining    int
	windowEnd    time.Time
	blockedUntil time.Time
}

// Limiter is a per-tenant token bucket. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	tiers   map[string]config.TierConfig
	plans   PlanProvider
	buckets map[string]*bucket
	now     func() time.Time
	log     *logger.Logger
}

// New creates a Limiter with the given tier table and plan collaborator.
func New(cfg config.RateLimitConfig, plans PlanProvider, log *logger.Logger) *Limiter {
	if log == nil {
		log = logger.Nop()
	}
	return &Limiter{
		tiers:   cfg.Tiers,
		plans:   plans,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		log:     log,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// CheckAndConsume takes one point from the tenant's bucket. On any internal
// error (plan lookup failure, unknown tier) the limiter fails open and allows
// the request: availability over strictness, by explicit policy sign-off.
// Every fail-open is logged at warn level so abuse is at least visible.
func (l *Limiter) CheckAndConsume(ctx context.Context, tenantID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bucketLocked(ctx, tenantID)
	if err != nil {
		l.log.WarnWith("rate limiter failing open", map[string]any{
			"tenant": tenantID,
			"error":  err.Error(),
		})
		return Decision{Allowed: true, Remaining: -1, ResetAt: l.now()}
	}

	now := l.now()

	if !b.blockedUntil.IsZero() {
		if now.Before(b.blockedUntil) {
			return Decision{Allowed: false, Remaining: 0, ResetAt: b.blockedUntil}
		}
		// Block elapsed: fresh bucket.
		b.blockedUntil = time.Time{}
		b.remaining = b.tier.Points
		b.windowEnd = now.Add(b.tier.Window)
	}

	if now.After(b.windowEnd) {
		b.remaining = b.tier.Points
		b.windowEnd = now.Add(b.tier.Window)
	}

	if b.remaining <= 0 {
		b.blockedUntil = now.Add(b.tier.Block)
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.blockedUntil}
	}

	b.remaining--
	return Decision{Allowed: true, Remaining: b.remaining, ResetAt: b.windowEnd}
}

// Peek reports the tenant's remaining allowance without consuming a point.
// A tenant seen for the first time gets a bucket created from its plan tier,
// so the report reflects the tenant's real allowance rather than the
// default tier's.
func (l *Limiter) Peek(ctx context.Context, tenantID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.bucketLocked(ctx, tenantID)
	if err != nil {
		l.log.WarnWith("rate limiter failing open", map[string]any{
			"tenant": tenantID,
			"error":  err.Error(),
		})
		return Decision{Allowed: true, Remaining: -1, ResetAt: l.now()}
	}

	now := l.now()
	if !b.blockedUntil.IsZero() && now.Before(b.blockedUntil) {
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.blockedUntil}
	}
	if now.After(b.windowEnd) {
		return Decision{Allowed: true, Remaining: b.tier.Points, ResetAt: now}
	}
	return Decision{Allowed: b.remaining > 0, Remaining: b.remaining, ResetAt: b.windowEnd}
}

// Reset clears a tenant's bucket. Administrative override: the next request
// re-resolves the plan and starts a full window.
func (l *Limiter) Reset(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, tenantID)
}

// bucketLocked returns the tenant's bucket, creating it from the plan tier on
// first use. The resolved tier is held for the bucket's lifetime — plan
// changes take effect after a Reset or a process restart.
func (l *Limiter) bucketLocked(ctx context.Context, tenantID string) (*bucket, error) {
	if b, ok := l.buckets[tenantID]; ok {
		return b, nil
	}

	plan := ""
	if l.plans != nil {
		var err error
		plan, err = l.plans.ActivePlan(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}

	tier, ok := l.tiers[plan]
	if !ok {
		tier, ok = l.tiers[""]
		if !ok {
			return nil, errNoDefaultTier
		}
	}

	now := l.now()
	b := &bucket{
		tier:      tier,
		remaining: tier.Points,
		windowEnd: now.Add(tier.Window),
	}
	l.buckets[tenantID] = b
	return b, nil
}

var errNoDefaultTier = errNoTier{}

type errNoTier struct{}

func (errNoTier) Error() string { return "no default rate-limit tier configured" }
