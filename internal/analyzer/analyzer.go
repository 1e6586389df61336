// Package analyzer exposes the gateway's single entry point: answer a
// natural-language question against one tenant database. It owns the
// request pipeline — rate limit, descriptor resolution, schema cache, query
// cache (exact then semantic), synthesis — and the administrative cache and
// limiter operations.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/edarah/dbgateway/internal/cache"
	"github.com/edarah/dbgateway/internal/config"
	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/llm"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/ratelimit"
	"github.com/edarah/dbgateway/internal/schema"
	"github.com/edarah/dbgateway/internal/synth"
)

// ConnectionRegistry is the external collaborator holding tenant connection
// descriptors and persisted schema snapshots.
type ConnectionRegistry interface {
	// ConnectionDescriptor resolves the tenant's descriptor. databaseID may
	// be empty, meaning "the tenant's active database". A tenant with no
	// registered database yields a NotFound or NoActiveDatabase error.
	ConnectionDescriptor(ctx context.Context, tenantID, databaseID string) (gateway.SealedDescriptor, string, error)

	// SaveSchemaSnapshot persists a snapshot as opaque JSON keyed by
	// databaseID with a last-updated timestamp. Best-effort for callers.
	SaveSchemaSnapshot(ctx context.Context, databaseID string, snap *schema.Snapshot, updatedAt time.Time) error
}

// Request is one analysis call.
type Request struct {
	TenantID     string
	DatabaseID   string // optional; empty selects the tenant's active database
	Question     string
	Conversation string // optional prior conversation text
}

// Result is what the excluded HTTP layer renders to the tenant.
type Result struct {
	RequestID string           `json:"request_id"`
	QueryText string           `json:"query_text"`
	Rows      []map[string]any `json:"rows"`
	Cached    bool             `json:"cached"`
	Relaxed   bool             `json:"relaxed"`
	Reason    string           `json:"reason,omitempty"` // set when rows are legitimately empty
}

// Service wires the gateway core together. Construct once at process start
// and inject into request handlers; all mutable state lives in the caches
// and the limiter, each behind its own synchronization.
type Service struct {
	gw        *gateway.Gateway
	machine   *synth.Machine
	limiter   *ratelimit.Limiter
	registry  ConnectionRegistry
	embedder  llm.Embedder // optional; nil disables semantic matching
	schemaCch *cache.Store
	queryCch  *cache.Store
	embedCch  *cache.Store
	semantic  *cache.SemanticIndex
	freshness time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// Options carries the service dependencies.
type Options struct {
	Gateway   *gateway.Gateway
	Machine   *synth.Machine
	Limiter   *ratelimit.Limiter
	Registry  ConnectionRegistry
	Embedder  llm.Embedder
	Config    *config.Config
	Log       *logger.Logger
}

// New builds the Service and its three caches from config.
func New(opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{
		gw:        opts.Gateway,
		machine:   opts.Machine,
		limiter:   opts.Limiter,
		registry:  opts.Registry,
		embedder:  opts.Embedder,
		schemaCch: cache.New("schema", cfg.Caches.Schema.TTL, cfg.Caches.Schema.MaxEntriesPerTenant, log),
		queryCch:  cache.New("query", cfg.Caches.Query.TTL, cfg.Caches.Query.MaxEntriesPerTenant, log),
		embedCch:  cache.New("embedding", cfg.Caches.Embedding.TTL, cfg.Caches.Embedding.MaxEntriesPerTenant, log),
		semantic:  cache.NewSemanticIndex(cfg.Synth.SimilarityThreshold, cfg.Caches.Query.MaxEntriesPerTenant),
		freshness: cfg.Synth.SchemaFreshness,
		now:       time.Now,
		log:       log,
	}
}

// Analyze answers one question. The caller always receives either a result
// set (possibly empty, with a reason) or a taxonomy error with a stable
// message — never a raw driver exception and never another tenant's data.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	reqLog := s.log.With().Str("request_id", uuid.NewString()).Str("tenant", req.TenantID).Logger()

	if decision := s.limiter.CheckAndConsume(ctx, req.TenantID); !decision.Allowed {
		return nil, errs.RateLimited()
	}

	sealed, databaseID, err := s.resolveDescriptor(ctx, req)
	if err != nil {
		return nil, err
	}

	snap, err := s.schemaSnapshot(ctx, req.TenantID, databaseID, sealed, reqLog)
	if err != nil {
		return nil, err
	}

	result := &Result{RequestID: uuid.NewString()}

	// Exact-hash query cache first, then the best-effort semantic layer.
	queryKey := cache.QueryKey(req.TenantID, databaseID, req.Question, snap.Hash())
	var cachedQuery string
	if s.queryCch.GetJSON(queryKey, &cachedQuery) {
		rows, execErr := s.gw.ExecuteReadQuery(ctx, sealed, cachedQuery)
		if execErr == nil {
			result.QueryText = cachedQuery
			result.Rows = rows
			result.Cached = true
			s.fillReason(result)
			return result, nil
		}
		// A cached query that no longer executes is stale; drop and regenerate.
		reqLog.With().Err(execErr).Logger().Warn("cached query failed, regenerating")
		s.queryCch.Delete(queryKey)
	}

	questionVec := s.embedText(ctx, req.TenantID, req.Question, reqLog)
	if questionVec != nil {
		if match, ok := s.semantic.Lookup(req.TenantID, databaseID, questionVec); ok {
			rows, execErr := s.gw.ExecuteReadQuery(ctx, sealed, match.QueryText)
			if execErr == nil {
				result.QueryText = match.QueryText
				result.Rows = rows
				result.Cached = true
				s.fillReason(result)
				return result, nil
			}
			reqLog.With().Err(execErr).Logger().Warn("semantic cache hit failed to execute")
		}
	}

	outcome, err := s.machine.Synthesize(ctx, synth.Request{
		Sealed:       sealed,
		Snapshot:     snap,
		Question:     req.Question,
		Conversation: req.Conversation,
	})
	if err != nil {
		return nil, err
	}

	// The fallback probe answers "show me something", not the question —
	// caching it under the question's key would replay unrelated data.
	if !outcome.FellBack {
		if err := s.queryCch.PutJSON(queryKey, outcome.QueryText); err == nil && questionVec != nil {
			s.semantic.Add(req.TenantID, databaseID, req.Question, questionVec, outcome.QueryText)
		}
	}

	result.QueryText = outcome.QueryText
	result.Rows = outcome.Rows
	result.Relaxed = outcome.Relaxed
	s.fillReason(result)
	return result, nil
}

// InvalidateCache clears cached state for a tenant, or one tenant database
// when databaseID is non-empty.
func (s *Service) InvalidateCache(tenantID, databaseID string) {
	if databaseID == "" {
		s.schemaCch.InvalidateTenant(tenantID)
		s.queryCch.InvalidateTenant(tenantID)
		s.embedCch.InvalidateTenant(tenantID)
	} else {
		s.schemaCch.InvalidateDatabase(tenantID, databaseID)
		s.queryCch.InvalidateDatabase(tenantID, databaseID)
	}
	s.semantic.Invalidate(tenantID, databaseID)
}

// CacheStats reports entry and hit counts per cache kind; an empty tenantID
// aggregates across tenants.
func (s *Service) CacheStats(tenantID string) map[string]cache.Stats {
	return map[string]cache.Stats{
		"schema":    s.schemaCch.Stats(tenantID),
		"query":     s.queryCch.Stats(tenantID),
		"embedding": s.embedCch.Stats(tenantID),
	}
}

// CleanupExpired sweeps all three caches. Callers schedule this; the service
// runs no background timers of its own.
func (s *Service) CleanupExpired() int {
	return s.schemaCch.CleanupExpired() + s.queryCch.CleanupExpired() + s.embedCch.CleanupExpired()
}

// RateLimitStatus reports a tenant's remaining allowance without consuming.
func (s *Service) RateLimitStatus(ctx context.Context, tenantID string) ratelimit.Decision {
	return s.limiter.Peek(ctx, tenantID)
}

// ResetRateLimit is the administrative limiter override.
func (s *Service) ResetRateLimit(tenantID string) {
	s.limiter.Reset(tenantID)
}

func (s *Service) resolveDescriptor(ctx context.Context, req Request) (gateway.SealedDescriptor, string, error) {
	sealed, databaseID, err := s.registry.ConnectionDescriptor(ctx, req.TenantID, req.DatabaseID)
	if err != nil {
		if errs.IsNotFound(err) || errs.IsNoActiveDatabase(err) {
			return gateway.SealedDescriptor{}, "", errs.New(errs.ErrKindNoActiveDatabase, "no database is connected for this account")
		}
		return gateway.SealedDescriptor{}, "", err
	}
	if sealed.Disabled {
		return gateway.SealedDescriptor{}, "", errs.New(errs.ErrKindNoActiveDatabase, "no database is connected for this account")
	}
	return sealed, databaseID, nil
}

// schemaSnapshot returns a fresh snapshot: from cache when within the
// freshness window, otherwise introspected live, re-cached, and persisted
// through the registry (best-effort).
func (s *Service) schemaSnapshot(ctx context.Context, tenantID, databaseID string, sealed gateway.SealedDescriptor, reqLog *logger.Logger) (*schema.Snapshot, error) {
	key := cache.SchemaKey(tenantID, databaseID)

	var snap schema.Snapshot
	if s.schemaCch.GetJSON(key, &snap) && !snap.Stale(s.freshness, s.now()) {
		return &snap, nil
	}

	fresh, err := s.gw.IntrospectSchema(ctx, sealed)
	if err != nil {
		return nil, err
	}
	fresh.CapturedAt = s.now()

	if err := s.schemaCch.PutJSON(key, fresh); err != nil {
		reqLog.With().Err(err).Logger().Warn("failed to cache schema snapshot")
	}
	if err := s.registry.SaveSchemaSnapshot(ctx, databaseID, fresh, fresh.CapturedAt); err != nil {
		reqLog.With().Err(err).Logger().Warn("failed to persist schema snapshot")
	}
	return fresh, nil
}

// embedText embeds content through the embedding cache. Any failure returns
// nil: embedding is an enhancement, never a reason to fail the request.
func (s *Service) embedText(ctx context.Context, tenantID, text string, reqLog *logger.Logger) []float64 {
	if s.embedder == nil {
		return nil
	}

	key := cache.EmbeddingKey(tenantID, text)
	var vec []float64
	if s.embedCch.GetJSON(key, &vec) {
		return vec
	}

	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		reqLog.With().Err(err).Logger().Debug("embedding skipped")
		return nil
	}
	if err := s.embedCch.PutJSON(key, vecs[0]); err == nil {
		return vecs[0]
	}
	return vecs[0]
}

func (s *Service) fillReason(r *Result) {
	if len(r.Rows) == 0 {
		r.Reason = "the query executed successfully but matched no data"
	}
}
