// Package gateway presents one capability surface over five structurally
// different database engines. Adapters register into a lookup table; adding
// an engine means adding one implementation, not touching a dispatch switch.
//
// Every operation is connect-execute-close: no connection survives a call and
// no tenant's connection is ever visible to another tenant's request. Each
// adapter owns releasing its connection on every exit path; close failures
// are logged, never propagated.
package gateway

import (
	"context"

	"github.com/edarah/dbgateway/internal/config"
	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
	"github.com/edarah/dbgateway/internal/secret"
)

// Engine is the capability contract one adapter implements per engine family.
type Engine interface {
	// Tag identifies the engine family this adapter serves.
	Tag() EngineTag

	// Test opens a connection and immediately closes it.
	Test(ctx context.Context, desc Descriptor) error

	// Introspect lists tables and columns (and enum metadata where the
	// engine exposes it). Expensive — callers cache the result.
	Introspect(ctx context.Context, desc Descriptor) (*schema.Snapshot, error)

	// Execute runs one read query and returns all rows. The adapter must
	// reject anything that is not a pure read.
	Execute(ctx context.Context, desc Descriptor, query string) ([]map[string]any, error)
}

// Gateway owns connection lifecycle, schema introspection, and query
// execution, dispatching to the registered adapter by engine tag.
type Gateway struct {
	engines  map[EngineTag]Engine
	keeper   *secret.Keeper
	timeouts config.TimeoutsConfig
	log      *logger.Logger
}

// New creates a Gateway with no adapters registered.
func New(keeper *secret.Keeper, timeouts config.TimeoutsConfig, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{
		engines:  make(map[EngineTag]Engine),
		keeper:   keeper,
		timeouts: timeouts,
		log:      log,
	}
}

// Register adds an adapter to the lookup table. Call during construction,
// before any requests flow.
func (g *Gateway) Register(e Engine) {
	g.engines[e.Tag()] = e
}

// TestConnection opens and immediately closes a connection for the
// descriptor. Never leaves a dangling handle.
func (g *Gateway) TestConnection(ctx context.Context, sealed SealedDescriptor) error {
	desc, eng, err := g.resolve(sealed)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Connect)
	defer cancel()
	return eng.Test(ctx, desc)
}

// IntrospectSchema captures a fresh snapshot of the tenant database.
func (g *Gateway) IntrospectSchema(ctx context.Context, sealed SealedDescriptor) (*schema.Snapshot, error) {
	desc, eng, err := g.resolve(sealed)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Query)
	defer cancel()

	snap, err := eng.Introspect(ctx, desc)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "introspection produced an invalid snapshot", err)
	}
	g.log.With().Str("engine", string(desc.Engine)).Str("database", desc.Database).
		Int("tables", len(snap.Tables)).Logger().Debug("schema introspected")
	return snap, nil
}

// ExecuteReadQuery runs one read query against the tenant database. The
// connection is opened for this call and closed before it returns.
func (g *Gateway) ExecuteReadQuery(ctx context.Context, sealed SealedDescriptor, query string) ([]map[string]any, error) {
	desc, eng, err := g.resolve(sealed)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.Query)
	defer cancel()
	return eng.Execute(ctx, desc, query)
}

// resolve opens the sealed DSN and finds the adapter for its engine tag. The
// decrypted descriptor lives only in the caller's frame.
func (g *Gateway) resolve(sealed SealedDescriptor) (Descriptor, Engine, error) {
	if sealed.Disabled {
		return Descriptor{}, nil, errs.New(errs.ErrKindNoActiveDatabase, "database connection is disconnected")
	}
	eng, ok := g.engines[sealed.Engine]
	if !ok {
		return Descriptor{}, nil, errs.New(errs.ErrKindUnsupportedEngine, "no adapter registered for engine "+string(sealed.Engine))
	}

	dsn, err := g.keeper.Open(sealed.SealedDSN)
	if err != nil {
		return Descriptor{}, nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to unseal connection secret", err)
	}
	return Descriptor{Engine: sealed.Engine, DSN: dsn, Database: sealed.Database}, eng, nil
}
