package snapstore

import (
	"context"
	"time"

	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// DescriptorSource resolves a tenant's sealed connection descriptor. It is
// the half of the connection-registry contract this package does not own.
type DescriptorSource interface {
	ConnectionDescriptor(ctx context.Context, tenantID, databaseID string) (gateway.SealedDescriptor, string, error)
}

// Registry pairs a descriptor source with snapshot persistence, forming a
// complete connection registry for the analyzer: descriptor reads delegate
// to the source, snapshot saves land in the Store.
type Registry struct {
	source DescriptorSource
	store  Store
	log    *logger.Logger
}

// NewRegistry wraps source and store into a registry.
func NewRegistry(source DescriptorSource, store Store, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{source: source, store: store, log: log}
}

// ConnectionDescriptor resolves the tenant's descriptor through the source.
func (r *Registry) ConnectionDescriptor(ctx context.Context, tenantID, databaseID string) (gateway.SealedDescriptor, string, error) {
	return r.source.ConnectionDescriptor(ctx, tenantID, databaseID)
}

// SaveSchemaSnapshot persists the snapshot for databaseID.
func (r *Registry) SaveSchemaSnapshot(ctx context.Context, databaseID string, snap *schema.Snapshot, updatedAt time.Time) error {
	if err := r.store.Save(ctx, databaseID, snap, updatedAt); err != nil {
		return err
	}
	r.log.With().Str("database", databaseID).Logger().Debug("schema snapshot persisted")
	return nil
}

// LoadSchemaSnapshot returns the persisted snapshot and its last-updated
// timestamp for databaseID.
func (r *Registry) LoadSchemaSnapshot(ctx context.Context, databaseID string) (*schema.Snapshot, time.Time, error) {
	return r.store.Load(ctx, databaseID)
}

// DeleteSchemaSnapshot removes the persisted snapshot for databaseID, if any.
func (r *Registry) DeleteSchemaSnapshot(ctx context.Context, databaseID string) error {
	return r.store.Delete(ctx, databaseID)
}
