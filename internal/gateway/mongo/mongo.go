// Package mongo is the document-engine adapter. Collections are reported as
// tables with two synthetic columns, since document stores carry no fixed
// column schema, and queries arrive as a constrained pipeline-description
// string rather than free SQL.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// Driver implements gateway.Engine for MongoDB.
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

func (d *Driver) Tag() gateway.EngineTag { return gateway.EngineMongo }

// Test connects, pings, and disconnects.
func (d *Driver) Test(ctx context.Context, desc gateway.Descriptor) error {
	client, err := d.connect(ctx, desc)
	if err != nil {
		return err
	}
	defer d.disconnect(ctx, client)

	if err := client.Ping(ctx, nil); err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", err)
	}
	return nil
}

// Introspect lists collections. Each is reported with the synthetic _id and
// document columns; row counts use the collection's metadata estimate.
func (d *Driver) Introspect(ctx context.Context, desc gateway.Descriptor) (*schema.Snapshot, error) {
	client, err := d.connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer d.disconnect(ctx, client)

	db := client.Database(desc.Database)
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to list collections", err)
	}

	snap := &schema.Snapshot{
		Engine:   string(gateway.EngineMongo),
		Database: desc.Database,
	}
	for _, name := range names {
		count, err := db.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			count = -1
		}
		snap.Tables = append(snap.Tables, schema.Table{
			Name: name,
			Columns: []schema.Column{
				{Name: "_id", Type: "objectId", PrimaryKey: true},
				{Name: "document", Type: "document", Nullable: true},
			},
			RowCount: count,
		})
	}
	return snap, nil
}

// Execute parses the pipeline description, re-checking the read-only grammar
// even if a caller already validated it, then runs the aggregation.
func (d *Driver) Execute(ctx context.Context, desc gateway.Descriptor, query string) ([]map[string]any, error) {
	pipeline, err := ParsePipeline(query)
	if err != nil {
		return nil, err
	}

	client, err := d.connect(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer d.disconnect(ctx, client)

	coll := client.Database(desc.Database).Collection(pipeline.Collection)
	cursor, err := coll.Aggregate(ctx, pipeline.Stages)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "aggregation failed", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read aggregation results", err)
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, map[string]any(doc))
	}
	return rows, nil
}

func (d *Driver) connect(ctx context.Context, desc gateway.Descriptor) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(desc.DSN))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect", err)
	}
	return client, nil
}

// disconnect is best-effort: a failed disconnect is logged, never propagated.
func (d *Driver) disconnect(ctx context.Context, client *mongo.Client) {
	if err := client.Disconnect(ctx); err != nil {
		d.log.With().Err(err).Logger().Warn("mongodb disconnect failed")
	}
}
