package gateway

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edarah/dbgateway/internal/config"
	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/schema"
	"github.com/edarah/dbgateway/internal/secret"
)

// fakeEngine records the descriptors it receives.
type fakeEngine struct {
	tag      EngineTag
	seenDSNs []string
	execErr  error
	rows     []map[string]any
}

func (f *fakeEngine) Tag() EngineTag { return f.tag }

func (f *fakeEngine) Test(ctx context.Context, desc Descriptor) error {
	f.seenDSNs = append(f.seenDSNs, desc.DSN)
	return nil
}

func (f *fakeEngine) Introspect(ctx context.Context, desc Descriptor) (*schema.Snapshot, error) {
	f.seenDSNs = append(f.seenDSNs, desc.DSN)
	return &schema.Snapshot{
		Engine:   string(f.tag),
		Database: desc.Database,
		Tables:   []schema.Table{{Name: "orders", Columns: []schema.Column{{Name: "id", Type: "integer"}}}},
	}, nil
}

func (f *fakeEngine) Execute(ctx context.Context, desc Descriptor, query string) ([]map[string]any, error) {
	f.seenDSNs = append(f.seenDSNs, desc.DSN)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.rows, nil
}

func testTimeouts() config.TimeoutsConfig {
	return config.TimeoutsConfig{Connect: time.Second, Query: time.Second}
}

func newTestGateway(t *testing.T) (*Gateway, *secret.Keeper, *fakeEngine) {
	t.Helper()
	keeper, err := secret.NewKeeper(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	eng := &fakeEngine{tag: EnginePostgres, rows: []map[string]any{{"id": int64(1)}}}
	gw := New(keeper, testTimeouts(), nil)
	gw.Register(eng)
	return gw, keeper, eng
}

func sealDSN(t *testing.T, keeper *secret.Keeper, dsn string) string {
	t.Helper()
	sealed, err := keeper.Seal(dsn)
	require.NoError(t, err)
	return sealed
}

func TestGateway_AdapterSeesDecryptedDSN(t *testing.T) {
	gw, keeper, eng := newTestGateway(t)
	sealed := SealedDescriptor{
		Engine:    EnginePostgres,
		SealedDSN: sealDSN(t, keeper, "postgres://u:p@localhost/shop"),
		Database:  "shop",
	}

	err := gw.TestConnection(context.Background(), sealed)

	require.NoError(t, err)
	require.Len(t, eng.seenDSNs, 1)
	assert.Equal(t, "postgres://u:p@localhost/shop", eng.seenDSNs[0])
}

func TestGateway_DisabledDescriptorIsRejected(t *testing.T) {
	gw, keeper, eng := newTestGateway(t)
	sealed := SealedDescriptor{
		Engine:    EnginePostgres,
		SealedDSN: sealDSN(t, keeper, "postgres://localhost/shop"),
		Disabled:  true,
	}

	_, err := gw.ExecuteReadQuery(context.Background(), sealed, "SELECT 1")

	assert.True(t, errs.IsNoActiveDatabase(err), "got %v", err)
	assert.Empty(t, eng.seenDSNs)
}

func TestGateway_UnregisteredEngine(t *testing.T) {
	gw, keeper, _ := newTestGateway(t)
	sealed := SealedDescriptor{
		Engine:    EngineMongo,
		SealedDSN: sealDSN(t, keeper, "mongodb://localhost/shop"),
	}

	_, err := gw.IntrospectSchema(context.Background(), sealed)

	assert.True(t, errs.IsUnsupportedEngine(err), "got %v", err)
}

func TestGateway_CorruptSealedDSN(t *testing.T) {
	gw, _, eng := newTestGateway(t)
	sealed := SealedDescriptor{Engine: EnginePostgres, SealedDSN: "bm90IHNlYWxlZA=="}

	err := gw.TestConnection(context.Background(), sealed)

	assert.True(t, errs.IsConnectionFailed(err), "got %v", err)
	assert.Empty(t, eng.seenDSNs)
}

func TestGateway_IntrospectValidatesSnapshot(t *testing.T) {
	gw, keeper, _ := newTestGateway(t)
	sealed := SealedDescriptor{
		Engine:    EnginePostgres,
		SealedDSN: sealDSN(t, keeper, "postgres://localhost/shop"),
		Database:  "shop",
	}

	snap, err := gw.IntrospectSchema(context.Background(), sealed)

	require.NoError(t, err)
	assert.Equal(t, "shop", snap.Database)
	require.Len(t, snap.Tables, 1)
}

// fakeRows feeds ScanRows a scripted result set.
type fakeRows struct {
	columns []string
	data    [][]any
	idx     int
	closed  bool
	iterErr error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return r.iterErr }

func TestScanRows(t *testing.T) {
	rows := &fakeRows{
		columns: []string{"id", "name"},
		data: [][]any{
			{int64(1), []byte("Ada")},
			{int64(2), nil},
		},
	}

	got, err := ScanRows(rows)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0]["id"])
	assert.Equal(t, "Ada", got[0]["name"], "byte slices become strings")
	assert.Nil(t, got[1]["name"])
	assert.True(t, rows.closed)
}

func TestScanRows_EmptyResultIsNonNil(t *testing.T) {
	got, err := ScanRows(&fakeRows{columns: []string{"id"}})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScanRows_IterationError(t *testing.T) {
	rows := &fakeRows{columns: []string{"id"}, iterErr: errors.New("connection lost")}

	_, err := ScanRows(rows)

	assert.True(t, errs.IsQueryFailed(err), "got %v", err)
	assert.True(t, rows.closed)
}
