package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/schema"
)

// fakeCompleter replays scripted responses in order.
type fakeCompleter struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fakeCompleter: no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// fakeExecutor maps query text to a scripted result and records every call.
type fakeExecutor struct {
	results map[string][]map[string]any
	errs    map[string]error
	queries []string
}

func (f *fakeExecutor) ExecuteReadQuery(ctx context.Context, sealed gateway.SealedDescriptor, query string) ([]map[string]any, error) {
	f.queries = append(f.queries, query)
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	if rows, ok := f.results[query]; ok {
		return rows, nil
	}
	return []map[string]any{}, nil
}

func synthRequest(engine gateway.EngineTag) Request {
	return Request{
		Sealed: gateway.SealedDescriptor{Engine: engine},
		Snapshot: &schema.Snapshot{
			Engine:   string(engine),
			Database: "shop",
			Tables: []schema.Table{
				{Name: "orders", Columns: []schema.Column{
					{Name: "id", Type: "integer", PrimaryKey: true},
					{Name: "status", Type: "text"},
				}},
			},
		},
		Question: "show me orders",
	}
}

func oneRow() []map[string]any {
	return []map[string]any{{"id": int64(1)}}
}

func TestSynthesize_ValidDraftWithRows(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"SELECT * FROM orders"}}
	executor := &fakeExecutor{results: map[string][]map[string]any{
		"SELECT * FROM orders": oneRow(),
	}}
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders", out.QueryText)
	assert.Len(t, out.Rows, 1)
	assert.False(t, out.Relaxed)
	assert.False(t, out.FellBack)
	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, []string{"SELECT * FROM orders"}, executor.queries)
}

func TestSynthesize_EmptyResultIsRelaxedOnce(t *testing.T) {
	strict := "SELECT * FROM orders WHERE status = 'shipped'"
	completer := &fakeCompleter{responses: []string{strict}}
	executor := &fakeExecutor{results: map[string][]map[string]any{
		strict:                 {},
		"SELECT * FROM orders": oneRow(),
	}}
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.True(t, out.Relaxed)
	assert.Equal(t, "SELECT * FROM orders", out.QueryText)
	assert.Len(t, out.Rows, 1)
	assert.Equal(t, []string{strict, "SELECT * FROM orders"}, executor.queries)
}

func TestSynthesize_EmptyAfterRelaxIsLegitimateAnswer(t *testing.T) {
	strict := "SELECT * FROM orders WHERE status = 'shipped'"
	completer := &fakeCompleter{responses: []string{strict}}
	executor := &fakeExecutor{} // every query yields zero rows
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.Equal(t, strict, out.QueryText, "original query is reported, not the relaxed one")
	assert.Empty(t, out.Rows)
	assert.False(t, out.Relaxed)
	assert.False(t, out.FellBack)
}

func TestSynthesize_UnsafeDraftGetsOneRepair(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"DROP TABLE orders",
		"SELECT * FROM orders",
	}}
	executor := &fakeExecutor{results: map[string][]map[string]any{
		"SELECT * FROM orders": oneRow(),
	}}
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders", out.QueryText)
	assert.Equal(t, 2, completer.calls)
}

func TestSynthesize_UnsafeDraftAndRepairNeverTouchDatabase(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"DROP TABLE orders",
		"DELETE FROM orders",
	}}
	executor := &fakeExecutor{}
	m := New(executor, completer, 50, nil)

	_, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	assert.True(t, errs.IsUnsafeQuery(err), "got %v", err)
	assert.Empty(t, executor.queries, "no statement may reach the database")
	assert.Equal(t, 2, completer.calls)
}

func TestSynthesize_ExecutionErrorGetsOneRepair(t *testing.T) {
	bad := "SELECT nope FROM orders"
	good := "SELECT id FROM orders"
	completer := &fakeCompleter{responses: []string{bad, good}}
	executor := &fakeExecutor{
		errs:    map[string]error{bad: errs.New(errs.ErrKindQueryFailed, "column nope does not exist")},
		results: map[string][]map[string]any{good: oneRow()},
	}
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.Equal(t, good, out.QueryText)
	assert.Equal(t, 2, completer.calls)
	assert.Equal(t, []string{bad, good}, executor.queries)
}

func TestSynthesize_FallbackProbeOnCompleterFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("provider unavailable")}
	probe := `SELECT * FROM "orders" LIMIT 50`
	executor := &fakeExecutor{results: map[string][]map[string]any{probe: oneRow()}}
	m := New(executor, completer, 50, nil)

	out, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	require.NoError(t, err)
	assert.True(t, out.FellBack)
	assert.Equal(t, probe, out.QueryText)
	assert.Len(t, out.Rows, 1)
}

func TestSynthesize_FallbackFailureIsGenerationFailed(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("provider unavailable")}
	probe := `SELECT * FROM "orders" LIMIT 50`
	executor := &fakeExecutor{errs: map[string]error{
		probe: errs.New(errs.ErrKindConnectionFailed, "database unreachable"),
	}}
	m := New(executor, completer, 50, nil)

	_, err := m.Synthesize(context.Background(), synthRequest(gateway.EnginePostgres))

	assert.True(t, errs.IsGenerationFailed(err), "got %v", err)
}

func TestPlausibleTable(t *testing.T) {
	snap := &schema.Snapshot{Tables: []schema.Table{
		{Name: "orders"},
		{Name: "order_items"},
		{Name: "customers"},
	}}

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{name: "exact plural", question: "show me all orders", want: "orders"},
		{name: "singular matches plural", question: "latest order please", want: "order_items"},
		{name: "substring", question: "who are my customers?", want: "customers"},
		{name: "nothing plausible", question: "weather in Oslo", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plausibleTable(snap, tt.question))
		})
	}
}
