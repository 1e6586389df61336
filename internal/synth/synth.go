// Package synth turns a natural-language question plus a schema snapshot into
// a validated, executed read query.
//
// The machine moves through Drafting -> Validating -> Executing and recovers
// through two bounded detours: Relaxing (zero rows) and Repairing (one
// re-completion on error), then a deterministic fallback probe. It never
// executes a statement that has not passed validation, and a caller never
// sees a raw driver exception.
package synth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/llm"
	"github.com/edarah/dbgateway/internal/logger"
	"github.com/edarah/dbgateway/internal/schema"
)

// Executor is the slice of the gateway the machine needs. Narrow on purpose:
// tests spy on execution counts through it.
type Executor interface {
	ExecuteReadQuery(ctx context.Context, sealed gateway.SealedDescriptor, query string) ([]map[string]any, error)
}

// Machine drives one synthesis attempt per call. Stateless between calls and
// safe for concurrent use.
type Machine struct {
	executor  Executor
	completer llm.Completer
	rowLimit  int
	log       *logger.Logger
}

// Request carries everything one synthesis run needs.
type Request struct {
	Sealed       gateway.SealedDescriptor
	Snapshot     *schema.Snapshot
	Question     string
	Conversation string
}

// Outcome is a successful synthesis: the query that produced the rows (the
// relaxed form when relaxation recovered data) and the rows themselves.
type Outcome struct {
	QueryText string
	Rows      []map[string]any
	Relaxed   bool
	FellBack  bool
}

// New creates a Machine. rowLimit bounds the deterministic fallback probe.
func New(executor Executor, completer llm.Completer, rowLimit int, log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	return &Machine{executor: executor, completer: completer, rowLimit: rowLimit, log: log}
}

// Synthesize runs the full state machine for one question.
func (m *Machine) Synthesize(ctx context.Context, req Request) (*Outcome, error) {
	engine := req.Sealed.Engine
	prompt := BuildPrompt(engine, req.Snapshot, req.Question, req.Conversation)

	// Drafting.
	draft, err := m.complete(ctx, prompt)
	if err != nil {
		return m.fallback(ctx, req, err)
	}

	// Validating. An unsafe draft earns exactly one repair completion; if
	// that is unsafe too, the request fails without touching the database.
	if err := Validate(engine, draft); err != nil {
		repaired, rerr := m.complete(ctx, RepairPrompt(prompt, draft, err.Error(), engine, req.Snapshot))
		if rerr != nil {
			return nil, err
		}
		if verr := Validate(engine, repaired); verr != nil {
			return nil, verr
		}
		return m.executeValidated(ctx, req, prompt, repaired, false)
	}

	return m.executeValidated(ctx, req, prompt, draft, true)
}

// executeValidated runs a validated query. canRepair is false once the single
// repair completion has been spent.
func (m *Machine) executeValidated(ctx context.Context, req Request, prompt, query string, canRepair bool) (*Outcome, error) {
	rows, err := m.executor.ExecuteReadQuery(ctx, req.Sealed, query)
	if err == nil {
		return m.maybeRelax(ctx, req, query, rows)
	}

	if !canRepair {
		return m.fallback(ctx, req, err)
	}

	// Repairing: one re-completion with the literal error text, then one
	// more validate/execute. No further retries beyond the fallback probe.
	repaired, rerr := m.complete(ctx, RepairPrompt(prompt, query, err.Error(), req.Sealed.Engine, req.Snapshot))
	if rerr != nil {
		return m.fallback(ctx, req, err)
	}
	if verr := Validate(req.Sealed.Engine, repaired); verr != nil {
		return m.fallback(ctx, req, verr)
	}

	rows, err = m.executor.ExecuteReadQuery(ctx, req.Sealed, repaired)
	if err != nil {
		return m.fallback(ctx, req, err)
	}
	return m.maybeRelax(ctx, req, repaired, rows)
}

// maybeRelax handles the zero-row outcome: loosen the query once and
// re-execute. A still-empty result is a legitimate "no data" answer carrying
// the original query, not a failure.
func (m *Machine) maybeRelax(ctx context.Context, req Request, query string, rows []map[string]any) (*Outcome, error) {
	if len(rows) > 0 {
		return &Outcome{QueryText: query, Rows: rows}, nil
	}

	relaxed, changed := Relax(req.Sealed.Engine, query, req.Snapshot)
	if !changed {
		return &Outcome{QueryText: query, Rows: rows}, nil
	}

	relaxedRows, err := m.executor.ExecuteReadQuery(ctx, req.Sealed, relaxed)
	if err != nil || len(relaxedRows) == 0 {
		if err != nil {
			m.log.With().Err(err).Logger().Debug("relaxed query failed, keeping original empty result")
		}
		return &Outcome{QueryText: query, Rows: rows}, nil
	}

	m.log.With().Str("engine", string(req.Sealed.Engine)).Logger().Debug("relaxation recovered rows")
	return &Outcome{QueryText: relaxed, Rows: relaxedRows, Relaxed: true}, nil
}

// fallback issues the deterministic probe: a bounded scan of the most
// plausible table, or a schema-listing probe when nothing in the question
// names one. If even that fails, the run ends in GenerationFailed with the
// underlying cause attached for logging.
func (m *Machine) fallback(ctx context.Context, req Request, cause error) (*Outcome, error) {
	query := m.fallbackQuery(req)

	rows, err := m.executor.ExecuteReadQuery(ctx, req.Sealed, query)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindGenerationFailed, "could not generate a working query", cause)
	}
	return &Outcome{QueryText: query, Rows: rows, FellBack: true}, nil
}

func (m *Machine) fallbackQuery(req Request) string {
	engine := req.Sealed.Engine
	table := plausibleTable(req.Snapshot, req.Question)

	if engine == gateway.EngineMongo {
		if table == "" && len(req.Snapshot.Tables) > 0 {
			table = req.Snapshot.Tables[0].Name
		}
		return fmt.Sprintf("%s.aggregate([{\"$limit\": %d}])", table, m.rowLimit)
	}

	if table != "" {
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", engine.QuoteIdentifier(table), m.rowLimit)
	}

	// Introspection probe: list what exists so the caller gets something.
	switch engine {
	case gateway.EngineSQLite:
		return fmt.Sprintf("SELECT name FROM sqlite_master WHERE type = 'table' LIMIT %d", m.rowLimit)
	case gateway.EngineMySQL, gateway.EngineMariaDB:
		return fmt.Sprintf("SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() LIMIT %d", m.rowLimit)
	default:
		return fmt.Sprintf("SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' LIMIT %d", m.rowLimit)
	}
}

// plausibleTable scores tables by word overlap between the question and the
// table name; ties break alphabetically so the probe stays deterministic.
func plausibleTable(snap *schema.Snapshot, question string) string {
	if snap == nil || len(snap.Tables) == 0 {
		return ""
	}

	words := strings.Fields(strings.ToLower(question))
	type scored struct {
		name  string
		score int
	}
	var candidates []scored

	for _, t := range snap.Tables {
		name := strings.ToLower(t.Name)
		score := 0
		for _, w := range words {
			w = strings.Trim(w, ".,?!\"'")
			if len(w) < 3 {
				continue
			}
			if name == w || name == w+"s" || name+"s" == w || strings.Contains(name, w) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{name: t.Name, score: score})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})
	return candidates[0].name
}

// complete invokes the collaborator once and strips fence markers.
func (m *Machine) complete(ctx context.Context, prompt string) (string, error) {
	text, err := m.completer.Complete(ctx, prompt)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindGenerationFailed, "completion provider failed", err)
	}
	return StripFences(text), nil
}
