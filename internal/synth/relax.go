package synth

import (
	"strings"

	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/schema"
)

// clause keywords that terminate a WHERE clause at the top nesting level.
var whereTerminators = map[string]bool{
	"GROUP":  true,
	"ORDER":  true,
	"HAVING": true,
	"LIMIT":  true,
	"OFFSET": true,
	"UNION":  true,
}

// statusLike reports whether a column name looks like a status discriminator.
func statusLike(name string) bool {
	n := strings.ToLower(strings.Trim(name, "`\""))
	if dot := strings.LastIndex(n, "."); dot >= 0 {
		n = n[dot+1:]
	}
	return strings.Contains(n, "status") || strings.Contains(n, "state") || strings.Contains(n, "phase")
}

// Relax mechanically loosens a query that executed cleanly but returned zero
// rows. Rules are applied to the token list in order:
//
//  1. An equality filter on a status-like column is widened to the column's
//     known value set when the snapshot exposes one, otherwise the filter is
//     dropped (with its joining AND).
//  2. Failing that, the entire WHERE clause is stripped, preserving any
//     trailing GROUP/ORDER/LIMIT tail.
//  3. A query with no WHERE clause is returned unchanged.
//
// The boolean result reports whether anything changed. For the document
// engine the $match filter is emptied instead.
func Relax(engine gateway.EngineTag, query string, snap *schema.Snapshot) (string, bool) {
	if engine == gateway.EngineMongo {
		return relaxPipeline(query)
	}

	tokens := Tokenize(query)

	whereIdx := -1
	endIdx := len(tokens)
	for i, t := range tokens {
		if t.Depth != 0 || t.Kind != TokenWord {
			continue
		}
		upper := t.Upper()
		if whereIdx < 0 && upper == "WHERE" {
			whereIdx = i
			continue
		}
		if whereIdx >= 0 && whereTerminators[upper] {
			endIdx = i
			break
		}
	}
	if whereIdx < 0 {
		return query, false
	}

	body := tokens[whereIdx+1 : endIdx]

	if rewritten, ok := widenStatusFilter(body, snap); ok {
		out := append([]Token{}, tokens[:whereIdx+1]...)
		out = append(out, rewritten...)
		out = append(out, tokens[endIdx:]...)
		return Join(out), true
	}

	// Strip the whole WHERE clause, keeping the trailing tail.
	out := append([]Token{}, tokens[:whereIdx]...)
	out = append(out, tokens[endIdx:]...)
	return Join(out), true
}

// widenStatusFilter looks for `col = literal` on a status-like column inside
// the WHERE body. When the snapshot knows the column's allowed values the
// predicate becomes an IN over all of them; otherwise the predicate (and its
// joining AND) is removed. Returns false when no status-like equality exists
// or when removal would leave the WHERE body empty — the caller then strips
// the clause entirely.
func widenStatusFilter(body []Token, snap *schema.Snapshot) ([]Token, bool) {
	for i := 0; i+2 < len(body); i++ {
		if body[i].Kind != TokenWord || !statusLike(body[i].Text) {
			continue
		}
		if body[i+1].Text != "=" {
			continue
		}
		if body[i+2].Kind != TokenString && body[i+2].Kind != TokenWord && body[i+2].Kind != TokenNumber {
			continue
		}

		if values := enumValuesFor(snap, body[i].Text); len(values) > 0 {
			widened := append([]Token{}, body[:i+1]...)
			widened = append(widened, Token{Kind: TokenWord, Text: "IN"}, Token{Kind: TokenSymbol, Text: "("})
			for vi, v := range values {
				if vi > 0 {
					widened = append(widened, Token{Kind: TokenSymbol, Text: ","})
				}
				widened = append(widened, Token{Kind: TokenString, Text: "'" + strings.ReplaceAll(v, "'", "''") + "'"})
			}
			widened = append(widened, Token{Kind: TokenSymbol, Text: ")"})
			widened = append(widened, body[i+3:]...)
			return widened, true
		}

		// Drop the predicate with its joining AND.
		start, end := i, i+3
		if start >= 1 && body[start-1].Kind == TokenWord && body[start-1].Upper() == "AND" {
			start--
		} else if end < len(body) && body[end].Kind == TokenWord && body[end].Upper() == "AND" {
			end++
		}

		remaining := append([]Token{}, body[:start]...)
		remaining = append(remaining, body[end:]...)
		if len(remaining) == 0 {
			return nil, false
		}
		return remaining, true
	}
	return nil, false
}

// enumValuesFor finds the declared value set for a (possibly table-qualified)
// column name anywhere in the snapshot.
func enumValuesFor(snap *schema.Snapshot, column string) []string {
	if snap == nil {
		return nil
	}
	name := strings.ToLower(strings.Trim(column, "`\""))
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	for _, t := range snap.Tables {
		for _, c := range t.Columns {
			if strings.ToLower(c.Name) == name && len(c.EnumValues) > 0 {
				return c.EnumValues
			}
		}
	}
	return nil
}

// relaxPipeline loosens a document-engine query: a find filter is emptied,
// and an aggregation loses its leading $match stage. Anything already
// unfiltered is returned unchanged.
func relaxPipeline(query string) (string, bool) {
	q := strings.TrimSpace(query)

	if open := strings.Index(q, ".find("); open >= 0 && strings.HasSuffix(q, ")") {
		arg := strings.TrimSpace(q[open+len(".find(") : len(q)-1])
		if arg == "" || arg == "{}" {
			return query, false
		}
		return q[:open] + ".find({})", true
	}

	if open := strings.Index(q, ".aggregate("); open >= 0 && strings.HasSuffix(q, ")") {
		arg := strings.TrimSpace(q[open+len(".aggregate(") : len(q)-1])
		matchStart := strings.Index(arg, `"$match"`)
		if matchStart < 0 {
			matchStart = strings.Index(arg, `'$match'`)
		}
		if matchStart < 0 {
			return query, false
		}
		// A filtered aggregation falls back to an unfiltered scan of the
		// same collection. Grouping is lost, but relaxation only runs when
		// the filtered form returned nothing at all.
		return q[:open] + ".find({})", true
	}

	return query, false
}
