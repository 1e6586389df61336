package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/gateway/mongo"
)

// readKeywords are the only statement-leading tokens accepted for SQL
// engines. WITH covers the single-CTE form the repair hints steer toward.
var readKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// mutationKeywords fail validation wherever they appear as a whole token —
// defense in depth on top of the anchored leading-keyword check.
var mutationKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"REPLACE":  true,
	"MERGE":    true,
	"GRANT":    true,
	"REVOKE":   true,
	"EXEC":     true,
	"CALL":     true,
}

// leadingKeyword anchors on the first non-whitespace word of the statement.
var leadingKeyword = regexp.MustCompile(`^\s*([A-Za-z]+)`)

// Validate checks that query is a pure read for the given engine. SQL engines
// get the anchored leading-keyword check plus a token scan for mutation
// keywords anywhere in the text; the document engine is checked against the
// constrained pipeline grammar. A rejected query is never rewritten — the
// caller decides whether to enter a repair cycle.
func Validate(engine gateway.EngineTag, query string) error {
	if engine == gateway.EngineMongo {
		_, err := mongo.ParsePipeline(query)
		return err
	}
	return validateSQL(query)
}

func validateSQL(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return errs.UnsafeQuery(fmt.Errorf("empty statement"))
	}

	m := leadingKeyword.FindStringSubmatch(trimmed)
	if m == nil || !readKeywords[strings.ToUpper(m[1])] {
		return errs.UnsafeQuery(fmt.Errorf("statement does not begin with a read keyword"))
	}

	for _, tok := range Tokenize(trimmed) {
		if tok.Kind == TokenWord && mutationKeywords[tok.Upper()] {
			return errs.UnsafeQuery(fmt.Errorf("statement contains mutation keyword %s", tok.Upper()))
		}
	}
	return nil
}

// StripFences removes markdown code-fence markers from completion output.
// Providers routinely wrap generated SQL in ```sql blocks.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	t = strings.TrimPrefix(t, "```")
	// Drop a language tag on the opening fence line.
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.ContainsAny(t[:nl], " (") {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
