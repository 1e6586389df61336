package mongo

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/edarah/dbgateway/internal/errs"
)

// Pipeline is a parsed, read-only query against one collection.
type Pipeline struct {
	Collection string
	Stages     bson.A
}

// Aggregation stages that are expressible as a pure read. Anything else —
// $out, $merge, and everything unknown — is rejected outright.
var readStages = map[string]bool{
	"$match":   true,
	"$group":   true,
	"$sort":    true,
	"$limit":   true,
	"$skip":    true,
	"$project": true,
	"$count":   true,
	"$unwind":  true,
	"$lookup":  true,
}

// Operators that execute arbitrary code server-side. Rejected anywhere in the
// query text as a defense-in-depth measure, even inside string literals.
var forbiddenOperators = []string{"$where", "$function", "$accumulator", "$out", "$merge"}

// ParsePipeline parses the constrained pipeline-description grammar:
//
//	<collection>.find(<filter-json>)
//	<collection>.aggregate(<stage-array-json>)
//
// find filters become a single $match stage. Any stage or operator that is
// not a pure read fails with UnsafeQuery — never a silent rewrite.
func ParsePipeline(query string) (*Pipeline, error) {
	q := strings.TrimSpace(query)

	for _, op := range forbiddenOperators {
		if strings.Contains(q, op) {
			return nil, errs.UnsafeQuery(fmt.Errorf("operator %s is not allowed", op))
		}
	}

	collection, verb, arg, err := splitCall(q)
	if err != nil {
		return nil, errs.UnsafeQuery(err)
	}

	switch verb {
	case "find":
		if arg == "" {
			arg = "{}"
		}
		var filter bson.D
		if err := bson.UnmarshalExtJSON([]byte(arg), true, &filter); err != nil {
			return nil, errs.UnsafeQuery(fmt.Errorf("invalid find filter: %w", err))
		}
		return &Pipeline{
			Collection: collection,
			Stages:     bson.A{bson.D{{Key: "$match", Value: filter}}},
		}, nil

	case "aggregate":
		var raw struct {
			Stages bson.A `bson:"stages"`
		}
		// Wrap so extended JSON can decode a top-level array.
		wrapped := fmt.Sprintf(`{"stages": %s}`, arg)
		if err := bson.UnmarshalExtJSON([]byte(wrapped), true, &raw); err != nil {
			return nil, errs.UnsafeQuery(fmt.Errorf("invalid aggregation stages: %w", err))
		}
		for _, stage := range raw.Stages {
			if err := checkReadStage(stage); err != nil {
				return nil, errs.UnsafeQuery(err)
			}
		}
		return &Pipeline{Collection: collection, Stages: raw.Stages}, nil
	}

	return nil, errs.UnsafeQuery(fmt.Errorf("unknown pipeline verb %q", verb))
}

// splitCall breaks "orders.find({...})" into collection, verb, and argument.
func splitCall(q string) (collection, verb, arg string, err error) {
	openParen := strings.Index(q, "(")
	if openParen < 0 || !strings.HasSuffix(q, ")") {
		return "", "", "", fmt.Errorf("query does not match <collection>.<verb>(...)")
	}

	head := q[:openParen]
	arg = strings.TrimSpace(q[openParen+1 : len(q)-1])

	dot := strings.LastIndex(head, ".")
	if dot <= 0 || dot == len(head)-1 {
		return "", "", "", fmt.Errorf("query does not name a collection and verb")
	}

	collection = strings.TrimSpace(strings.TrimPrefix(head[:dot], "db."))
	verb = strings.TrimSpace(head[dot+1:])
	if collection == "" {
		return "", "", "", fmt.Errorf("query does not name a collection")
	}
	return collection, verb, arg, nil
}

func checkReadStage(stage any) error {
	doc, ok := stage.(bson.D)
	if !ok || len(doc) == 0 {
		return fmt.Errorf("aggregation stage is not a document")
	}
	name := doc[0].Key
	if !readStages[name] {
		return fmt.Errorf("aggregation stage %s is not a pure read", name)
	}
	return nil
}
