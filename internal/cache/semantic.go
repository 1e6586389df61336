package cache

import (
	"math"
	"sync"
)

// SemanticIndex is a best-effort approximate-match layer in front of the
// generated-query cache. It holds (question, embedding, query) triples per
// tenant database and answers lookups by cosine similarity.
//
// It never invents a match: vectors with undefined similarity (zero norm,
// mismatched dimensions) score 0 and fall below any sane threshold.
type SemanticIndex struct {
	mu          sync.Mutex
	threshold   float64
	maxPerScope int
	entries     map[scope][]semEntry
}

type scope struct {
	tenant   string
	database string
}

type semEntry struct {
	question  string
	vector    []float64
	queryText string
}

// Match is a successful similarity lookup.
type Match struct {
	Question  string
	QueryText string
	Score     float64
}

// NewSemanticIndex creates an index that matches at or above threshold and
// keeps at most maxPerScope triples per tenant database (oldest dropped first).
func NewSemanticIndex(threshold float64, maxPerScope int) *SemanticIndex {
	return &SemanticIndex{
		threshold:   threshold,
		maxPerScope: maxPerScope,
		entries:     make(map[scope][]semEntry),
	}
}

// Add records a question/embedding/query triple.
func (si *SemanticIndex) Add(tenant, database, question string, vector []float64, queryText string) {
	if len(vector) == 0 {
		return
	}
	si.mu.Lock()
	defer si.mu.Unlock()

	sc := scope{tenant: tenant, database: database}
	list := si.entries[sc]
	if len(list) >= si.maxPerScope {
		list = list[1:]
	}
	si.entries[sc] = append(list, semEntry{question: question, vector: vector, queryText: queryText})
}

// Lookup returns the highest-similarity triple at or above the threshold,
// or false when nothing qualifies.
func (si *SemanticIndex) Lookup(tenant, database string, vector []float64) (Match, bool) {
	si.mu.Lock()
	defer si.mu.Unlock()

	var best Match
	for _, e := range si.entries[scope{tenant: tenant, database: database}] {
		score := cosineSimilarity(vector, e.vector)
		if score >= si.threshold && score > best.Score {
			best = Match{Question: e.question, QueryText: e.queryText, Score: score}
		}
	}
	return best, best.Score > 0
}

// Invalidate drops all triples for a tenant, or for one of its databases when
// database is non-empty.
func (si *SemanticIndex) Invalidate(tenant, database string) {
	si.mu.Lock()
	defer si.mu.Unlock()

	for sc := range si.entries {
		if sc.tenant == tenant && (database == "" || sc.database == database) {
			delete(si.entries, sc)
		}
	}
}

// cosineSimilarity returns 0 for vectors whose similarity is undefined
// (length mismatch or zero norm) so they can never satisfy the threshold.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
