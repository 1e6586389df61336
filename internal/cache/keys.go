package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key scopes a cache entry. Tenant and Database are part of the key so one
// tenant can never observe another's cached payloads; Hash is the
// content-derived component.
type Key struct {
	Tenant   string
	Database string
	Hash     string
}

// HashContent returns the hex sha256 digest of raw content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuestion canonicalizes free-form question text before hashing:
// lower-cased, whitespace collapsed to single spaces, trimmed. "Show  SALES"
// and "show sales " derive the same key.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// SchemaKey derives the schema-snapshot cache key for one tenant database.
func SchemaKey(tenant, database string) Key {
	return Key{Tenant: tenant, Database: database, Hash: "schema"}
}

// QueryKey derives the generated-query cache key from the normalized question
// and the schema version it was generated against.
func QueryKey(tenant, database, question, schemaHash string) Key {
	return Key{
		Tenant:   tenant,
		Database: database,
		Hash:     HashContent(NormalizeQuestion(question) + "\n" + schemaHash),
	}
}

// EmbeddingKey derives the embedding cache key from arbitrary content text.
// Embeddings are pure functions of their input, so the key carries no
// database component.
func EmbeddingKey(tenant, content string) Key {
	return Key{Tenant: tenant, Hash: HashContent(content)}
}
