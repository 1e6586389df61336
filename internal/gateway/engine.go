package gateway

import (
	"strings"

	"github.com/edarah/dbgateway/internal/errs"
)

// EngineTag identifies a supported database family.
type EngineTag string

const (
	EnginePostgres EngineTag = "postgres"
	EngineMySQL    EngineTag = "mysql"
	EngineMariaDB  EngineTag = "mariadb"
	EngineSQLite   EngineTag = "sqlite"
	EngineMongo    EngineTag = "mongodb"
)

// Relational reports whether the engine speaks SQL. The document engine
// accepts a constrained pipeline description instead.
func (t EngineTag) Relational() bool {
	return t != EngineMongo
}

// QuoteIdentifier quotes an identifier in the engine's dialect. Postgres is
// the case-sensitive family member: unquoted identifiers fold to lower case,
// so mixed-case names must be double-quoted. MySQL-family engines use
// backticks; callers consult the tag rather than relying on normalization.
func (t EngineTag) QuoteIdentifier(name string) string {
	switch t {
	case EngineMySQL, EngineMariaDB:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Descriptor is a decrypted connection descriptor: everything an adapter
// needs to open one connection. It exists only on the stack during a single
// gateway operation — nothing persists it.
type Descriptor struct {
	Engine   EngineTag
	DSN      string
	Database string
}

// SealedDescriptor is the stored form: the DSN is sealed by secret.Keeper.
// Soft-deleted descriptors carry Disabled=true and are never handed to
// adapters.
type SealedDescriptor struct {
	Engine    EngineTag `json:"engine"`
	SealedDSN string    `json:"sealed_dsn"`
	Database  string    `json:"database"`
	Disabled  bool      `json:"disabled"`
}

// DetectEngine inspects scheme and suffix tokens of a connection descriptor
// string and returns the matching engine family. It is a pure function of its
// input; unrecognized descriptors yield UnsupportedEngine.
func DetectEngine(descriptor string) (EngineTag, error) {
	s := strings.TrimSpace(strings.ToLower(descriptor))

	switch {
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"):
		return EnginePostgres, nil
	case strings.HasPrefix(s, "mariadb://"):
		return EngineMariaDB, nil
	case strings.HasPrefix(s, "mysql://"), strings.Contains(s, "@tcp("):
		return EngineMySQL, nil
	case strings.HasPrefix(s, "mongodb://"), strings.HasPrefix(s, "mongodb+srv://"):
		return EngineMongo, nil
	case strings.HasPrefix(s, "sqlite://"), strings.HasPrefix(s, "file:"),
		strings.HasSuffix(s, ".db"), strings.HasSuffix(s, ".sqlite"), strings.HasSuffix(s, ".sqlite3"):
		return EngineSQLite, nil
	}
	return "", errs.New(errs.ErrKindUnsupportedEngine, "connection string matches no supported engine")
}
