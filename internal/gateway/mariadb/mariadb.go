// Package mariadb is the MariaDB engine adapter. MariaDB speaks the MySQL
// wire protocol and shares its information_schema layout, so the adapter is
// a variant of the mysql driver under its own tag. It does not surface enum
// metadata: only one relational family member does, and that is MySQL.
package mariadb

import (
	"github.com/edarah/dbgateway/internal/gateway"
	"github.com/edarah/dbgateway/internal/gateway/mysql"
	"github.com/edarah/dbgateway/internal/logger"
)

// New creates the MariaDB adapter.
func New(log *logger.Logger) gateway.Engine {
	return mysql.NewVariant(gateway.EngineMariaDB, false, log)
}
