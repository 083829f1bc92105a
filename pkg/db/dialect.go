package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypeSQLite    = "sqlite"
	TypeSQLiteCGO = "sqlite3"
	TypePostgres  = "postgres"
	TypeMySQL     = "mysql"
)

const sqliteBusyTimeoutMS = 5000

func Dialect(cfg Config) (gorm.Dialector, error) {
	switch cfg.Type {
	case TypeMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Name,
		)), nil
	case TypePostgres:
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	case TypeSQLite, "":
		// pure Go driver (modernc), pragmas apply to every pooled connection.
		// Transactions take the write lock at BEGIN so a read-then-write tick
		// waits on busy_timeout instead of failing its lock upgrade.
		return sqlite.Open(withParams(sqlitePath(cfg),
			fmt.Sprintf("_pragma=busy_timeout(%d)", sqliteBusyTimeoutMS),
			"_pragma=journal_mode(WAL)",
			"_pragma=foreign_keys(1)",
			"_txlock=immediate",
		)), nil
	case TypeSQLiteCGO:
		return cgosqlite.Open(withParams(sqlitePath(cfg),
			fmt.Sprintf("_busy_timeout=%d", sqliteBusyTimeoutMS),
			"_journal_mode=WAL",
			"_foreign_keys=1",
			"_txlock=immediate",
		)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}

func sqlitePath(cfg Config) string {
	if strings.TrimSpace(cfg.Path) == "" {
		return "plant_data.db"
	}
	return cfg.Path
}

func withParams(dsn string, params ...string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
