package db

import (
	"database/sql"
	"fmt"

	"github.com/plainer/hub/internal/config"
)

// Open returns a *sql.DB based on the configured driver.
func Open(cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return openSQLite(cfg.DBPath)
	case "postgres":
		return openPostgres(cfg.DBUrl)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.DBDriver)
	}
}
