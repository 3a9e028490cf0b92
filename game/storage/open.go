package storage

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Open builds the repository selected by cfg. db is required by the SQL
// drivers and ignored otherwise.
func Open(ctx context.Context, cfg Config, redisCfg RedisConfig, db *sqlx.DB) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.DriverName() {
	case DriverRedis:
		return OpenRedis(ctx, redisCfg)
	case DriverPostgres, DriverSQLite:
		if db == nil {
			return nil, errors.New("storage: sql driver selected but no database connection")
		}
		return NewSQL(db), nil
	}
	return NewMemory(), nil
}
