package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type healthStorage struct {
	db *sqlx.DB
}

// NewHealthCheckStorage wraps the pool for readiness probes
func NewHealthCheckStorage(db *sqlx.DB) HealthCheckStorage {
	return &healthStorage{db: db}
}

func (s *healthStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
