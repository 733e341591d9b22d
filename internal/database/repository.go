package database

import "context"

// Repository is the data-access surface. Query methods are grouped by
// concern across the repository_*.go files.
type Repository struct {
	db *DB
}

// NewRepository wraps a pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the pool.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// DB exposes the pool wrapper for callers that scope their own transactions.
func (r *Repository) DB() *DB {
	return r.db
}
