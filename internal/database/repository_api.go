package database

import (
	"context"
	"fmt"
	"time"
)

// InsertAPICall records one external API call.
func (r *Repository) InsertAPICall(ctx context.Context, l *APICallLog) error {
	query := `
		INSERT INTO api_call_logs (provider, endpoint, status_code, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		l.Provider, l.Endpoint, l.StatusCode, l.DurationMs, l.Error,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api call log: %w", err)
	}
	return nil
}

// InsertSolPrice appends a SOL/USD price point.
func (r *Repository) InsertSolPrice(ctx context.Context, priceUSD float64, source string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO sol_price_history (price_usd, source) VALUES ($1, $2)`,
		priceUSD, source,
	)
	if err != nil {
		return fmt.Errorf("insert sol price: %w", err)
	}
	return nil
}

// LatestSolPrice returns the most recent SOL/USD price point.
func (r *Repository) LatestSolPrice(ctx context.Context) (*SolPricePoint, error) {
	p := &SolPricePoint{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, price_usd, source, time
		FROM sol_price_history
		ORDER BY time DESC
		LIMIT 1
	`).Scan(&p.ID, &p.PriceUSD, &p.Source, &p.Time)
	if err != nil {
		return nil, fmt.Errorf("latest sol price: %w", err)
	}
	return p, nil
}

// PruneAPICallLogs removes log rows older than the retention window.
func (r *Repository) PruneAPICallLogs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM api_call_logs WHERE created_at < $1`,
		time.Now().Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("prune api call logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
