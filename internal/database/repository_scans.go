package database

import (
	"context"
	"fmt"
)

// InsertScanLog appends one scan log row.
func (r *Repository) InsertScanLog(ctx context.Context, s *ScanLog) error {
	query := `
		INSERT INTO scan_logs (token_address, category, scan_number, duration_ms, apis_used, error, is_final)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	apis := s.APIsUsed
	if apis == nil {
		apis = []string{}
	}
	err := r.db.Pool.QueryRow(ctx, query,
		s.TokenAddress, s.Category, s.ScanNumber, s.DurationMs, apis, s.Error, s.IsFinal,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan log: %w", err)
	}
	return nil
}

// ListScanLogs returns the latest scan logs for a token.
func (r *Repository) ListScanLogs(ctx context.Context, address string, limit int) ([]*ScanLog, error) {
	query := `
		SELECT id, token_address, category, scan_number, duration_ms, apis_used, error, is_final, created_at
		FROM scan_logs
		WHERE token_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	defer rows.Close()

	var out []*ScanLog
	for rows.Next() {
		s := &ScanLog{}
		if err := rows.Scan(&s.ID, &s.TokenAddress, &s.Category, &s.ScanNumber,
			&s.DurationMs, &s.APIsUsed, &s.Error, &s.IsFinal, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
