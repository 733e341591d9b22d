package database

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertEvaluation appends one buy-evaluation row.
func (r *Repository) InsertEvaluation(ctx context.Context, e *BuyEvaluation) error {
	criteria, err := json.Marshal(e.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	observed, err := json.Marshal(e.Observed)
	if err != nil {
		return fmt.Errorf("marshal observed: %w", err)
	}
	reasons := e.FailureReasons
	if reasons == nil {
		reasons = []string{}
	}
	query := `
		INSERT INTO buy_evaluations (token_address, passed, criteria, observed, failure_reasons, confidence, risk_level, recommended_position, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = r.db.Pool.QueryRow(ctx, query,
		e.TokenAddress, e.Passed, criteria, observed, reasons,
		e.Confidence, e.RiskLevel, e.RecommendedPosition, e.DurationMs,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns the latest evaluations for a token.
func (r *Repository) ListEvaluations(ctx context.Context, address string, limit int) ([]*BuyEvaluation, error) {
	query := `
		SELECT id, token_address, passed, criteria, observed, failure_reasons,
		       confidence, risk_level, recommended_position, duration_ms, created_at
		FROM buy_evaluations
		WHERE token_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*BuyEvaluation
	for rows.Next() {
		e := &BuyEvaluation{}
		var criteria, observed []byte
		if err := rows.Scan(&e.ID, &e.TokenAddress, &e.Passed, &criteria, &observed,
			&e.FailureReasons, &e.Confidence, &e.RiskLevel, &e.RecommendedPosition,
			&e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(criteria, &e.Criteria)
		_ = json.Unmarshal(observed, &e.Observed)
		out = append(out, e)
	}
	return out, rows.Err()
}
