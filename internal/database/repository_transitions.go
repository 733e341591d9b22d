package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertTransitionTx appends a category transition inside the commit that
// also updates the token row.
func (r *Repository) InsertTransitionTx(ctx context.Context, tx pgx.Tx, t *CategoryTransition) error {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal transition metadata: %w", err)
	}
	query := `
		INSERT INTO category_transitions (token_address, from_category, to_category, market_cap_at_transition, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	return tx.QueryRow(ctx, query,
		t.TokenAddress, t.FromCategory, t.ToCategory, t.MarketCapAtTransition, t.Reason, payload,
	).Scan(&t.ID, &t.CreatedAt)
}

// CommitTransition persists the token-row category update and the transition
// log in one transaction. When the target is AIM it also bumps aim_attempts
// and returns the new count.
func (r *Repository) CommitTransition(ctx context.Context, t *CategoryTransition, toAim bool) (int, error) {
	var aimAttempts int
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.UpdateCategoryTx(ctx, tx, t.TokenAddress, t.ToCategory, t.FromCategory); err != nil {
			return err
		}
		if err := r.InsertTransitionTx(ctx, tx, t); err != nil {
			return err
		}
		if toAim {
			n, err := r.IncrementAimAttemptsTx(ctx, tx, t.TokenAddress)
			if err != nil {
				return err
			}
			aimAttempts = n
		}
		return nil
	})
	return aimAttempts, err
}

// ListTransitions returns the most recent transitions for a token.
func (r *Repository) ListTransitions(ctx context.Context, address string, limit int) ([]*CategoryTransition, error) {
	query := `
		SELECT id, token_address, from_category, to_category, market_cap_at_transition, reason, metadata, created_at
		FROM category_transitions
		WHERE token_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []*CategoryTransition
	for rows.Next() {
		t := &CategoryTransition{}
		var payload []byte
		if err := rows.Scan(&t.ID, &t.TokenAddress, &t.FromCategory, &t.ToCategory,
			&t.MarketCapAtTransition, &t.Reason, &payload, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &t.Metadata)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
