package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const txChunkSize = 50

// InsertTransactionsTx inserts transactions inside a flush transaction in
// chunks, ignoring duplicate (signature, token, time) keys.
func (r *Repository) InsertTransactionsTx(ctx context.Context, tx pgx.Tx, txs []TokenTransaction) error {
	query := `
		INSERT INTO timeseries.token_transactions (
			signature, token_address, time, kind, user_address,
			token_amount, sol_amount, price_usd, price_sol, slot, fee
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (signature, token_address, time) DO NOTHING
	`
	for start := 0; start < len(txs); start += txChunkSize {
		end := start + txChunkSize
		if end > len(txs) {
			end = len(txs)
		}
		batch := &pgx.Batch{}
		for _, t := range txs[start:end] {
			batch.Queue(query,
				t.Signature, t.TokenAddress, t.Time, t.Kind, t.UserAddress,
				t.TokenAmount, t.SolAmount, t.PriceUSD, t.PriceSol,
				int64(t.Slot), int64(t.Fee),
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert transactions: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close transaction batch: %w", err)
		}
	}
	return nil
}

// RecentTransactions returns the latest transactions for a token.
func (r *Repository) RecentTransactions(ctx context.Context, address string, limit int) ([]TokenTransaction, error) {
	query := `
		SELECT signature, token_address, time, kind, user_address,
		       token_amount, sol_amount, price_usd, price_sol, slot, fee
		FROM timeseries.token_transactions
		WHERE token_address = $1
		ORDER BY time DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()

	var txs []TokenTransaction
	for rows.Next() {
		var t TokenTransaction
		var slot, fee int64
		if err := rows.Scan(
			&t.Signature, &t.TokenAddress, &t.Time, &t.Kind, &t.UserAddress,
			&t.TokenAmount, &t.SolAmount, &t.PriceUSD, &t.PriceSol, &slot, &fee,
		); err != nil {
			return nil, err
		}
		t.Slot = uint64(slot)
		t.Fee = uint64(fee)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
