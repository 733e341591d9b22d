package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// priceChunkSize bounds the parameterized upsert batches within a flush.
const priceChunkSize = 50

// DedupPriceSamples collapses samples sharing a (token, time) key, keeping
// the record with the largest slot per key. Required before the flush upsert:
// PostgreSQL rejects an INSERT ... ON CONFLICT that would touch the same row
// twice in one statement.
func DedupPriceSamples(samples []PriceSample) []PriceSample {
	type key struct {
		token string
		ts    time.Time
	}
	best := make(map[key]PriceSample, len(samples))
	order := make([]key, 0, len(samples))
	for _, s := range samples {
		k := key{s.TokenAddress, s.Time}
		if cur, ok := best[k]; !ok {
			best[k] = s
			order = append(order, k)
		} else if s.Slot > cur.Slot {
			best[k] = s
		}
	}
	out := make([]PriceSample, 0, len(best))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// InsertPriceSamplesTx upserts price samples inside a flush transaction in
// chunks, updating price, market cap and liquidity on conflict. The input
// must already be deduplicated per (token, time).
func (r *Repository) InsertPriceSamplesTx(ctx context.Context, tx pgx.Tx, samples []PriceSample) error {
	query := `
		INSERT INTO timeseries.token_prices (
			token_address, time, price_usd, price_sol,
			virtual_sol_reserves, virtual_token_reserves,
			real_sol_reserves, real_token_reserves,
			market_cap, liquidity_usd, slot, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (token_address, time) DO UPDATE
		SET price_usd = EXCLUDED.price_usd,
		    price_sol = EXCLUDED.price_sol,
		    market_cap = EXCLUDED.market_cap,
		    liquidity_usd = EXCLUDED.liquidity_usd
	`
	for start := 0; start < len(samples); start += priceChunkSize {
		end := start + priceChunkSize
		if end > len(samples) {
			end = len(samples)
		}
		batch := &pgx.Batch{}
		for _, s := range samples[start:end] {
			batch.Queue(query,
				s.TokenAddress, s.Time, s.PriceUSD, s.PriceSol,
				int64(s.VirtualSolReserves), int64(s.VirtualTokenReserves),
				int64(s.RealSolReserves), int64(s.RealTokenReserves),
				s.MarketCap, s.LiquidityUSD, int64(s.Slot), s.Source,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert price samples: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close price batch: %w", err)
		}
	}
	return nil
}

// LatestPriceSamples returns the most recent n samples for a token, newest
// first.
func (r *Repository) LatestPriceSamples(ctx context.Context, address string, n int) ([]PriceSample, error) {
	query := `
		SELECT token_address, time, price_usd, price_sol,
		       virtual_sol_reserves, virtual_token_reserves,
		       real_sol_reserves, real_token_reserves,
		       market_cap, liquidity_usd, slot, source
		FROM timeseries.token_prices
		WHERE token_address = $1
		ORDER BY time DESC
		LIMIT $2
	`
	return r.queryPriceSamples(ctx, query, address, n)
}

// PriceSamplesSince returns samples for a token at or after the cutoff,
// oldest first, for growth-rate fitting.
func (r *Repository) PriceSamplesSince(ctx context.Context, address string, since time.Time) ([]PriceSample, error) {
	query := `
		SELECT token_address, time, price_usd, price_sol,
		       virtual_sol_reserves, virtual_token_reserves,
		       real_sol_reserves, real_token_reserves,
		       market_cap, liquidity_usd, slot, source
		FROM timeseries.token_prices
		WHERE token_address = $1 AND time >= $2
		ORDER BY time ASC
	`
	samples, err := r.queryPriceSamples(ctx, query, address, since)
	if err != nil {
		return nil, err
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

func (r *Repository) queryPriceSamples(ctx context.Context, query string, args ...interface{}) ([]PriceSample, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	var samples []PriceSample
	for rows.Next() {
		var s PriceSample
		var vsol, vtok, rsol, rtok, slot int64
		if err := rows.Scan(
			&s.TokenAddress, &s.Time, &s.PriceUSD, &s.PriceSol,
			&vsol, &vtok, &rsol, &rtok,
			&s.MarketCap, &s.LiquidityUSD, &slot, &s.Source,
		); err != nil {
			return nil, err
		}
		s.VirtualSolReserves = uint64(vsol)
		s.VirtualTokenReserves = uint64(vtok)
		s.RealSolReserves = uint64(rsol)
		s.RealTokenReserves = uint64(rtok)
		s.Slot = uint64(slot)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
