package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const tokenColumns = `
	address, symbol, name, decimals, creator, launch_signature, launch_slot,
	current_price_usd, current_price_sol, market_cap, liquidity, volume_24h,
	holder_count, top10_percent, solsniffer_score, solsniffer_checked_at,
	security_flags, curve_progress, category, previous_category,
	category_updated_at, category_scan_count, aim_attempts, buy_attempts,
	price_update_count, last_price_update, last_scan_at, enrich_failed,
	discovered_at, created_at, updated_at`

func scanToken(row pgx.Row) (*Token, error) {
	t := &Token{}
	err := row.Scan(
		&t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.Creator, &t.LaunchSignature, &t.LaunchSlot,
		&t.CurrentPriceUSD, &t.CurrentPriceSol, &t.MarketCap, &t.Liquidity, &t.Volume24h,
		&t.HolderCount, &t.Top10Percent, &t.SolsnifferScore, &t.SolsnifferCheckedAt,
		&t.SecurityFlags, &t.CurveProgress, &t.Category, &t.PreviousCategory,
		&t.CategoryUpdatedAt, &t.CategoryScanCount, &t.AimAttempts, &t.BuyAttempts,
		&t.PriceUpdateCount, &t.LastPriceUpdate, &t.LastScanAt, &t.EnrichFailed,
		&t.DiscoveredAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetToken retrieves a token by mint address
func (r *Repository) GetToken(ctx context.Context, address string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE address = $1`
	t, err := scanToken(r.db.Pool.QueryRow(ctx, query, address))
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", address, err)
	}
	return t, nil
}

// ListActiveTokens retrieves tokens in the given categories discovered within
// maxAge, in pages, oldest first. Used by the category-manager rehydrate.
func (r *Repository) ListActiveTokens(ctx context.Context, categories []string, maxAge time.Duration, limit, offset int) ([]*Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE category = ANY($1) AND discovered_at >= $2
		ORDER BY discovered_at ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Pool.Query(ctx, query, categories, time.Now().Add(-maxAge), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ListTokensByCategory retrieves tokens in a single category, newest first.
func (r *Repository) ListTokensByCategory(ctx context.Context, category string, limit int) ([]*Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE category = $1
		ORDER BY market_cap DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list tokens by category: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// CountTokensByCategory returns per-category token counts for the stats view.
func (r *Repository) CountTokensByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT category, COUNT(*) FROM tokens GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count tokens by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// InsertNewTokensTx inserts created tokens inside a flush transaction,
// ignoring addresses that already exist.
func (r *Repository) InsertNewTokensTx(ctx context.Context, tx pgx.Tx, tokens []*Token) error {
	query := `
		INSERT INTO tokens (address, symbol, name, decimals, creator, launch_signature, launch_slot, category, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'NEW', $8)
		ON CONFLICT (address) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, t := range tokens {
		discovered := t.DiscoveredAt
		if discovered.IsZero() {
			discovered = time.Now()
		}
		batch.Queue(query, t.Address, t.Symbol, t.Name, t.Decimals, t.Creator, t.LaunchSignature, t.LaunchSlot, discovered)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range tokens {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert new tokens: %w", err)
		}
	}
	return nil
}

// InsertPlaceholdersTx inserts placeholder rows for mints referenced by
// prices or transactions before their create event was seen.
func (r *Repository) InsertPlaceholdersTx(ctx context.Context, tx pgx.Tx, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	query := `
		INSERT INTO tokens (address, symbol, category)
		VALUES ($1, $2, 'NEW')
		ON CONFLICT (address) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, addr := range addresses {
		batch.Queue(query, addr, PlaceholderSymbol)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range addresses {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert placeholders: %w", err)
		}
	}
	return nil
}

// ExistingTokenAddresses returns which of the given addresses already have
// token rows.
func (r *Repository) ExistingTokenAddresses(ctx context.Context, tx pgx.Tx, addresses []string) (map[string]bool, error) {
	if len(addresses) == 0 {
		return map[string]bool{}, nil
	}
	rows, err := tx.Query(ctx, `SELECT address FROM tokens WHERE address = ANY($1)`, addresses)
	if err != nil {
		return nil, fmt.Errorf("existing addresses: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool, len(addresses))
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		known[addr] = true
	}
	return known, rows.Err()
}

// UpdateMarketData performs the per-price direct upsert of the token row's
// market snapshot.
func (r *Repository) UpdateMarketData(ctx context.Context, address string, priceUSD, priceSol, marketCap, liquidity, progress float64) error {
	query := `
		UPDATE tokens
		SET current_price_usd = $2, current_price_sol = $3, market_cap = $4,
		    liquidity = $5, curve_progress = $6, last_price_update = NOW(),
		    price_update_count = price_update_count + 1, updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, priceUSD, priceSol, marketCap, liquidity, progress)
	if err != nil {
		return fmt.Errorf("update market data %s: %w", address, err)
	}
	return nil
}

// UpdateCategoryTx updates the token row's lifecycle fields inside a
// transition transaction. The scan count always resets on a transition.
func (r *Repository) UpdateCategoryTx(ctx context.Context, tx pgx.Tx, address, category, previous string) error {
	query := `
		UPDATE tokens
		SET category = $2, previous_category = $3, category_updated_at = NOW(),
		    category_scan_count = 0, updated_at = NOW()
		WHERE address = $1
	`
	_, err := tx.Exec(ctx, query, address, category, previous)
	if err != nil {
		return fmt.Errorf("update category %s: %w", address, err)
	}
	return nil
}

// IncrementAimAttemptsTx bumps aim_attempts on AIM entry.
func (r *Repository) IncrementAimAttemptsTx(ctx context.Context, tx pgx.Tx, address string) (int, error) {
	var attempts int
	err := tx.QueryRow(ctx, `
		UPDATE tokens SET aim_attempts = aim_attempts + 1, updated_at = NOW()
		WHERE address = $1
		RETURNING aim_attempts
	`, address).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment aim attempts %s: %w", address, err)
	}
	return attempts, nil
}

// IncrementBuyAttempts bumps the evaluation counter and returns the new value.
func (r *Repository) IncrementBuyAttempts(ctx context.Context, address string) (int, error) {
	var attempts int
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE tokens SET buy_attempts = buy_attempts + 1, updated_at = NOW()
		WHERE address = $1
		RETURNING buy_attempts
	`, address).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment buy attempts %s: %w", address, err)
	}
	return attempts, nil
}

// RecordScan updates the token row's scan bookkeeping after a completed scan.
func (r *Repository) RecordScan(ctx context.Context, address string, scanCount int) error {
	query := `
		UPDATE tokens
		SET last_scan_at = NOW(), category_scan_count = $2, updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, scanCount)
	if err != nil {
		return fmt.Errorf("record scan %s: %w", address, err)
	}
	return nil
}

// UpdateEnrichment fills human metadata fetched by the enrichment worker in
// a single upsert.
func (r *Repository) UpdateEnrichment(ctx context.Context, address, symbol, name string, decimals int, creator *string, holderCount int, top10Percent float64) error {
	query := `
		UPDATE tokens
		SET symbol = $2, name = $3, decimals = $4,
		    creator = COALESCE($5, creator),
		    holder_count = CASE WHEN $6 > 0 THEN $6 ELSE holder_count END,
		    top10_percent = CASE WHEN $7 > 0 THEN $7 ELSE top10_percent END,
		    updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, symbol, name, decimals, creator, holderCount, top10Percent)
	if err != nil {
		return fmt.Errorf("update enrichment %s: %w", address, err)
	}
	return nil
}

// MarkEnrichFailed sets the do-not-retry flag after a permanent failure.
func (r *Repository) MarkEnrichFailed(ctx context.Context, address string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE tokens SET enrich_failed = TRUE, updated_at = NOW() WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("mark enrich failed %s: %w", address, err)
	}
	return nil
}

// UpdateSecurity stores a fresh external safety score.
func (r *Repository) UpdateSecurity(ctx context.Context, address string, score float64, flags []string) error {
	query := `
		UPDATE tokens
		SET solsniffer_score = $2, solsniffer_checked_at = NOW(),
		    security_flags = $3, updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, score, flags)
	if err != nil {
		return fmt.Errorf("update security %s: %w", address, err)
	}
	return nil
}

// UpdateMarketSnapshot stores scan-sourced market fields (holders, top10,
// volume) that do not arrive on the firehose.
func (r *Repository) UpdateMarketSnapshot(ctx context.Context, address string, holderCount int, top10Percent, volume24h float64) error {
	query := `
		UPDATE tokens
		SET holder_count = $2, top10_percent = $3, volume_24h = $4, updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, holderCount, top10Percent, volume24h)
	if err != nil {
		return fmt.Errorf("update market snapshot %s: %w", address, err)
	}
	return nil
}
