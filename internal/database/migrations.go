package database

import (
	"context"
	"fmt"
	"log"
)

// RunMigrations executes the schema migrations. Statements are idempotent so
// a restart is always safe.
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE SCHEMA IF NOT EXISTS timeseries`,

		`CREATE TABLE IF NOT EXISTS tokens (
			address VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(32) NOT NULL DEFAULT 'LOADING...',
			name VARCHAR(128) NOT NULL DEFAULT '',
			decimals INTEGER NOT NULL DEFAULT 6,
			creator VARCHAR(64),
			launch_signature VARCHAR(128),
			launch_slot BIGINT,
			current_price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_price_sol DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			holder_count INTEGER NOT NULL DEFAULT 0,
			top10_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			solsniffer_score DOUBLE PRECISION,
			solsniffer_checked_at TIMESTAMPTZ,
			security_flags TEXT[] NOT NULL DEFAULT '{}',
			curve_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			category VARCHAR(16) NOT NULL DEFAULT 'NEW',
			previous_category VARCHAR(16),
			category_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			category_scan_count INTEGER NOT NULL DEFAULT 0,
			aim_attempts INTEGER NOT NULL DEFAULT 0,
			buy_attempts INTEGER NOT NULL DEFAULT 0,
			price_update_count BIGINT NOT NULL DEFAULT 0,
			last_price_update TIMESTAMPTZ,
			last_scan_at TIMESTAMPTZ,
			enrich_failed BOOLEAN NOT NULL DEFAULT FALSE,
			discovered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_category ON tokens(category)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_discovered_at ON tokens(discovered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_market_cap ON tokens(market_cap)`,

		`CREATE TABLE IF NOT EXISTS category_transitions (
			id BIGSERIAL PRIMARY KEY,
			token_address VARCHAR(64) NOT NULL,
			from_category VARCHAR(16) NOT NULL,
			to_category VARCHAR(16) NOT NULL,
			market_cap_at_transition DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason VARCHAR(64) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_token ON category_transitions(token_address)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_created ON category_transitions(created_at)`,

		`CREATE TABLE IF NOT EXISTS scan_logs (
			id BIGSERIAL PRIMARY KEY,
			token_address VARCHAR(64) NOT NULL,
			category VARCHAR(16) NOT NULL,
			scan_number INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			apis_used TEXT[] NOT NULL DEFAULT '{}',
			error TEXT,
			is_final BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_logs_token ON scan_logs(token_address)`,

		`CREATE TABLE IF NOT EXISTS buy_evaluations (
			id BIGSERIAL PRIMARY KEY,
			token_address VARCHAR(64) NOT NULL,
			passed BOOLEAN NOT NULL,
			criteria JSONB NOT NULL DEFAULT '{}',
			observed JSONB NOT NULL DEFAULT '{}',
			failure_reasons TEXT[] NOT NULL DEFAULT '{}',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			risk_level VARCHAR(16) NOT NULL DEFAULT 'EXTREME',
			recommended_position DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_buy_evaluations_token ON buy_evaluations(token_address)`,

		`CREATE TABLE IF NOT EXISTS timeseries.token_prices (
			token_address VARCHAR(64) NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_sol DOUBLE PRECISION NOT NULL DEFAULT 0,
			virtual_sol_reserves BIGINT NOT NULL DEFAULT 0,
			virtual_token_reserves BIGINT NOT NULL DEFAULT 0,
			real_sol_reserves BIGINT NOT NULL DEFAULT 0,
			real_token_reserves BIGINT NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			liquidity_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			slot BIGINT NOT NULL DEFAULT 0,
			source VARCHAR(32) NOT NULL DEFAULT 'grpc',
			PRIMARY KEY (token_address, time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_prices_time ON timeseries.token_prices(time)`,

		`CREATE TABLE IF NOT EXISTS timeseries.token_transactions (
			signature VARCHAR(128) NOT NULL,
			token_address VARCHAR(64) NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			kind VARCHAR(8) NOT NULL,
			user_address VARCHAR(64) NOT NULL DEFAULT '',
			token_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			sol_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_sol DOUBLE PRECISION NOT NULL DEFAULT 0,
			slot BIGINT NOT NULL DEFAULT 0,
			fee BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (signature, token_address, time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_transactions_token ON timeseries.token_transactions(token_address, time)`,

		`CREATE TABLE IF NOT EXISTS api_call_logs (
			id BIGSERIAL PRIMARY KEY,
			provider VARCHAR(32) NOT NULL,
			endpoint VARCHAR(256) NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS api_cache (
			cache_key VARCHAR(256) PRIMARY KEY,
			payload JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS sol_price_history (
			id BIGSERIAL PRIMARY KEY,
			price_usd DOUBLE PRECISION NOT NULL,
			source VARCHAR(32) NOT NULL DEFAULT 'feed',
			time TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sol_price_history_time ON sol_price_history(time)`,
	}

	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Println("Database migrations completed")
	return nil
}
