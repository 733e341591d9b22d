package market

import (
	"context"
	"time"

	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/logging"
	"pumpfun-scanner/internal/scheduler"
)

// securityRefreshAge is how old a solsniffer score may be before a scan of
// a HIGH or AIM token refreshes it.
const securityRefreshAge = time.Hour

// Scanner is the scan handler: one scan refreshes a token's market
// snapshot and, for the hot categories, its security score.
type Scanner struct {
	repo   *database.Repository
	md     *MarketDataClient
	sniff  *SolsnifferClient
	logger *logging.Logger
}

// NewScanner wires the scan handler.
func NewScanner(repo *database.Repository, md *MarketDataClient, sniff *SolsnifferClient) *Scanner {
	return &Scanner{
		repo:   repo,
		md:     md,
		sniff:  sniff,
		logger: logging.WithComponent("scanner"),
	}
}

// Scan implements the scheduler handler contract.
func (s *Scanner) Scan(ctx context.Context, mint string, cat category.Category) scheduler.ScanResult {
	started := time.Now()
	apis := []string{"market-data"}

	snap, err := s.md.Snapshot(ctx, mint)
	if err != nil {
		return scheduler.ScanResult{
			Success:    false,
			APIsUsed:   apis,
			Err:        err,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}

	if err := s.repo.UpdateMarketSnapshot(ctx, mint, snap.HolderCount, snap.Top10Percent, snap.Volume24h); err != nil {
		s.logger.Warn("Market snapshot update failed", "mint", mint, "error", err)
	}

	if cat == category.High || cat == category.Aim {
		if used := s.refreshSecurity(ctx, mint); used {
			apis = append(apis, "solsniffer")
		}
	}

	mc := snap.MarketCap
	return scheduler.ScanResult{
		Success:    true,
		MarketCap:  &mc,
		APIsUsed:   apis,
		DurationMs: time.Since(started).Milliseconds(),
	}
}

// refreshSecurity re-fetches the solsniffer score when the persisted one is
// missing or stale. Reports whether the provider was called.
func (s *Scanner) refreshSecurity(ctx context.Context, mint string) bool {
	tok, err := s.repo.GetToken(ctx, mint)
	if err == nil && tok.SolsnifferCheckedAt != nil &&
		time.Since(*tok.SolsnifferCheckedAt) < securityRefreshAge {
		return false
	}

	report, err := s.sniff.Score(ctx, mint)
	if err != nil {
		s.logger.Warn("Security refresh failed", "mint", mint, "error", err)
		return true
	}
	if err := s.repo.UpdateSecurity(ctx, mint, report.Score, report.Flags); err != nil {
		s.logger.Warn("Security update failed", "mint", mint, "error", err)
	}
	return true
}
