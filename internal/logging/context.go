package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TokenContext creates a logger context for per-token operations
func TokenContext(mint, category string, marketCap float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"mint":       mint,
		"category":   category,
		"market_cap": marketCap,
	}).WithComponent("token")
}

// TransitionContext creates a logger context for category transitions
func TransitionContext(mint, from, to string, marketCap float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"mint":       mint,
		"from":       from,
		"to":         to,
		"market_cap": marketCap,
	}).WithComponent("transition")
}

// ScanContext creates a logger context for scheduled scans
func ScanContext(mint, category string, scanNumber int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"mint":        mint,
		"category":    category,
		"scan_number": scanNumber,
	}).WithComponent("scan")
}

// FlushContext creates a logger context for batch flushes
func FlushContext(flushID string, prices, transactions, newTokens int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"flush_id":     flushID,
		"prices":       prices,
		"transactions": transactions,
		"new_tokens":   newTokens,
	}).WithComponent("flush")
}

// EvaluationContext creates a logger context for buy-signal evaluations
func EvaluationContext(mint string, marketCap, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"mint":       mint,
		"market_cap": marketCap,
		"confidence": confidence,
	}).WithComponent("evaluation")
}

// StreamContext creates a logger context for firehose events
func StreamContext(endpoint string, reconnects int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"endpoint":   endpoint,
		"reconnects": reconnects,
	}).WithComponent("stream")
}

// EnrichContext creates a logger context for metadata enrichment jobs
func EnrichContext(mint, jobID string, attempt int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"mint":    mint,
		"job_id":  jobID,
		"attempt": attempt,
	}).WithComponent("enrich")
}

// APIContext creates a logger context for external API calls
func APIContext(provider, endpoint string, duration time.Duration) *Logger {
	return Default().WithFields(map[string]interface{}{
		"provider": provider,
		"endpoint": endpoint,
		"duration": duration.String(),
	}).WithComponent("api")
}
