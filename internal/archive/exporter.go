// Package archive implements the optional cold-storage exporter: once a
// day it writes newline-delimited JSON copies of trades and price
// snapshots for markets that crossed the archive threshold, to an
// S3-compatible bucket, before the Timescale retention policy drops the
// Postgres rows. It never deletes a row itself.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// BlobWriter is the subset of s3blob.Writer the exporter needs; satisfied
// as-is by *s3blob.Writer (no adapter needed), kept narrow here so tests
// can fake it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Exporter is a collect_once-shaped component: Run is safe to call on any
// cadence (the supervisor drives it once a day) and never returns an
// error — failures are logged and the affected market is skipped.
type Exporter struct {
	pool         *pgxpool.Pool
	writer       BlobWriter
	archiveAfter time.Duration
	logger       *slog.Logger
}

// NewExporter constructs an Exporter. archiveAfter mirrors the
// archive_after_days config value.
func NewExporter(pool *pgxpool.Pool, writer BlobWriter, archiveAfter time.Duration, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{pool: pool, writer: writer, archiveAfter: archiveAfter, logger: logger}
}

// Run exports trades and price snapshots for every condition whose
// resolution crossed the archive threshold in the last 24h (a daily
// window, matching the daily cadence this runs at), and returns the
// number of rows written. It never raises; all errors are logged and the
// affected condition is skipped, same as every other collector.
func (e *Exporter) Run(ctx context.Context) int {
	now := time.Now().UTC()
	windowEnd := now.Add(-e.archiveAfter)
	windowStart := windowEnd.Add(-24 * time.Hour)

	conditions, err := e.dueConditions(ctx, windowStart, windowEnd)
	if err != nil {
		e.logger.Error("archive: list due conditions failed", slog.String("error", err.Error()))
		return 0
	}

	total := 0
	for _, c := range conditions {
		n, err := e.exportCondition(ctx, c)
		if err != nil {
			e.logger.Error("archive: export condition failed",
				slog.String("condition_id", c.conditionID), slog.String("error", err.Error()))
			continue
		}
		total += n
	}
	return total
}

type dueCondition struct {
	conditionID string
	tokenIDs    []string
}

func (e *Exporter) dueConditions(ctx context.Context, windowStart, windowEnd time.Time) ([]dueCondition, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT r.condition_id, m.clob_token_ids
		FROM resolutions r
		JOIN markets m ON m.condition_id = r.condition_id
		WHERE r.resolved_at > $1 AND r.resolved_at <= $2`,
		windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("archive: query due conditions: %w", err)
	}
	defer rows.Close()

	var out []dueCondition
	for rows.Next() {
		var c dueCondition
		if err := rows.Scan(&c.conditionID, &c.tokenIDs); err != nil {
			return nil, fmt.Errorf("archive: scan due condition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Exporter) exportCondition(ctx context.Context, c dueCondition) (int, error) {
	total := 0
	for _, tokenID := range c.tokenIDs {
		n, err := e.exportTrades(ctx, c.conditionID, tokenID)
		if err != nil {
			return total, err
		}
		total += n

		n, err = e.exportPriceSnapshots(ctx, c.conditionID, tokenID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (e *Exporter) exportTrades(ctx context.Context, conditionID, tokenID string) (int, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT ts, token_id, price, size, side, trade_id FROM trades WHERE token_id = $1 ORDER BY ts`, tokenID)
	if err != nil {
		return 0, fmt.Errorf("query trades for %s: %w", tokenID, err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	n := 0
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.Ts, &t.TokenID, &t.Price, &t.Size, &side, &t.TradeID); err != nil {
			return n, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		if err := enc.Encode(t); err != nil {
			return n, fmt.Errorf("encode trade: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}

	path := fmt.Sprintf("trades/%s/%s.ndjson", conditionID, tokenID)
	if err := e.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}
	return n, nil
}

func (e *Exporter) exportPriceSnapshots(ctx context.Context, conditionID, tokenID string) (int, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT ts, token_id, price, volume_24h, liquidity, spread, last_trade_price
		 FROM price_snapshots WHERE token_id = $1 ORDER BY ts`, tokenID)
	if err != nil {
		return 0, fmt.Errorf("query price snapshots for %s: %w", tokenID, err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	n := 0
	for rows.Next() {
		var p domain.PriceSnapshot
		if err := rows.Scan(&p.Ts, &p.TokenID, &p.Price, &p.Volume24h, &p.Liquidity, &p.Spread, &p.LastTradePrice); err != nil {
			return n, fmt.Errorf("scan price snapshot: %w", err)
		}
		if err := enc.Encode(p); err != nil {
			return n, fmt.Errorf("encode price snapshot: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, nil
	}

	path := fmt.Sprintf("price_snapshots/%s/%s.ndjson", conditionID, tokenID)
	if err := e.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}
	return n, nil
}
