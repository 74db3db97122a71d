package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// PriceSnapshotStore implements domain.PriceSnapshotStore using PostgreSQL.
type PriceSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(pool *pgxpool.Pool) *PriceSnapshotStore {
	return &PriceSnapshotStore{pool: pool}
}

var priceSnapshotCols = []string{
	"ts", "token_id", "price", "volume_24h", "liquidity", "spread", "last_trade_price",
}

// InsertPriceSnapshots bulk-inserts via the driver's COPY protocol, 10-100x
// faster than row-by-row inserts at this cadence. An empty list is a fast
// no-op.
func (s *PriceSnapshotStore) InsertPriceSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([][]any, len(snapshots))
	for i, p := range snapshots {
		rows[i] = []any{p.Ts, p.TokenID, p.Price, p.Volume24h, p.Liquidity, p.Spread, p.LastTradePrice}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"price_snapshots"},
		priceSnapshotCols,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("query: copy price snapshots: %w", err)
	}
	return nil
}

// GetLatestPrices returns the most recent price per token using DISTINCT ON.
func (s *PriceSnapshotStore) GetLatestPrices(ctx context.Context, tokenIDs []string) ([]domain.PriceSnapshot, error) {
	const query = `
		SELECT DISTINCT ON (token_id) ts, token_id, price, volume_24h, liquidity, spread, last_trade_price
		FROM price_snapshots
		WHERE token_id = ANY($1)
		ORDER BY token_id, ts DESC`

	rows, err := s.pool.Query(ctx, query, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("query: get latest prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceSnapshot
	for rows.Next() {
		var p domain.PriceSnapshot
		if err := rows.Scan(&p.Ts, &p.TokenID, &p.Price, &p.Volume24h, &p.Liquidity, &p.Spread, &p.LastTradePrice); err != nil {
			return nil, fmt.Errorf("query: scan latest price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPriceHistory returns a bounded window of price snapshots for one token.
func (s *PriceSnapshotStore) GetPriceHistory(ctx context.Context, tokenID string, start, end time.Time, limit int) ([]domain.PriceSnapshot, error) {
	const query = `
		SELECT ts, token_id, price, volume_24h, liquidity, spread, last_trade_price
		FROM price_snapshots
		WHERE token_id = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts DESC
		LIMIT $4`

	rows, err := s.pool.Query(ctx, query, tokenID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("query: get price history: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceSnapshot
	for rows.Next() {
		var p domain.PriceSnapshot
		if err := rows.Scan(&p.Ts, &p.TokenID, &p.Price, &p.Volume24h, &p.Liquidity, &p.Spread, &p.LastTradePrice); err != nil {
			return nil, fmt.Errorf("query: scan price history row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPriceCount returns the total row count, used for health checks.
func (s *PriceSnapshotStore) GetPriceCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM price_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("query: get price count: %w", err)
	}
	return count, nil
}
