package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// OrderbookSnapshotStore implements domain.OrderbookSnapshotStore using
// PostgreSQL.
type OrderbookSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewOrderbookSnapshotStore creates a new OrderbookSnapshotStore.
func NewOrderbookSnapshotStore(pool *pgxpool.Pool) *OrderbookSnapshotStore {
	return &OrderbookSnapshotStore{pool: pool}
}

// InsertOrderbookSnapshots inserts via a parameterised batch with an
// explicit JSONB cast on the bound parameter — COPY cannot natively encode
// structured document values for the JSONB type.
func (s *OrderbookSnapshotStore) InsertOrderbookSnapshots(ctx context.Context, snapshots []domain.OrderbookSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	const query = `
		INSERT INTO orderbook_snapshots (ts, token_id, side, bids, asks, bid_depth_usd, ask_depth_usd)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7)
		ON CONFLICT (token_id, side, ts) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range snapshots {
		bids, err := json.Marshal(o.Bids)
		if err != nil {
			return fmt.Errorf("query: marshal bids for %s: %w", o.TokenID, err)
		}
		asks, err := json.Marshal(o.Asks)
		if err != nil {
			return fmt.Errorf("query: marshal asks for %s: %w", o.TokenID, err)
		}
		batch.Queue(query, o.Ts, o.TokenID, string(o.Side), bids, asks, o.BidDepthUSD, o.AskDepthUSD)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("query: insert orderbook snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanOrderbookSnapshot(row pgx.Row) (domain.OrderbookSnapshot, error) {
	var o domain.OrderbookSnapshot
	var side string
	var bids, asks []byte
	if err := row.Scan(&o.Ts, &o.TokenID, &side, &bids, &asks, &o.BidDepthUSD, &o.AskDepthUSD); err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	o.Side = domain.OrderbookSide(side)
	if err := json.Unmarshal(bids, &o.Bids); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("query: decode bids: %w", err)
	}
	if err := json.Unmarshal(asks, &o.Asks); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("query: decode asks: %w", err)
	}
	return o, nil
}

const orderbookCols = `ts, token_id, side, bids, asks, bid_depth_usd, ask_depth_usd`

// GetLatestOrderbook returns the most recent snapshot for a token/side.
func (s *OrderbookSnapshotStore) GetLatestOrderbook(ctx context.Context, tokenID string, side domain.OrderbookSide) (domain.OrderbookSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderbookCols+` FROM orderbook_snapshots WHERE token_id = $1 AND side = $2 ORDER BY ts DESC LIMIT 1`,
		tokenID, string(side),
	)
	o, err := scanOrderbookSnapshot(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OrderbookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderbookSnapshot{}, fmt.Errorf("query: get latest orderbook %s/%s: %w", tokenID, side, err)
	}
	return o, nil
}

// GetOrderbookHistory returns a bounded window of snapshots for a token/side.
func (s *OrderbookSnapshotStore) GetOrderbookHistory(ctx context.Context, tokenID string, side domain.OrderbookSide, start, end time.Time, limit int) ([]domain.OrderbookSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderbookCols+` FROM orderbook_snapshots
		 WHERE token_id = $1 AND side = $2 AND ts BETWEEN $3 AND $4
		 ORDER BY ts DESC LIMIT $5`,
		tokenID, string(side), start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: get orderbook history: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderbookSnapshot
	for rows.Next() {
		o, err := scanOrderbookSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("query: scan orderbook history row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
