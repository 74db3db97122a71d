package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var tradeCols = []string{"ts", "token_id", "price", "size", "side", "trade_id"}

// InsertTrades attempts COPY first; on unique violation (duplicate
// trade_id) it falls back to a parameterised batch insert with
// ON CONFLICT DO NOTHING, which COPY cannot express.
func (s *TradeStore) InsertTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	rows := make([][]any, len(trades))
	for i, t := range trades {
		rows[i] = []any{t.Ts, t.TokenID, t.Price, t.Size, string(t.Side), t.TradeID}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"trades"}, tradeCols, pgx.CopyFromRows(rows))
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return fmt.Errorf("query: copy trades: %w", err)
	}

	return s.insertBatchSkipDuplicates(ctx, trades)
}

func (s *TradeStore) insertBatchSkipDuplicates(ctx context.Context, trades []domain.Trade) error {
	const query = `
		INSERT INTO trades (ts, token_id, price, size, side, trade_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trade_id, ts) WHERE trade_id IS NOT NULL DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, t.Ts, t.TokenID, t.Price, t.Size, string(t.Side), t.TradeID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("query: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetRecentTrades returns the most recent trades, optionally filtered to a
// single token.
func (s *TradeStore) GetRecentTrades(ctx context.Context, tokenID *string, limit int) ([]domain.Trade, error) {
	var rows pgx.Rows
	var err error
	if tokenID != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT ts, token_id, price, size, side, trade_id FROM trades WHERE token_id = $1 ORDER BY ts DESC LIMIT $2`,
			*tokenID, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT ts, token_id, price, size, side, trade_id FROM trades ORDER BY ts DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query: get recent trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.Ts, &t.TokenID, &t.Price, &t.Size, &side, &t.TradeID); err != nil {
			return nil, fmt.Errorf("query: scan trade: %w", err)
		}
		t.Side = domain.TradeSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTradeCount returns the total trade count, optionally filtered to a
// single token.
func (s *TradeStore) GetTradeCount(ctx context.Context, tokenID *string) (int64, error) {
	var count int64
	var err error
	if tokenID != nil {
		err = s.pool.QueryRow(ctx, "SELECT count(*) FROM trades WHERE token_id = $1", *tokenID).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, "SELECT count(*) FROM trades").Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("query: get trade count: %w", err)
	}
	return count, nil
}
