// Package query implements domain store interfaces against PostgreSQL/
// TimescaleDB using pgx.
package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// MarketStore implements domain.MarketStore and domain.ResolutionStore
// using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `market_id, event_id, condition_id, slug, question,
	outcomes, clob_token_ids, neg_risk, tick_size, active, closed,
	accepting_orders, volume_total, liquidity, created_at, updated_at`

// UpsertMarket inserts or updates a single market.
func (s *MarketStore) UpsertMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			market_id, event_id, condition_id, slug, question,
			outcomes, clob_token_ids, neg_risk, tick_size, active, closed,
			accepting_orders, volume_total, liquidity, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			event_id         = EXCLUDED.event_id,
			condition_id     = EXCLUDED.condition_id,
			slug             = EXCLUDED.slug,
			question         = EXCLUDED.question,
			outcomes         = EXCLUDED.outcomes,
			clob_token_ids   = EXCLUDED.clob_token_ids,
			neg_risk         = EXCLUDED.neg_risk,
			tick_size        = EXCLUDED.tick_size,
			active           = EXCLUDED.active,
			closed           = EXCLUDED.closed,
			accepting_orders = EXCLUDED.accepting_orders,
			volume_total     = EXCLUDED.volume_total,
			liquidity        = EXCLUDED.liquidity,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.MarketID, m.EventID, m.ConditionID, m.Slug, m.Question,
		m.Outcomes, m.ClobTokenIDs, m.NegRisk, m.TickSize, m.Active, m.Closed,
		m.AcceptingOrders, m.VolumeTotal, m.Liquidity, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("query: upsert market %s: %w", m.MarketID, err)
	}
	return nil
}

// UpsertMarkets loops single upserts; called at minute cadence, not a hot path.
func (s *MarketStore) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	for _, m := range markets {
		if err := s.UpsertMarket(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.MarketID, &m.EventID, &m.ConditionID, &m.Slug, &m.Question,
		&m.Outcomes, &m.ClobTokenIDs, &m.NegRisk, &m.TickSize, &m.Active, &m.Closed,
		&m.AcceptingOrders, &m.VolumeTotal, &m.Liquidity, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetMarket retrieves a market by its primary key.
func (s *MarketStore) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE market_id = $1`, marketID)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("query: get market %s: %w", marketID, err)
	}
	return m, nil
}

// GetActiveMarkets filters active AND NOT closed AND accepting_orders.
func (s *MarketStore) GetActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE active AND NOT closed AND accepting_orders`)
	if err != nil {
		return nil, fmt.Errorf("query: get active markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("query: scan active market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMarketsByIDs fetches markets matching any of the given ids.
func (s *MarketStore) GetMarketsByIDs(ctx context.Context, marketIDs []string) ([]domain.Market, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = ANY($1)`, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("query: get markets by ids: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("query: scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertResolution writes a resolution, replacing any stored row for the
// same condition_id entirely; it does not compare detection methods.
func (s *MarketStore) UpsertResolution(ctx context.Context, r domain.Resolution) error {
	const query = `
		INSERT INTO resolutions (condition_id, outcome, winner_token_id, resolved_at, payout_price, detection_method)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (condition_id) DO UPDATE SET
			outcome          = EXCLUDED.outcome,
			winner_token_id  = EXCLUDED.winner_token_id,
			resolved_at      = EXCLUDED.resolved_at,
			payout_price     = EXCLUDED.payout_price,
			detection_method = EXCLUDED.detection_method`

	_, err := s.pool.Exec(ctx, query,
		r.ConditionID, r.Outcome, r.WinnerTokenID, r.ResolvedAt, r.PayoutPrice, string(r.DetectionMethod),
	)
	if err != nil {
		return fmt.Errorf("query: upsert resolution %s: %w", r.ConditionID, err)
	}
	return nil
}

// GetResolution fetches a resolution by condition_id.
func (s *MarketStore) GetResolution(ctx context.Context, conditionID string) (domain.Resolution, error) {
	var r domain.Resolution
	var method string
	err := s.pool.QueryRow(ctx,
		`SELECT condition_id, outcome, winner_token_id, resolved_at, payout_price, detection_method
		 FROM resolutions WHERE condition_id = $1`, conditionID,
	).Scan(&r.ConditionID, &r.Outcome, &r.WinnerTokenID, &r.ResolvedAt, &r.PayoutPrice, &method)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Resolution{}, domain.ErrNotFound
		}
		return domain.Resolution{}, fmt.Errorf("query: get resolution %s: %w", conditionID, err)
	}
	r.DetectionMethod = domain.DetectionMethod(method)
	return r, nil
}

// GetUnresolvedClosedMarkets returns condition_ids of markets that are
// closed but have no corresponding resolution row yet.
func (s *MarketStore) GetUnresolvedClosedMarkets(ctx context.Context) ([]string, error) {
	const query = `
		SELECT m.condition_id
		FROM markets m
		LEFT JOIN resolutions r ON r.condition_id = m.condition_id
		WHERE r.condition_id IS NULL AND m.closed = true`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: get unresolved closed markets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var conditionID string
		if err := rows.Scan(&conditionID); err != nil {
			return nil, fmt.Errorf("query: scan unresolved closed market: %w", err)
		}
		out = append(out, conditionID)
	}
	return out, rows.Err()
}
