package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/dbpool"
	"github.com/pmacquire/daemon/internal/domain"
)

type fakeWriter struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func newFakeWriter() *fakeWriter { return &fakeWriter{puts: map[string][]byte{}} }

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[path] = b
	return nil
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration test")
	}
	p, err := dbpool.Open(context.Background(), dbpool.Config{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("dbpool.Open: %v", err)
	}
	if _, err := p.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	t.Cleanup(p.Close)
	return p.Underlying()
}

func TestExporterExportsNewlyDueConditionAndNeverDeletesRows(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	conditionID := "cond-archive-1"
	tokenID := "tok-archive-1"

	_, err := pool.Exec(ctx, `INSERT INTO markets (market_id, condition_id, question, outcomes, clob_token_ids, closed, created_at, updated_at)
		VALUES ($1, $2, 'q', ARRAY['Yes','No'], $3, true, now(), now())`,
		"mkt-archive-1", conditionID, []string{tokenID, "tok-archive-2"})
	if err != nil {
		t.Fatalf("insert market: %v", err)
	}

	resolvedAt := time.Now().UTC().Add(-25 * time.Hour) // crossed a 24h archive_after window
	outcome := "Yes"
	_, err = pool.Exec(ctx, `INSERT INTO resolutions (condition_id, outcome, winner_token_id, resolved_at, payout_price, detection_method)
		VALUES ($1, $2, $2, $3, 1.0, 'final_prices')`, conditionID, outcome, resolvedAt)
	if err != nil {
		t.Fatalf("insert resolution: %v", err)
	}

	_, err = pool.Exec(ctx, `INSERT INTO trades (ts, token_id, price, size, side, trade_id) VALUES (now(), $1, 0.5, 10, 'BUY', NULL)`, tokenID)
	if err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	writer := newFakeWriter()
	exp := NewExporter(pool, writer, 24*time.Hour, nil)

	n := exp.Run(ctx)
	if n == 0 {
		t.Fatal("expected at least one row exported")
	}

	found := false
	for path := range writer.puts {
		if path == "trades/"+conditionID+"/"+tokenID+".ndjson" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a trades ndjson object for the due condition, got paths: %v", keysOf(writer.puts))
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM trades WHERE token_id = $1", tokenID).Scan(&count); err != nil {
		t.Fatalf("count trades: %v", err)
	}
	if count != 1 {
		t.Fatalf("exporter must never delete rows; expected 1 trade still present, got %d", count)
	}
}

func TestExporterSkipsConditionsNotYetDue(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	conditionID := "cond-archive-not-due"
	_, err := pool.Exec(ctx, `INSERT INTO markets (market_id, condition_id, question, outcomes, clob_token_ids, closed, created_at, updated_at)
		VALUES ($1, $2, 'q', ARRAY['Yes','No'], $3, true, now(), now())`,
		"mkt-archive-not-due", conditionID, []string{"tok-not-due"})
	if err != nil {
		t.Fatalf("insert market: %v", err)
	}

	outcome := "Yes"
	_, err = pool.Exec(ctx, `INSERT INTO resolutions (condition_id, outcome, winner_token_id, resolved_at, payout_price, detection_method)
		VALUES ($1, $2, $2, now(), 1.0, 'final_prices')`, conditionID, outcome) // resolved just now, not yet past archive_after
	if err != nil {
		t.Fatalf("insert resolution: %v", err)
	}

	writer := newFakeWriter()
	exp := NewExporter(pool, writer, 24*time.Hour, nil)
	exp.Run(ctx)

	for path := range writer.puts {
		if bytes.Contains([]byte(path), []byte(conditionID)) {
			t.Fatalf("condition not yet past archive_after must not be exported, got %s", path)
		}
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
