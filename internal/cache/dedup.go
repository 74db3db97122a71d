package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const fingerprintTTL = 24 * time.Hour

// Fingerprint is the cheap-to-compare slice of a market's metadata used to
// decide whether a poll cycle changed anything worth an upsert.
type Fingerprint struct {
	UpdatedAt time.Time
	Volume    float64
}

// DedupCache skip-hints the market-metadata poller: it remembers the last
// fingerprint seen per market so an unchanged Gamma payload doesn't cost a
// DB upsert. It is never the source of truth — a nil rdb (Redis disabled,
// or a prior connection failure) or any runtime error makes every lookup a
// miss, which only costs a redundant (harmless) upsert.
type DedupCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewDedupCache wraps rdb. Pass nil to disable the cache entirely — every
// call becomes a no-op miss.
func NewDedupCache(rdb *redis.Client, logger *slog.Logger) *DedupCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupCache{rdb: rdb, logger: logger}
}

func fingerprintKey(marketID string) string { return "market:fp:" + marketID }

// Unchanged reports whether fp matches the last fingerprint remembered for
// marketID. Any Redis error is logged at debug and treated as "changed" so
// the caller falls through to its normal upsert path.
func (d *DedupCache) Unchanged(ctx context.Context, marketID string, fp Fingerprint) bool {
	if d.rdb == nil {
		return false
	}

	raw, err := d.rdb.Get(ctx, fingerprintKey(marketID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Debug("dedup cache read failed, treating as changed",
				slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
		return false
	}

	var stored Fingerprint
	if err := json.Unmarshal(raw, &stored); err != nil {
		return false
	}
	return stored.UpdatedAt.Equal(fp.UpdatedAt) && stored.Volume == fp.Volume
}

// Remember stores fp as the latest fingerprint for marketID. Failures are
// logged, never returned: a lost cache write just means the next poll
// re-upserts unnecessarily, not incorrectly.
func (d *DedupCache) Remember(ctx context.Context, marketID string, fp Fingerprint) {
	if d.rdb == nil {
		return
	}

	data, err := json.Marshal(fp)
	if err != nil {
		return
	}
	if err := d.rdb.Set(ctx, fingerprintKey(marketID), data, fingerprintTTL).Err(); err != nil {
		d.logger.Debug("dedup cache write failed",
			slog.String("market_id", marketID), slog.String("error", err.Error()))
	}
}
