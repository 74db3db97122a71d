// Package collector implements the five data-acquisition collectors that
// poll or stream venue data into Postgres: market metadata, price
// snapshots, orderbook snapshots, resolution detection, and the
// long-lived trade listener. Every collector but the trade listener shares
// the same collect-once contract so the supervisor can drive them through
// one code path.
package collector

import "context"

// Collector is the common shape of the ticker-driven collectors: the four
// pollers and the optional archive exporter.
// CollectOnce must never return an error that propagates past its own
// logging: a failed cycle returns 0 and logs, it does not panic or raise.
// This mirrors the teacher's MarketScraper/GoldskyScraper Run methods,
// generalized into an explicit interface so the supervisor can hold a
// slice of them.
type Collector interface {
	Name() string
	CollectOnce(ctx context.Context) int
}
