package collector

import (
	"context"

	"github.com/pmacquire/daemon/internal/archive"
)

// ArchiveCollector adapts *archive.Exporter to the Collector interface so
// the supervisor can drive it on the same ticker-and-backoff machinery as
// every other collector, at its own (much longer) daily interval.
type ArchiveCollector struct {
	exporter *archive.Exporter
}

// NewArchiveCollector wraps exporter for registration with the supervisor.
func NewArchiveCollector(exporter *archive.Exporter) *ArchiveCollector {
	return &ArchiveCollector{exporter: exporter}
}

func (c *ArchiveCollector) Name() string { return "archive_export" }

func (c *ArchiveCollector) CollectOnce(ctx context.Context) int {
	return c.exporter.Run(ctx)
}
