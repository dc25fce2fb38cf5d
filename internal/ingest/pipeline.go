// Package ingest runs the configured crawlers and persists their output.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mfriedel/whatson/internal/crawler"
	"github.com/mfriedel/whatson/internal/event"
	"github.com/mfriedel/whatson/internal/metrics"
	"github.com/mfriedel/whatson/internal/store"
)

// Pipeline merges the output of all configured crawlers into one batch and
// performs a duplicate-tolerant bulk insert.
type Pipeline struct {
	crawlers []crawler.Crawler
	store    store.EventStore
	logger   *zap.Logger
}

// New constructs a Pipeline.
func New(crawlers []crawler.Crawler, st store.EventStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{crawlers: crawlers, store: st, logger: logger}
}

// Run invokes every crawler concurrently and waits for all of them; an error
// in any one crawler fails the whole run. The flattened batch goes through
// one bulk insert where duplicate fingerprints are absorbed, so re-ingesting
// unchanged listings is a no-op. Returns the count of newly accepted records.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]event.Record, len(p.crawlers))
	for i, c := range p.crawlers {
		g.Go(func() error {
			records, err := c.Crawl(gctx)
			if err != nil {
				return fmt.Errorf("crawler %s: %w", c.Name(), err)
			}
			metrics.EventsCrawled(c.Name(), len(records))
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var batch []event.Record
	for _, records := range results {
		batch = append(batch, records...)
	}
	if len(batch) == 0 {
		p.logger.Info("ingestion run produced no records")
		return 0, nil
	}

	result, err := p.store.BulkInsert(ctx, batch)
	if err != nil {
		return result.Inserted, fmt.Errorf("bulk insert: %w", err)
	}
	metrics.EventsInserted(result.Inserted)
	metrics.EventsDuplicate(result.Duplicates)
	p.logger.Info("ingestion run complete",
		zap.Int("crawled", len(batch)),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
	)
	return result.Inserted, nil
}
