// Package ingest merges connector batches into the record store.
//
// Candidates are applied in batch order, so a natural key repeated within one
// batch resolves last-write-wins and counts as new at most once. Writes are
// serialized by the Upserter.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// Result summarizes one batch.
type Result struct {
	Total int
	New   int
}

// Upserter applies candidate batches to a store transaction.
type Upserter struct {
	mu     sync.Mutex
	ids    opportunity.IDGenerator
	logger *zap.Logger
}

// NewUpserter constructs an Upserter.
func NewUpserter(ids opportunity.IDGenerator, logger *zap.Logger) *Upserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{ids: ids, logger: logger.Named("ingest")}
}

// Upsert writes the batch through tx with now as the observation time.
// Candidates with an empty external id or a foreign source id are skipped.
func (u *Upserter) Upsert(
	ctx context.Context,
	tx opportunity.Tx,
	sourceID string,
	batch []opportunity.Candidate,
	now time.Time,
) (Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var res Result
	for _, c := range batch {
		if c.ExternalID == "" || c.SourceID != sourceID {
			u.logger.Warn("skipping candidate without valid natural key",
				zap.String("source", sourceID),
				zap.String("candidate_source", c.SourceID),
				zap.String("title", c.Title),
			)
			continue
		}
		id, err := u.ids.NewID()
		if err != nil {
			return res, fmt.Errorf("upsert %s/%s: %w", sourceID, c.ExternalID, err)
		}
		inserted, err := tx.UpsertRecord(ctx, c, id, now)
		if err != nil {
			return res, fmt.Errorf("upsert %s/%s: %w", sourceID, c.ExternalID, err)
		}
		res.Total++
		if inserted {
			res.New++
		}
	}
	u.logger.Debug("batch upserted",
		zap.String("source", sourceID),
		zap.Int("total", res.Total),
		zap.Int("new", res.New),
	)
	return res, nil
}
