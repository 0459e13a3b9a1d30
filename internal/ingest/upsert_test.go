package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/storage/memory"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%03d", s.n.Add(1)), nil
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func run(t *testing.T, store *memory.Store, u *Upserter, source string, batch []opportunity.Candidate, at time.Time) Result {
	t.Helper()
	var res Result
	err := store.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		var err error
		res, err = u.Upsert(ctx, tx, source, batch, at)
		return err
	})
	require.NoError(t, err)
	return res
}

func TestUpsertCountsNewRecords(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	u := NewUpserter(&seqIDs{}, nil)

	batch := []opportunity.Candidate{
		{SourceID: "scbo", ExternalID: "a", Title: "A"},
		{SourceID: "scbo", ExternalID: "b", Title: "B"},
	}
	require.Equal(t, Result{Total: 2, New: 2}, run(t, store, u, "scbo", batch, now))
	require.Equal(t, Result{Total: 2, New: 0}, run(t, store, u, "scbo", batch, now.Add(time.Hour)))

	recs, err := store.ListRecords(context.Background(), opportunity.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		require.Equal(t, now, r.FirstSeen)
		require.Equal(t, now.Add(time.Hour), r.LastSeen)
	}
}

func TestUpsertDuplicateWithinBatchIsLastWriteWins(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	u := NewUpserter(&seqIDs{}, nil)

	batch := []opportunity.Candidate{
		{SourceID: "sam-gov", ExternalID: "N1", Title: "first"},
		{SourceID: "sam-gov", ExternalID: "N1", Title: "second"},
	}
	res := run(t, store, u, "sam-gov", batch, now)
	require.Equal(t, 2, res.Total)
	require.Equal(t, 1, res.New)

	recs, err := store.ListRecords(context.Background(), opportunity.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "second", recs[0].Title)
}

func TestUpsertSkipsInvalidKeys(t *testing.T) {
	t.Parallel()
	store := memory.NewStore()
	u := NewUpserter(&seqIDs{}, nil)

	batch := []opportunity.Candidate{
		{SourceID: "scbo", ExternalID: "", Title: "no id"},
		{SourceID: "other", ExternalID: "x", Title: "wrong source"},
		{SourceID: "scbo", ExternalID: "ok", Title: "ok"},
	}
	require.Equal(t, Result{Total: 1, New: 1}, run(t, store, u, "scbo", batch, now))
}
