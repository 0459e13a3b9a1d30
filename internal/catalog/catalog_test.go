package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

var base = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	cands := []opportunity.Candidate{
		{SourceID: "sam-gov", ExternalID: "1", Title: "Federal courthouse masonry", Category: "government",
			Value: ptr(1_200_000.0), BaselineScore: 80, Status: "Open", PostedDate: ptr(base.AddDate(0, 0, -3))},
		{SourceID: "scbo", ExternalID: "2", Title: "Church steeple restoration", Category: "historic_restoration",
			Value: ptr(300_000.0), BaselineScore: 70, Status: "Accepting Bids", PostedDate: ptr(base.AddDate(0, 0, -1))},
		{SourceID: "charleston-permits", ExternalID: "3", Title: "Porch repair", Category: "residential",
			BaselineScore: 40, Status: "Active"},
	}
	err := store.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		for i, c := range cands {
			if _, err := tx.UpsertRecord(ctx, c, "r"+c.ExternalID, base.Add(time.Duration(i)*time.Minute)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		finished := base.Add(time.Hour)
		if err := tx.InsertScanRun(ctx, opportunity.ScanRun{ID: "run", SourceID: "scbo", StartedAt: base}); err != nil {
			return err
		}
		return tx.FinishScanRun(ctx, opportunity.ScanRun{ID: "run", FinishedAt: &finished, Status: opportunity.RunSuccess})
	}))
	return store
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestListWithoutCriteriaIsNeutral(t *testing.T) {
	t.Parallel()

	page, err := New(seededStore(t)).List(context.Background(), opportunity.Criteria{}, Query{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	for _, it := range page.Items {
		require.Equal(t, 50, it.MatchScore)
	}
	require.Equal(t, []string{"r1", "r2", "r3"}, ids(page.Items))
}

func TestListMinMatchUsesProfileScore(t *testing.T) {
	t.Parallel()

	criteria := opportunity.Criteria{MinValue: ptr(1_000_000.0), Categories: []string{"government"}}
	page, err := New(seededStore(t)).List(context.Background(), criteria, Query{MinMatch: 100})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "r1", page.Items[0].ID)
	require.Equal(t, 100, page.Items[0].MatchScore)
}

func TestListSortsAndPages(t *testing.T) {
	t.Parallel()

	c := New(seededStore(t))
	ctx := context.Background()

	page, err := c.List(ctx, opportunity.Criteria{}, Query{Sort: SortValue, Asc: true})
	require.NoError(t, err)
	require.Equal(t, []string{"r2", "r1", "r3"}, ids(page.Items), "nil values sort last")

	page, err = c.List(ctx, opportunity.Criteria{}, Query{Sort: SortPostedDate})
	require.NoError(t, err)
	require.Equal(t, []string{"r2", "r1", "r3"}, ids(page.Items))

	page, err = c.List(ctx, opportunity.Criteria{}, Query{Sort: SortFirstSeen, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Equal(t, []string{"r2"}, ids(page.Items))

	page, err = c.List(ctx, opportunity.Criteria{}, Query{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, page.Items)
}

func TestGet(t *testing.T) {
	t.Parallel()

	c := New(seededStore(t))
	it, err := c.Get(context.Background(), opportunity.Criteria{Sources: []string{"scbo"}}, "r2")
	require.NoError(t, err)
	require.Equal(t, 100, it.MatchScore)

	_, err = c.Get(context.Background(), opportunity.Criteria{}, "missing")
	require.True(t, errors.Is(err, opportunity.ErrNotFound))
}

func TestStats(t *testing.T) {
	t.Parallel()

	criteria := opportunity.Criteria{Categories: []string{"government", "historic_restoration"}}
	st, err := New(seededStore(t)).Stats(context.Background(), criteria)
	require.NoError(t, err)
	require.Equal(t, 3, st.Total)
	require.InDelta(t, 1_500_000.0, st.PipelineValue, 0.001)
	require.InDelta(t, 66.7, st.AverageMatch, 0.001)
	require.Equal(t, 2, st.HighMatch)
	require.Equal(t, 1, st.BySource["scbo"])
	require.Equal(t, 1, st.ByCategory["government"])
	require.NotNil(t, st.LastSuccessfulAt)
}

func TestValidSort(t *testing.T) {
	t.Parallel()

	require.True(t, ValidSort(""))
	require.True(t, ValidSort("VALUE"))
	require.False(t, ValidSort("title"))
}
