package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func candidate(source, ext, title string, score int) opportunity.Candidate {
	return opportunity.Candidate{
		SourceID:      source,
		ExternalID:    ext,
		Title:         title,
		Status:        "Open",
		Category:      "masonry",
		BaselineScore: score,
	}
}

func upsert(t *testing.T, s *Store, c opportunity.Candidate, id string, now time.Time) bool {
	t.Helper()
	var inserted bool
	err := s.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		var err error
		inserted, err = tx.UpsertRecord(ctx, c, id, now)
		return err
	})
	require.NoError(t, err)
	return inserted
}

func TestUpsertIsIdempotentOnNaturalKey(t *testing.T) {
	t.Parallel()
	s := NewStore()

	require.True(t, upsert(t, s, candidate("scbo", "1", "old title", 40), "rec-1", t0))
	later := t0.Add(2 * time.Hour)
	require.False(t, upsert(t, s, candidate("scbo", "1", "new title", 45), "rec-2", later))

	recs, err := s.ListRecords(context.Background(), opportunity.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "rec-1", rec.ID)
	require.Equal(t, "new title", rec.Title)
	require.Equal(t, 45, rec.BaselineScore)
	require.Equal(t, t0, rec.FirstSeen)
	require.Equal(t, later, rec.LastSeen)
	require.True(t, rec.IsActive)
}

func TestUpsertKeepsDeadlineWhenAbsent(t *testing.T) {
	t.Parallel()
	s := NewStore()

	deadline := t0.Add(72 * time.Hour)
	c := candidate("sam-gov", "N1", "notice", 50)
	c.Deadline = &deadline
	upsert(t, s, c, "rec-1", t0)

	c.Deadline = nil
	upsert(t, s, c, "ignored", t0.Add(time.Hour))

	rec, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	require.NotNil(t, rec.Deadline)
	require.Equal(t, deadline, *rec.Deadline)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	s := NewStore()
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		_, err := tx.UpsertRecord(ctx, candidate("scbo", "1", "x", 40), "rec-1", t0)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetRecord(context.Background(), "rec-1")
	require.ErrorIs(t, err, opportunity.ErrNotFound)
}

func TestSavepointIsolatesFailure(t *testing.T) {
	t.Parallel()
	s := NewStore()
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		require.NoError(t, tx.Savepoint(ctx, func(ctx context.Context, tx opportunity.Tx) error {
			_, err := tx.UpsertRecord(ctx, candidate("a", "1", "kept", 40), "rec-a", t0)
			return err
		}))
		err := tx.Savepoint(ctx, func(ctx context.Context, tx opportunity.Tx) error {
			if _, err := tx.UpsertRecord(ctx, candidate("b", "1", "dropped", 40), "rec-b", t0); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		return nil
	})
	require.NoError(t, err)

	_, err = s.GetRecord(context.Background(), "rec-a")
	require.NoError(t, err)
	_, err = s.GetRecord(context.Background(), "rec-b")
	require.ErrorIs(t, err, opportunity.ErrNotFound)
}

func TestDeactivateStale(t *testing.T) {
	t.Parallel()
	s := NewStore()
	dayStart := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	upsert(t, s, candidate("scbo", "old", "old", 40), "rec-old", dayStart.Add(-time.Minute))
	upsert(t, s, candidate("scbo", "new", "new", 40), "rec-new", dayStart.Add(time.Minute))

	var n int64
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		var err error
		n, err = tx.DeactivateStale(ctx, dayStart)
		return err
	}))
	require.EqualValues(t, 1, n)

	old, err := s.GetRecord(context.Background(), "rec-old")
	require.NoError(t, err)
	require.False(t, old.IsActive)
	fresh, err := s.GetRecord(context.Background(), "rec-new")
	require.NoError(t, err)
	require.True(t, fresh.IsActive)
}

func TestScanRunsNewestFirst(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx opportunity.Tx) error {
		for i, id := range []string{"r1", "r2", "r3"} {
			run := opportunity.ScanRun{ID: id, SourceID: "scbo", StartedAt: t0.Add(time.Duration(i) * time.Minute), Status: opportunity.RunRunning}
			if err := tx.InsertScanRun(ctx, run); err != nil {
				return err
			}
		}
		finished := t0.Add(time.Hour)
		return tx.FinishScanRun(ctx, opportunity.ScanRun{ID: "r2", Status: opportunity.RunSuccess, FinishedAt: &finished, Found: 3, New: 1})
	}))

	runs, err := s.ListScanRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r3", runs[0].ID)
	require.Equal(t, "r2", runs[1].ID)
	require.Equal(t, opportunity.RunSuccess, runs[1].Status)
	require.Equal(t, 3, runs[1].Found)

	last, err := s.LastSuccessfulScan(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, t0.Add(time.Hour), *last)
}

func TestFinishUnknownScanRun(t *testing.T) {
	t.Parallel()
	s := NewStore()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx opportunity.Tx) error {
		return tx.FinishScanRun(ctx, opportunity.ScanRun{ID: "missing"})
	})
	require.ErrorIs(t, err, opportunity.ErrNotFound)
}

func TestReceiptsAreWriteOnce(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()
	r := opportunity.AlertReceipt{SubscriberID: "sub", RecordID: "rec", Channel: opportunity.ChannelEmail, SentAt: t0}

	for range 2 {
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx opportunity.Tx) error {
			return tx.InsertReceipts(ctx, []opportunity.AlertReceipt{r})
		}))
	}
	require.Len(t, s.Receipts(), 1)

	ids, err := s.ReceiptRecordIDs(ctx, "sub", opportunity.ChannelEmail)
	require.NoError(t, err)
	require.Contains(t, ids, "rec")

	ids, err = s.ReceiptRecordIDs(ctx, "sub", opportunity.ChannelSMS)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestListRecordsFilters(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	big := 750_000.0
	a := candidate("scbo", "a", "Brick repair at Citadel", 70)
	a.Value = &big
	a.Agency = "The Citadel"
	b := candidate("sam-gov", "b", "Roof work", 40)
	b.Category = "government"
	upsert(t, s, a, "rec-a", t0)
	upsert(t, s, b, "rec-b", t0)

	minValue := 100_000.0
	tests := []struct {
		name   string
		filter opportunity.RecordFilter
		want   []string
	}{
		{"all by score", opportunity.RecordFilter{}, []string{"rec-a", "rec-b"}},
		{"category", opportunity.RecordFilter{Categories: []string{"government"}}, []string{"rec-b"}},
		{"source", opportunity.RecordFilter{Sources: []string{"scbo"}}, []string{"rec-a"}},
		{"min value skips nil", opportunity.RecordFilter{MinValue: &minValue}, []string{"rec-a"}},
		{"search agency", opportunity.RecordFilter{Search: "citadel"}, []string{"rec-a"}},
		{"status case-insensitive", opportunity.RecordFilter{Status: "open"}, []string{"rec-a", "rec-b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := s.ListRecords(ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			require.Equal(t, tc.want, ids)
		})
	}
}

func TestSubscribers(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	require.Error(t, s.SaveSubscriber(ctx, opportunity.Subscriber{}))
	require.NoError(t, s.SaveSubscriber(ctx, opportunity.Subscriber{ID: "b"}))
	require.NoError(t, s.SaveSubscriber(ctx, opportunity.Subscriber{ID: "a", MinNotifyScore: 60}))

	subs, err := s.ListSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "a", subs[0].ID)

	got, err := s.GetSubscriber(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 60, got.MinNotifyScore)

	_, err = s.GetSubscriber(ctx, "zzz")
	require.ErrorIs(t, err, opportunity.ErrNotFound)
}
