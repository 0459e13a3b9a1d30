package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

type receiptKey struct {
	subscriberID string
	recordID     string
	channel      opportunity.Channel
}

// state is the transactional part of the store. Transactions work on a clone and
// swap it in on commit.
type state struct {
	records  map[string]opportunity.Record
	keys     map[opportunity.Key]string
	runs     []opportunity.ScanRun
	receipts map[receiptKey]opportunity.AlertReceipt
}

func newState() *state {
	return &state{
		records:  make(map[string]opportunity.Record),
		keys:     make(map[opportunity.Key]string),
		receipts: make(map[receiptKey]opportunity.AlertReceipt),
	}
}

func (s *state) clone() *state {
	cp := &state{
		records:  make(map[string]opportunity.Record, len(s.records)),
		keys:     make(map[opportunity.Key]string, len(s.keys)),
		runs:     slices.Clone(s.runs),
		receipts: make(map[receiptKey]opportunity.AlertReceipt, len(s.receipts)),
	}
	for k, v := range s.records {
		cp.records[k] = v
	}
	for k, v := range s.keys {
		cp.keys[k] = v
	}
	for k, v := range s.receipts {
		cp.receipts[k] = v
	}
	return cp
}

// Store is an in-memory opportunity.Store for development and tests. Writers are
// serialized; readers see the last committed state.
type Store struct {
	writeMu sync.Mutex

	mu          sync.RWMutex
	committed   *state
	subscribers map[string]opportunity.Subscriber
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		committed:   newState(),
		subscribers: make(map[string]opportunity.Subscriber),
	}
}

// WithTx runs fn against a private copy of the state and publishes it on success.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx opportunity.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()

	tx := &Tx{state: working}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = tx.state
	s.mu.Unlock()
	return nil
}

// ListRecords returns matching records ordered by baseline score descending.
func (s *Store) ListRecords(_ context.Context, filter opportunity.RecordFilter) ([]opportunity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]opportunity.Record, 0, len(s.committed.records))
	for _, rec := range s.committed.records {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	sortByScore(out)
	return out, nil
}

// GetRecord fetches a record by id.
func (s *Store) GetRecord(_ context.Context, id string) (opportunity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.committed.records[id]
	if !ok {
		return opportunity.Record{}, opportunity.ErrNotFound
	}
	return rec, nil
}

// ListScanRuns returns the most recent runs first.
func (s *Store) ListScanRuns(_ context.Context, limit int) ([]opportunity.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := slices.Clone(s.committed.runs)
	slices.Reverse(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastSuccessfulScan returns the latest finish time of a successful run.
func (s *Store) LastSuccessfulScan(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *time.Time
	for _, run := range s.committed.runs {
		if run.Status != opportunity.RunSuccess || run.FinishedAt == nil {
			continue
		}
		if last == nil || run.FinishedAt.After(*last) {
			t := *run.FinishedAt
			last = &t
		}
	}
	return last, nil
}

// ListSubscribers returns all subscribers ordered by id.
func (s *Store) ListSubscribers(_ context.Context) ([]opportunity.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]opportunity.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub)
	}
	slices.SortFunc(out, func(a, b opportunity.Subscriber) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetSubscriber fetches a subscriber by id.
func (s *Store) GetSubscriber(_ context.Context, id string) (opportunity.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return opportunity.Subscriber{}, opportunity.ErrNotFound
	}
	return sub, nil
}

// SaveSubscriber creates or replaces a subscriber.
func (s *Store) SaveSubscriber(_ context.Context, sub opportunity.Subscriber) error {
	if sub.ID == "" {
		return errors.New("save subscriber: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.ID] = sub
	return nil
}

// ListAlertCandidates returns fresh active records at or above minScore.
func (s *Store) ListAlertCandidates(_ context.Context, since time.Time, minScore int) ([]opportunity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []opportunity.Record
	for _, rec := range s.committed.records {
		if rec.IsActive && !rec.FirstSeen.Before(since) && rec.BaselineScore >= minScore {
			out = append(out, rec)
		}
	}
	sortByScore(out)
	return out, nil
}

// ReceiptRecordIDs returns the record ids already delivered on a channel.
func (s *Store) ReceiptRecordIDs(
	_ context.Context,
	subscriberID string,
	ch opportunity.Channel,
) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	for key := range s.committed.receipts {
		if key.subscriberID == subscriberID && key.channel == ch {
			out[key.recordID] = struct{}{}
		}
	}
	return out, nil
}

// Receipts returns every stored receipt. It exists for tests and debugging.
func (s *Store) Receipts() []opportunity.AlertReceipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]opportunity.AlertReceipt, 0, len(s.committed.receipts))
	for _, r := range s.committed.receipts {
		out = append(out, r)
	}
	return out
}

// Close is a no-op.
func (s *Store) Close() {}

// Tx is a write scope over a private copy of the store state.
type Tx struct {
	state *state
}

// Savepoint runs fn against a nested copy that is merged back only on success.
func (t *Tx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx opportunity.Tx) error) error {
	nested := &Tx{state: t.state.clone()}
	if err := fn(ctx, nested); err != nil {
		return err
	}
	t.state = nested.state
	return nil
}

// UpsertRecord inserts or refreshes a record by natural key.
func (t *Tx) UpsertRecord(_ context.Context, c opportunity.Candidate, id string, now time.Time) (bool, error) {
	if existingID, ok := t.state.keys[c.Key()]; ok {
		rec := t.state.records[existingID]
		rec.Title = c.Title
		rec.Description = c.Description
		rec.Status = c.Status
		rec.BaselineScore = c.BaselineScore
		rec.Value = c.Value
		if c.Deadline != nil {
			rec.Deadline = c.Deadline
		}
		rec.LastSeen = now
		rec.IsActive = true
		t.state.records[existingID] = rec
		return false, nil
	}
	if id == "" {
		return false, errors.New("upsert record: empty id")
	}
	t.state.records[id] = opportunity.Record{
		ID:        id,
		Candidate: c,
		FirstSeen: now,
		LastSeen:  now,
		IsActive:  true,
	}
	t.state.keys[c.Key()] = id
	return true, nil
}

// HasRecordSeenSince reports whether any record of the source was seen at or after since.
func (t *Tx) HasRecordSeenSince(_ context.Context, sourceID string, since time.Time) (bool, error) {
	for _, rec := range t.state.records {
		if rec.SourceID == sourceID && !rec.LastSeen.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ListActiveRecords returns the active records of a source.
func (t *Tx) ListActiveRecords(_ context.Context, sourceID string) ([]opportunity.Record, error) {
	var out []opportunity.Record
	for _, rec := range t.state.records {
		if rec.SourceID == sourceID && rec.IsActive {
			out = append(out, rec)
		}
	}
	sortByScore(out)
	return out, nil
}

// DeactivateStale marks active records last seen before the cutoff as inactive.
func (t *Tx) DeactivateStale(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, rec := range t.state.records {
		if rec.IsActive && rec.LastSeen.Before(before) {
			rec.IsActive = false
			t.state.records[id] = rec
			n++
		}
	}
	return n, nil
}

// InsertScanRun appends a run.
func (t *Tx) InsertScanRun(_ context.Context, run opportunity.ScanRun) error {
	for _, existing := range t.state.runs {
		if existing.ID == run.ID {
			return fmt.Errorf("insert scan run %s: already exists", run.ID)
		}
	}
	t.state.runs = append(t.state.runs, run)
	return nil
}

// FinishScanRun updates the terminal fields of a run.
func (t *Tx) FinishScanRun(_ context.Context, run opportunity.ScanRun) error {
	for i, existing := range t.state.runs {
		if existing.ID != run.ID {
			continue
		}
		existing.FinishedAt = run.FinishedAt
		existing.Status = run.Status
		existing.Found = run.Found
		existing.New = run.New
		existing.ErrorMessage = run.ErrorMessage
		existing.ArchiveURI = run.ArchiveURI
		t.state.runs[i] = existing
		return nil
	}
	return fmt.Errorf("finish scan run %s: %w", run.ID, opportunity.ErrNotFound)
}

// InsertReceipts writes receipts, skipping triples that already exist.
func (t *Tx) InsertReceipts(_ context.Context, receipts []opportunity.AlertReceipt) error {
	for _, r := range receipts {
		key := receiptKey{subscriberID: r.SubscriberID, recordID: r.RecordID, channel: r.Channel}
		if _, exists := t.state.receipts[key]; exists {
			continue
		}
		t.state.receipts[key] = r
	}
	return nil
}

func matches(rec opportunity.Record, f opportunity.RecordFilter) bool {
	if f.ActiveOnly && !rec.IsActive {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, rec.Category) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, rec.SourceID) {
		return false
	}
	if f.MinValue != nil && (rec.Value == nil || *rec.Value < *f.MinValue) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(f.Status, rec.Status) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(strings.Join([]string{rec.Title, rec.Description, rec.Agency, rec.Location}, " "))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func sortByScore(recs []opportunity.Record) {
	slices.SortFunc(recs, func(a, b opportunity.Record) int {
		if c := cmp.Compare(b.BaselineScore, a.BaselineScore); c != 0 {
			return c
		}
		if c := b.FirstSeen.Compare(a.FirstSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
