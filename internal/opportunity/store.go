package opportunity

import (
	"context"
	"time"
)

// Store is the durable home of records, scan runs, subscribers and alert receipts.
// Writes happen inside WithTx; reads outside a transaction see committed state.
type Store interface {
	// WithTx runs fn inside a transaction. The transaction commits when fn returns
	// nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListRecords returns records matching the filter ordered by baseline score descending.
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error)
	// GetRecord returns a record by id or ErrNotFound.
	GetRecord(ctx context.Context, id string) (Record, error)
	// ListScanRuns returns the most recent scan runs, newest first.
	ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error)
	// LastSuccessfulScan returns the finish time of the latest successful run, if any.
	LastSuccessfulScan(ctx context.Context) (*time.Time, error)

	// ListSubscribers returns every subscriber profile.
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	// GetSubscriber returns a subscriber by id or ErrNotFound.
	GetSubscriber(ctx context.Context, id string) (Subscriber, error)
	// SaveSubscriber creates or replaces a subscriber profile.
	SaveSubscriber(ctx context.Context, sub Subscriber) error

	// ListAlertCandidates returns active records first seen at or after since whose
	// baseline score is at least minScore, ordered by baseline score descending.
	ListAlertCandidates(ctx context.Context, since time.Time, minScore int) ([]Record, error)
	// ReceiptRecordIDs returns the ids of records already delivered to the
	// subscriber on the channel.
	ReceiptRecordIDs(ctx context.Context, subscriberID string, ch Channel) (map[string]struct{}, error)

	// Close releases the underlying resources.
	Close()
}

// Tx is the write surface of a Store transaction.
type Tx interface {
	// Savepoint runs fn in a nested scope. A failure inside fn rolls back only the
	// nested scope; the enclosing transaction stays usable.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// UpsertRecord inserts the candidate under id or, when the natural key already
	// exists, refreshes its mutable fields. It reports whether a row was inserted.
	UpsertRecord(ctx context.Context, c Candidate, id string, now time.Time) (bool, error)
	// HasRecordSeenSince reports whether the source has a record last seen at or after since.
	HasRecordSeenSince(ctx context.Context, sourceID string, since time.Time) (bool, error)
	// ListActiveRecords returns the active records of a source.
	ListActiveRecords(ctx context.Context, sourceID string) ([]Record, error)
	// DeactivateStale flips active records last seen before the cutoff to inactive.
	DeactivateStale(ctx context.Context, before time.Time) (int64, error)

	// InsertScanRun persists a new scan run.
	InsertScanRun(ctx context.Context, run ScanRun) error
	// FinishScanRun writes the terminal fields of a scan run.
	FinishScanRun(ctx context.Context, run ScanRun) error

	// InsertReceipts writes alert receipts, ignoring triples that already exist.
	InsertReceipts(ctx context.Context, receipts []AlertReceipt) error
}

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
