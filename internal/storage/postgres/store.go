// Package postgres implements the record store on Postgres via pgx.
//
// Nested scopes map to savepoints: Begin on a pgx.Tx starts a pseudo nested
// transaction, so a failing source rolls back to its savepoint and the outer
// run transaction stays usable.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

//go:embed schema.sql
var schema string

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pool interface {
	dbtx
	Close()
}

// Store is the Postgres record store.
type Store struct {
	pool pool
}

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx opportunity.Tx) error) error {
	return inTx(ctx, s.pool, fn)
}

func inTx(ctx context.Context, db dbtx, fn func(ctx context.Context, tx opportunity.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &Tx{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tx is a transaction or savepoint scope.
type Tx struct {
	db pgx.Tx
}

// Savepoint runs fn inside a savepoint of the current transaction.
func (t *Tx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx opportunity.Tx) error) error {
	return inTx(ctx, t.db, fn)
}

const recordColumns = `id, source_id, external_id, title, description, location, address,
	latitude, longitude, value, category, baseline_score, status, posted_date, deadline,
	agency, solicitation_number, naics_codes, contractor, source_url, raw,
	first_seen, last_seen, is_active`

const upsertRecordSQL = `
INSERT INTO opportunities (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$22,TRUE)
ON CONFLICT (source_id, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	status = EXCLUDED.status,
	baseline_score = EXCLUDED.baseline_score,
	value = EXCLUDED.value,
	deadline = COALESCE(EXCLUDED.deadline, opportunities.deadline),
	last_seen = EXCLUDED.last_seen,
	is_active = TRUE
RETURNING (xmax = 0)`

// UpsertRecord inserts the candidate under id or refreshes the existing row.
func (t *Tx) UpsertRecord(ctx context.Context, c opportunity.Candidate, id string, now time.Time) (bool, error) {
	var inserted bool
	err := t.db.QueryRow(ctx, upsertRecordSQL,
		id, c.SourceID, c.ExternalID, c.Title, c.Description, c.Location, c.Address,
		c.Latitude, c.Longitude, c.Value, c.Category, c.BaselineScore, c.Status, c.PostedDate, c.Deadline,
		c.Agency, c.Solicitation, c.NAICSCodes, c.Contractor, c.SourceURL, rawArg(c.Raw),
		now,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}
	return inserted, nil
}

// HasRecordSeenSince reports whether the source has a record last seen at or after since.
func (t *Tx) HasRecordSeenSince(ctx context.Context, sourceID string, since time.Time) (bool, error) {
	var seen bool
	err := t.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM opportunities WHERE source_id = $1 AND last_seen >= $2)`,
		sourceID, since,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check last seen: %w", err)
	}
	return seen, nil
}

// ListActiveRecords returns the active records of a source.
func (t *Tx) ListActiveRecords(ctx context.Context, sourceID string) ([]opportunity.Record, error) {
	return queryRecords(ctx, t.db,
		`SELECT `+recordColumns+` FROM opportunities WHERE source_id = $1 AND is_active
		ORDER BY baseline_score DESC, first_seen DESC, id`, sourceID)
}

// DeactivateStale flips active records last seen before the cutoff.
func (t *Tx) DeactivateStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := t.db.Exec(ctx,
		`UPDATE opportunities SET is_active = FALSE WHERE is_active AND last_seen < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertScanRun persists a new scan run.
func (t *Tx) InsertScanRun(ctx context.Context, run opportunity.ScanRun) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO scan_runs (id, source_id, started_at, status)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.SourceID, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}
	return nil
}

// FinishScanRun writes the terminal fields of a scan run.
func (t *Tx) FinishScanRun(ctx context.Context, run opportunity.ScanRun) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE scan_runs
		SET finished_at = $1, status = $2, found = $3, new_count = $4, error_message = $5, archive_uri = $6
		WHERE id = $7`,
		run.FinishedAt, string(run.Status), run.Found, run.New, run.ErrorMessage, run.ArchiveURI, run.ID)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish scan run %s: %w", run.ID, opportunity.ErrNotFound)
	}
	return nil
}

// InsertReceipts writes receipts, ignoring existing triples.
func (t *Tx) InsertReceipts(ctx context.Context, receipts []opportunity.AlertReceipt) error {
	for _, r := range receipts {
		_, err := t.db.Exec(ctx, `
			INSERT INTO alert_receipts (subscriber_id, record_id, channel, sent_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subscriber_id, record_id, channel) DO NOTHING`,
			r.SubscriberID, r.RecordID, string(r.Channel), r.SentAt)
		if err != nil {
			return fmt.Errorf("insert receipt %s/%s: %w", r.SubscriberID, r.RecordID, err)
		}
	}
	return nil
}

// ListRecords returns records matching the filter.
func (s *Store) ListRecords(ctx context.Context, filter opportunity.RecordFilter) ([]opportunity.Record, error) {
	where, args := recordWhere(filter)
	q := `SELECT ` + recordColumns + ` FROM opportunities`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY baseline_score DESC, first_seen DESC, id"
	return queryRecords(ctx, s.pool, q, args...)
}

func recordWhere(f opportunity.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if len(f.Categories) > 0 {
		add("category = ANY(?)", f.Categories)
	}
	if len(f.Sources) > 0 {
		add("source_id = ANY(?)", f.Sources)
	}
	if f.MinValue != nil {
		add("value >= ?", *f.MinValue)
	}
	if f.Status != "" {
		add("lower(status) = lower(?)", f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(title ILIKE ? OR description ILIKE ? OR agency ILIKE ? OR location ILIKE ?)", "%"+s+"%")
	}
	return strings.Join(conds, " AND "), args
}

// GetRecord returns a record by id.
func (s *Store) GetRecord(ctx context.Context, id string) (opportunity.Record, error) {
	recs, err := queryRecords(ctx, s.pool, `SELECT `+recordColumns+` FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return opportunity.Record{}, err
	}
	if len(recs) == 0 {
		return opportunity.Record{}, opportunity.ErrNotFound
	}
	return recs[0], nil
}

// ListAlertCandidates returns fresh active records at or above minScore.
func (s *Store) ListAlertCandidates(ctx context.Context, since time.Time, minScore int) ([]opportunity.Record, error) {
	return queryRecords(ctx, s.pool,
		`SELECT `+recordColumns+` FROM opportunities
		WHERE is_active AND first_seen >= $1 AND baseline_score >= $2
		ORDER BY baseline_score DESC, first_seen DESC, id`, since, minScore)
}

// ReceiptRecordIDs returns the record ids already delivered on a channel.
func (s *Store) ReceiptRecordIDs(
	ctx context.Context,
	subscriberID string,
	ch opportunity.Channel,
) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record_id FROM alert_receipts WHERE subscriber_id = $1 AND channel = $2`,
		subscriberID, string(ch))
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

const scanRunColumns = `id, source_id, started_at, finished_at, status, found, new_count, error_message, archive_uri`

// ListScanRuns returns the most recent runs, newest first.
func (s *Store) ListScanRuns(ctx context.Context, limit int) ([]opportunity.ScanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+scanRunColumns+` FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()
	var runs []opportunity.ScanRun
	for rows.Next() {
		var (
			run    opportunity.ScanRun
			status string
		)
		if err := rows.Scan(&run.ID, &run.SourceID, &run.StartedAt, &run.FinishedAt, &status,
			&run.Found, &run.New, &run.ErrorMessage, &run.ArchiveURI); err != nil {
			return nil, fmt.Errorf("scan scan run: %w", err)
		}
		run.Status = opportunity.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan runs: %w", err)
	}
	return runs, nil
}

// LastSuccessfulScan returns the finish time of the newest successful run.
func (s *Store) LastSuccessfulScan(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(finished_at) FROM scan_runs WHERE status = $1`, string(opportunity.RunSuccess),
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last successful scan: %w", err)
	}
	return last, nil
}

const subscriberColumns = `id, name, min_value, categories, statuses, sources,
	min_notify_score, email_enabled, email, sms_enabled, phone`

// ListSubscribers returns every subscriber ordered by id.
func (s *Store) ListSubscribers(ctx context.Context) ([]opportunity.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()
	var subs []opportunity.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}

// GetSubscriber returns a subscriber by id.
func (s *Store) GetSubscriber(ctx context.Context, id string) (opportunity.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return opportunity.Subscriber{}, opportunity.ErrNotFound
	}
	return sub, err
}

// SaveSubscriber creates or replaces a subscriber.
func (s *Store) SaveSubscriber(ctx context.Context, sub opportunity.Subscriber) error {
	if sub.ID == "" {
		return errors.New("save subscriber: empty id")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscribers (`+subscriberColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			min_value = EXCLUDED.min_value,
			categories = EXCLUDED.categories,
			statuses = EXCLUDED.statuses,
			sources = EXCLUDED.sources,
			min_notify_score = EXCLUDED.min_notify_score,
			email_enabled = EXCLUDED.email_enabled,
			email = EXCLUDED.email,
			sms_enabled = EXCLUDED.sms_enabled,
			phone = EXCLUDED.phone`,
		sub.ID, sub.Name, sub.Criteria.MinValue, sub.Criteria.Categories, sub.Criteria.Statuses,
		sub.Criteria.Sources, sub.MinNotifyScore, sub.EmailEnabled, sub.Email, sub.SMSEnabled, sub.Phone)
	if err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	return nil
}

func scanSubscriber(row pgx.Row) (opportunity.Subscriber, error) {
	var sub opportunity.Subscriber
	err := row.Scan(&sub.ID, &sub.Name, &sub.Criteria.MinValue, &sub.Criteria.Categories,
		&sub.Criteria.Statuses, &sub.Criteria.Sources, &sub.MinNotifyScore,
		&sub.EmailEnabled, &sub.Email, &sub.SMSEnabled, &sub.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sub, err
		}
		return sub, fmt.Errorf("scan subscriber: %w", err)
	}
	return sub, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRecords(ctx context.Context, db querier, sql string, args ...any) ([]opportunity.Record, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out []opportunity.Record
	for rows.Next() {
		var (
			rec opportunity.Record
			raw []byte
		)
		err := rows.Scan(&rec.ID, &rec.SourceID, &rec.ExternalID, &rec.Title, &rec.Description,
			&rec.Location, &rec.Address, &rec.Latitude, &rec.Longitude, &rec.Value, &rec.Category,
			&rec.BaselineScore, &rec.Status, &rec.PostedDate, &rec.Deadline, &rec.Agency,
			&rec.Solicitation, &rec.NAICSCodes, &rec.Contractor, &rec.SourceURL, &raw,
			&rec.FirstSeen, &rec.LastSeen, &rec.IsActive)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(raw) > 0 {
			rec.Raw = raw
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func rawArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
