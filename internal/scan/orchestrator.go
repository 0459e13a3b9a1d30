// Package scan drives connectors through the upsert engine and reconciles
// record liveness after every full run.
//
// A run is one outer store transaction. Each source gets its own nested scope
// for the fetch and upsert, so a failing source rolls back only its own writes
// while its ScanRun, recorded in a separate scope, always survives. Liveness
// reconciliation runs last; if it fails the whole run rolls back.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/clock/system"
	"github.com/JakeFAU/sitescan/internal/connectors"
	"github.com/JakeFAU/sitescan/internal/ingest"
	"github.com/JakeFAU/sitescan/internal/metrics"
	"github.com/JakeFAU/sitescan/internal/opportunity"
)

// MaxErrorLength caps the error message stored on a failed ScanRun, in runes.
const MaxErrorLength = 500

// Registry is the connector surface the orchestrator needs.
type Registry interface {
	IDs() []string
	Lookup(id string) (connectors.Source, bool)
	Fetch(ctx context.Context, id string, params connectors.Params) ([]opportunity.Candidate, error)
}

// Archiver stores the raw payloads of a successful source scan.
type Archiver interface {
	Archive(ctx context.Context, run opportunity.ScanRun, batch []opportunity.Candidate, at time.Time) (string, error)
}

// Request selects the sources of a run and the parameters handed to connectors.
type Request struct {
	// Sources limits the run to these ids. Empty means every registered source.
	Sources  []string
	Keywords string
	State    string
}

// Result is the outcome of a full run.
type Result struct {
	Runs        []opportunity.ScanRun
	Found       int
	New         int
	Errors      int
	Deactivated int64
}

// Orchestrator runs full scans. Runs are serialized.
type Orchestrator struct {
	mu       sync.Mutex
	store    opportunity.Store
	registry Registry
	upserter *ingest.Upserter
	clock    opportunity.Clock
	ids      opportunity.IDGenerator
	archiver Archiver
	logger   *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver enables raw-payload archiving.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New constructs an Orchestrator.
func New(
	store opportunity.Store,
	registry Registry,
	clock opportunity.Clock,
	ids opportunity.IDGenerator,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		registry: registry,
		clock:    clock,
		ids:      ids,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("scan")
	o.upserter = ingest.NewUpserter(ids, o.logger)
	return o
}

// RunFullScan scans the requested sources in order and reconciles liveness.
// Source failures are recorded on their ScanRun and never returned; the error
// result is reserved for failures that roll back the whole run. Cancelling ctx
// skips the sources that have not started yet.
func (o *Orchestrator) RunFullScan(ctx context.Context, req Request) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := req.Sources
	if len(ids) == 0 {
		ids = o.registry.IDs()
	}
	now := o.clock.Now()
	params := connectors.Params{Keywords: req.Keywords, State: req.State, Now: now}

	var res Result
	err := o.store.WithTx(context.WithoutCancel(ctx), func(txCtx context.Context, tx opportunity.Tx) error {
		res = Result{}
		for _, id := range ids {
			if ctx.Err() != nil {
				o.logger.Warn("scan cancelled, skipping remaining sources", zap.String("next_source", id))
				break
			}
			src, ok := o.registry.Lookup(id)
			if !ok {
				o.logger.Warn("skipping unknown source", zap.String("source", id))
				continue
			}
			run, err := o.scanSource(txCtx, tx, src, params)
			if err != nil {
				return err
			}
			res.Runs = append(res.Runs, run)
			res.Found += run.Found
			res.New += run.New
			if run.Status == opportunity.RunError {
				res.Errors++
			}
		}

		cutoff := system.StartOfDay(now)
		n, err := tx.DeactivateStale(txCtx, cutoff)
		if err != nil {
			return fmt.Errorf("reconcile liveness: %w", err)
		}
		res.Deactivated = n
		return nil
	})
	if err != nil {
		o.logger.Error("scan run rolled back", zap.Error(err))
		return res, err
	}
	metrics.ObserveDeactivated(res.Deactivated)
	o.logger.Info("scan run complete",
		zap.Int("sources", len(res.Runs)),
		zap.Int("found", res.Found),
		zap.Int("new", res.New),
		zap.Int("errors", res.Errors),
		zap.Int64("deactivated", res.Deactivated),
	)
	return res, nil
}

// scanSource runs one source. The returned error is a failure to record the
// ScanRun itself, which aborts the run.
func (o *Orchestrator) scanSource(
	ctx context.Context,
	tx opportunity.Tx,
	src connectors.Source,
	params connectors.Params,
) (opportunity.ScanRun, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return opportunity.ScanRun{}, fmt.Errorf("scan run id for %s: %w", src.ID, err)
	}
	run := opportunity.ScanRun{
		ID:        runID,
		SourceID:  src.ID,
		StartedAt: o.clock.Now(),
		Status:    opportunity.RunRunning,
	}
	if err := tx.Savepoint(ctx, func(ctx context.Context, tx opportunity.Tx) error {
		return tx.InsertScanRun(ctx, run)
	}); err != nil {
		return run, fmt.Errorf("record scan run for %s: %w", src.ID, err)
	}
	logger := o.logger.With(zap.String("source", src.ID), zap.String("run_id", run.ID))
	logger.Info("source scan started")

	var (
		batch    []opportunity.Candidate
		replayed bool
		upserted ingest.Result
	)
	scanErr := tx.Savepoint(ctx, func(ctx context.Context, tx opportunity.Tx) error {
		var err error
		batch, replayed, err = o.collect(ctx, tx, src, params)
		if err != nil {
			return err
		}
		upserted, err = o.upserter.Upsert(ctx, tx, src.ID, batch, params.Now)
		return err
	})

	finished := o.clock.Now()
	run.FinishedAt = &finished
	if scanErr != nil {
		run.Status = opportunity.RunError
		run.ErrorMessage = connectors.Truncate(scanErr.Error(), MaxErrorLength)
		logger.Error("source scan failed", zap.Error(scanErr))
	} else {
		run.Status = opportunity.RunSuccess
		run.Found = len(batch)
		run.New = upserted.New
		if o.archiver != nil && !replayed {
			uri, err := o.archiver.Archive(ctx, run, batch, params.Now)
			if err != nil {
				logger.Warn("archive failed", zap.Error(err))
			}
			run.ArchiveURI = uri
		}
		logger.Info("source scan finished",
			zap.Int("found", run.Found),
			zap.Int("new", run.New),
			zap.Bool("replayed", replayed),
		)
	}
	if err := tx.Savepoint(ctx, func(ctx context.Context, tx opportunity.Tx) error {
		return tx.FinishScanRun(ctx, run)
	}); err != nil {
		return run, fmt.Errorf("finish scan run for %s: %w", src.ID, err)
	}
	metrics.ObserveScan(src.ID, string(run.Status), run.Found, run.New, finished.Sub(run.StartedAt))
	return run, nil
}

// collect returns the batch for a source, replaying stored active records for
// daily-cached sources that were already seen today.
func (o *Orchestrator) collect(
	ctx context.Context,
	tx opportunity.Tx,
	src connectors.Source,
	params connectors.Params,
) (batch []opportunity.Candidate, replayed bool, err error) {
	if src.DailyCache {
		seen, err := tx.HasRecordSeenSince(ctx, src.ID, system.StartOfDay(params.Now))
		if err != nil {
			return nil, false, fmt.Errorf("check daily cache: %w", err)
		}
		if seen {
			recs, err := tx.ListActiveRecords(ctx, src.ID)
			if err != nil {
				return nil, false, fmt.Errorf("replay cached records: %w", err)
			}
			batch = make([]opportunity.Candidate, 0, len(recs))
			for _, rec := range recs {
				batch = append(batch, rec.AsCandidate())
			}
			return batch, true, nil
		}
	}
	batch, err = o.fetch(ctx, src.ID, params)
	return batch, false, err
}

func (o *Orchestrator) fetch(
	ctx context.Context,
	id string,
	params connectors.Params,
) (batch []opportunity.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panic: %v", r)
		}
	}()
	return o.registry.Fetch(ctx, id, params)
}
