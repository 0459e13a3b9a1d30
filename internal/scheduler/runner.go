// Package scheduler runs scan-and-alert cycles on demand and on an interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/alerts"
	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/publisher"
	"github.com/JakeFAU/sitescan/internal/scan"
)

// Scanner runs a full scan.
type Scanner interface {
	RunFullScan(ctx context.Context, req scan.Request) (scan.Result, error)
}

// AlertProcessor runs one alert pass.
type AlertProcessor interface {
	ProcessAlerts(ctx context.Context) (alerts.Summary, error)
}

// CycleRequest parameterizes one cycle.
type CycleRequest struct {
	Scan       scan.Request
	SkipAlerts bool
}

// CycleResult aggregates one cycle.
type CycleResult struct {
	Runs        []opportunity.ScanRun `json:"runs"`
	Found       int                   `json:"found"`
	New         int                   `json:"new"`
	Errors      int                   `json:"errors"`
	Deactivated int64                 `json:"deactivated"`
	Alerts      alerts.Summary        `json:"alerts"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
}

// Runner serializes cycles so at most one scan or alert pass runs at a time.
type Runner struct {
	mu        sync.Mutex
	scanner   Scanner
	alerts    AlertProcessor
	publisher publisher.Publisher
	clock     opportunity.Clock
	logger    *zap.Logger
}

// NewRunner constructs a Runner. pub may be nil.
func NewRunner(
	scanner Scanner,
	alertProc AlertProcessor,
	pub publisher.Publisher,
	clock opportunity.Clock,
	logger *zap.Logger,
) *Runner {
	if pub == nil {
		pub = publisher.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scanner:   scanner,
		alerts:    alertProc,
		publisher: pub,
		clock:     clock,
		logger:    logger.Named("scheduler"),
	}
}

// RunCycle scans and then, even when the scan rolled back, processes alerts.
// Source failures only show up in the returned runs; the error reports a
// rolled-back scan or a failed alert pass.
func (r *Runner) RunCycle(ctx context.Context, req CycleRequest) (CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := CycleResult{StartedAt: r.clock.Now()}
	scanRes, scanErr := r.scanner.RunFullScan(ctx, req.Scan)
	if scanErr == nil {
		res.Runs = scanRes.Runs
		res.Found = scanRes.Found
		res.New = scanRes.New
		res.Errors = scanRes.Errors
		res.Deactivated = scanRes.Deactivated
	} else {
		scanErr = fmt.Errorf("scan: %w", scanErr)
	}

	var alertErr error
	if !req.SkipAlerts {
		res.Alerts, alertErr = r.alerts.ProcessAlerts(context.WithoutCancel(ctx))
		if alertErr != nil {
			alertErr = fmt.Errorf("alerts: %w", alertErr)
		}
	}
	res.FinishedAt = r.clock.Now()

	if scanErr == nil {
		r.publish(ctx, publisher.EventScanCompleted, res)
	}
	r.logger.Info("cycle complete",
		zap.Int("found", res.Found),
		zap.Int("new", res.New),
		zap.Int("source_errors", res.Errors),
		zap.Int("alerts_delivered", res.Alerts.Delivered),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, errors.Join(scanErr, alertErr)
}

// ProcessAlerts runs an alert pass outside of a scan cycle.
func (r *Runner) ProcessAlerts(ctx context.Context) (alerts.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum, err := r.alerts.ProcessAlerts(ctx)
	if err != nil {
		return sum, err
	}
	r.publish(ctx, publisher.EventAlertsProcessed, sum)
	return sum, nil
}

func (r *Runner) publish(ctx context.Context, eventType string, data any) {
	id, err := r.publisher.Publish(context.WithoutCancel(ctx), publisher.Event{
		Type:       eventType,
		OccurredAt: r.clock.Now(),
		Data:       data,
	})
	if err != nil {
		r.logger.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	r.logger.Debug("event published", zap.String("type", eventType), zap.String("id", id))
}
