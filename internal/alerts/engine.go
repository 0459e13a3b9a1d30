// Package alerts notifies subscribers about newly seen records they have not
// yet been told about.
//
// Receipts are written only after the delivery transport accepts a message,
// once per (subscriber, record, channel), so a failed delivery leaves the
// records eligible for the next pass.
package alerts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitescan/internal/delivery"
	"github.com/JakeFAU/sitescan/internal/metrics"
	"github.com/JakeFAU/sitescan/internal/opportunity"
	"github.com/JakeFAU/sitescan/internal/scoring"
)

// DefaultSlack widens the lookback window beyond one scan interval.
const DefaultSlack = time.Hour

// Notifier hands a rendered message to its transport.
type Notifier interface {
	Deliver(ctx context.Context, msg delivery.Message) error
}

// Config controls the lookback window.
type Config struct {
	// ScanInterval is the period between scheduled scans.
	ScanInterval time.Duration
	// Slack is added to ScanInterval; zero means DefaultSlack.
	Slack time.Duration
}

// Summary counts the outcome of one alert pass.
type Summary struct {
	Subscribers int `json:"subscribers"`
	Delivered   int `json:"delivered"`
	Failed      int `json:"failed"`
	Receipts    int `json:"receipts"`
}

// Engine runs alert passes.
type Engine struct {
	store    opportunity.Store
	notifier Notifier
	clock    opportunity.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(
	store opportunity.Store,
	notifier Notifier,
	clock opportunity.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Slack <= 0 {
		cfg.Slack = DefaultSlack
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("alerts"),
	}
}

// Cutoff returns the earliest first_seen considered at now.
func (e *Engine) Cutoff(now time.Time) time.Time {
	return now.Add(-(e.cfg.ScanInterval + e.cfg.Slack))
}

// ProcessAlerts runs one pass over every subscriber. Per-subscriber failures
// are logged and counted; only a failure to list subscribers is returned.
func (e *Engine) ProcessAlerts(ctx context.Context) (Summary, error) {
	var sum Summary
	subs, err := e.store.ListSubscribers(ctx)
	if err != nil {
		return sum, fmt.Errorf("list subscribers: %w", err)
	}
	cutoff := e.Cutoff(e.clock.Now())
	for _, sub := range subs {
		channels := sub.Channels()
		if len(channels) == 0 {
			continue
		}
		if err := e.processSubscriber(ctx, sub, channels, cutoff, &sum); err != nil {
			e.logger.Error("alert processing failed",
				zap.String("subscriber", sub.ID),
				zap.Error(err),
			)
		}
	}
	e.logger.Info("alert pass complete",
		zap.Int("subscribers", sum.Subscribers),
		zap.Int("delivered", sum.Delivered),
		zap.Int("failed", sum.Failed),
		zap.Int("receipts", sum.Receipts),
	)
	return sum, nil
}

func (e *Engine) processSubscriber(
	ctx context.Context,
	sub opportunity.Subscriber,
	channels []opportunity.Channel,
	cutoff time.Time,
	sum *Summary,
) error {
	recs, err := e.store.ListAlertCandidates(ctx, cutoff, sub.MinNotifyScore)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	notified := false
	for _, ch := range channels {
		sent, err := e.store.ReceiptRecordIDs(ctx, sub.ID, ch)
		if err != nil {
			return fmt.Errorf("load %s receipts: %w", ch, err)
		}
		items := make([]Item, 0, len(recs))
		for _, rec := range recs {
			if _, done := sent[rec.ID]; done {
				continue
			}
			items = append(items, Item{Record: rec, Match: scoring.Profile(rec, sub.Criteria)})
		}
		if len(items) == 0 {
			continue
		}
		notified = true
		if err := e.deliver(ctx, sub, ch, items); err != nil {
			sum.Failed++
			metrics.ObserveAlert(string(ch), "failed")
			e.logger.Warn("alert delivery failed",
				zap.String("subscriber", sub.ID),
				zap.String("channel", string(ch)),
				zap.Int("items", len(items)),
				zap.Error(err),
			)
			continue
		}
		n, err := e.recordReceipts(ctx, sub.ID, ch, items)
		if err != nil {
			// The message went out but the receipts did not commit; the same
			// items will be resent next pass.
			metrics.ObserveAlert(string(ch), "unrecorded")
			e.logger.Error("alert receipts not recorded",
				zap.String("subscriber", sub.ID),
				zap.String("channel", string(ch)),
				zap.Error(err),
			)
			continue
		}
		sum.Delivered++
		sum.Receipts += n
		metrics.ObserveAlert(string(ch), "sent")
		e.logger.Info("alert delivered",
			zap.String("subscriber", sub.ID),
			zap.String("channel", string(ch)),
			zap.Int("items", len(items)),
		)
	}
	if notified {
		sum.Subscribers++
	}
	return nil
}

func (e *Engine) deliver(ctx context.Context, sub opportunity.Subscriber, ch opportunity.Channel, items []Item) error {
	msg := delivery.Message{Channel: ch, Recipient: sub.Recipient(ch)}
	switch ch {
	case opportunity.ChannelEmail:
		body, err := EmailBody(items)
		if err != nil {
			return err
		}
		msg.Subject = EmailSubject(len(items))
		msg.Body = body
		msg.HTML = true
	default:
		msg.Body = SMSBody(items)
	}
	return e.notifier.Deliver(ctx, msg)
}

func (e *Engine) recordReceipts(
	ctx context.Context,
	subscriberID string,
	ch opportunity.Channel,
	items []Item,
) (int, error) {
	sentAt := e.clock.Now()
	receipts := make([]opportunity.AlertReceipt, len(items))
	for i, it := range items {
		receipts[i] = opportunity.AlertReceipt{
			SubscriberID: subscriberID,
			RecordID:     it.Record.ID,
			Channel:      ch,
			SentAt:       sentAt,
		}
	}
	err := e.store.WithTx(ctx, func(ctx context.Context, tx opportunity.Tx) error {
		return tx.InsertReceipts(ctx, receipts)
	})
	if err != nil {
		return 0, err
	}
	return len(receipts), nil
}
