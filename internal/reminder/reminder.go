// Package reminder periodically nudges buyers whose orders are still unpaid.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alextreichler/shopbot/internal/metrics"
	"github.com/alextreichler/shopbot/internal/models"
	"github.com/alextreichler/shopbot/internal/notify"
)

const DefaultInterval = 2 * time.Minute

type Store interface {
	ListUnpaidOrders(ctx context.Context) ([]models.Order, error)
}

type Deps struct {
	Store    Store
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Interval time.Duration
	// Address is the LTC address buyers pay to.
	Address string
	// Prefix is the command prefix shown in the instructions, "s!" by default.
	Prefix string
}

type Scheduler struct {
	store    Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	interval time.Duration
	address  string
	prefix   string
}

func New(d Deps) *Scheduler {
	s := &Scheduler{
		store:    d.Store,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      d.Logger,
		interval: d.Interval,
		address:  d.Address,
		prefix:   d.Prefix,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.prefix == "" {
		s.prefix = "s!"
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "reminder")
	return s
}

// Run scans once per interval until ctx is cancelled. The first scan happens
// one interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Reminder loop started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Reminder loop stopped")
			return nil
		case <-ticker.C:
			if _, _, err := s.Tick(ctx); err != nil {
				s.log.Error("Reminder scan failed", "error", err)
			}
		}
	}
}

// Tick sends one reminder per unpaid order and reports how many went out and
// how many could not be delivered. Failed reminders are not retried until the
// next tick.
func (s *Scheduler) Tick(ctx context.Context) (sent, failed int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ReminderScanDuration.Observe(time.Since(start).Seconds())
	}()

	orders, err := s.store.ListUnpaidOrders(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list unpaid orders: %w", err)
	}

	for i := range orders {
		if ctx.Err() != nil {
			break
		}
		o := &orders[i]
		if err := s.notifier.DirectMessage(ctx, o.UserID, s.message(o)); err != nil {
			failed++
			s.metrics.Reminders.WithLabelValues("failed").Inc()
			s.log.Warn("Failed to send payment reminder", "order_id", o.ID, "user_id", o.UserID, "error", err)
			continue
		}
		sent++
		s.metrics.Reminders.WithLabelValues("sent").Inc()
	}

	if len(orders) > 0 {
		s.log.Info("Payment reminders processed", "orders", len(orders), "sent", sent, "failed", failed)
	}
	return sent, failed, nil
}

func (s *Scheduler) message(o *models.Order) notify.Message {
	return notify.Message{
		Title:       "💸 Payment Reminder",
		Description: "Hey there! Just a reminder about your pending order.",
		Color:       notify.ColorInfo,
	}.
		AddField("Order Details", fmt.Sprintf("**Order ID:** #%d\n**Amount Due:** $%s", o.ID, o.TotalPrice.StringFixed(2)), false).
		AddField("Payment Instructions", fmt.Sprintf(
			"Please send **%s LTC** to:\n`%s`\n\nAfter sending payment, use `%sconfirm %s` to notify us.",
			o.CryptoAmount.String(), s.address, s.prefix, o.ConfirmationKey), false)
}
