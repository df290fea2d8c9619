package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
)

// PurgedOrdersMetric is the CloudWatch metric counting hard-deleted orders.
const PurgedOrdersMetric = "PurgedOrders"

type trash interface {
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]*orders.Order, error)
	HardDelete(ctx context.Context, orderID string, cutoff time.Time) error
}

type counter interface {
	Count(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

// Collector permanently removes orders that stayed in the trash longer than
// the retention window.
type Collector struct {
	orders    trash
	metrics   counter
	retention time.Duration
	env       string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewCollector returns a Collector. metrics may be nil.
func NewCollector(repo trash, metrics counter, retention time.Duration, env string, logger *slog.Logger) *Collector {
	return &Collector{
		orders:    repo,
		metrics:   metrics,
		retention: retention,
		env:       env,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Handle runs the collector for a scheduled EventBridge event.
func (c *Collector) Handle(ctx context.Context, ev events.CloudWatchEvent) (PurgeReport, error) {
	c.logger.Info("retention run triggered", slog.String("event_id", ev.ID), slog.Time("scheduled_at", ev.Time))
	return c.Run(ctx)
}

// Run purges every expired order. A failed purge does not stop the run; the
// failures are returned together so the scheduler can retry.
func (c *Collector) Run(ctx context.Context) (PurgeReport, error) {
	report := PurgeReport{Cutoff: c.nowFunc().UTC().Add(-c.retention)}

	expired, err := c.orders.ListDeletedBefore(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("list expired orders: %w", err)
	}
	report.Expired = len(expired)

	var errs []error
	for _, o := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := c.orders.HardDelete(ctx, o.ID, report.Cutoff)
		var nfe *apperr.NotFoundError
		switch {
		case err == nil:
			report.Purged++
			c.logger.Debug("order purged",
				slog.String("order_id", o.ID),
				slog.String("company_id", o.CompanyID),
				slog.String("order_number", o.OrderNumber))
		case errors.As(err, &nfe), apperr.Kind(err) == apperr.KindValidation:
			report.Skipped++
			c.logger.Info("order left the trash before purge", slog.String("order_id", o.ID), slog.Any("error", err))
		default:
			report.Failed++
			errs = append(errs, fmt.Errorf("purge %s: %w", o.ID, err))
		}
	}

	if c.metrics != nil {
		if err := c.metrics.Count(ctx, PurgedOrdersMetric, float64(report.Purged), map[string]string{"Environment": c.env}); err != nil {
			c.logger.Warn("purge metric not published", slog.Any("error", err))
		}
	}

	c.logger.Info("retention run finished",
		slog.Time("cutoff", report.Cutoff),
		slog.Int("expired", report.Expired),
		slog.Int("purged", report.Purged),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, errors.Join(errs...)
}
