package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/funding-collector/internal/telemetry"
	"github.com/irfndi/funding-collector/internal/utils"
	"github.com/irfndi/funding-collector/pkg/exchange"
)

// CycleReport summarizes one collect-and-dispatch cycle.
type CycleReport struct {
	CycleID       string        `json:"cycle_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Records       int           `json:"records"`
	Sent          int           `json:"sent"`
	DryRun        int           `json:"dry_run"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	AssetFailures int           `json:"asset_failures"`
	Error         string        `json:"error,omitempty"`
}

// CollectorService runs the adapter for one exchange and hands every record to the dispatcher.
type CollectorService struct {
	adapter    exchange.Adapter
	dispatcher *Dispatcher
	allowed    []string
	logger     *logrus.Entry
	now        func() time.Time

	mu         sync.RWMutex
	lastReport *CycleReport
	cycles     int64
}

// NewCollectorService creates a collector for adapter restricted to allowed assets.
func NewCollectorService(adapter exchange.Adapter, dispatcher *Dispatcher, allowed []string, logger *logrus.Logger) *CollectorService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CollectorService{
		adapter:    adapter,
		dispatcher: dispatcher,
		allowed:    allowed,
		logger:     logger.WithField("exchange", adapter.Name()),
		now:        time.Now,
	}
}

// RunCycle collects records and dispatches them one at a time in asset order.
// Only a catalog or live-stats failure is returned; per-asset problems are
// logged and counted in the report.
func (c *CollectorService) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: c.now(),
	}
	logger := c.logger.WithField("cycle_id", report.CycleID)

	ctx, span := telemetry.StartSpan(ctx, tracerName, "collector.cycle",
		attribute.String("exchange", c.adapter.Name()),
		attribute.String("cycle_id", report.CycleID),
	)
	defer span.End()

	collection, err := c.adapter.CollectAll(ctx, c.allowed)
	if err != nil {
		telemetry.RecordError(span, err)
		report.Duration = c.now().Sub(report.StartedAt)
		report.Error = err.Error()
		c.record(report)
		fields := logrus.Fields{
			"error":       err.Error(),
			"records":     0,
			"sent":        0,
			"duration_ms": report.Duration.Milliseconds(),
		}
		var shapeErr *utils.ShapeError
		if errors.As(err, &shapeErr) {
			fields["sample"] = shapeErr.Sample
		}
		logger.WithFields(fields).Error("Collection cycle failed")
		return report, err
	}

	report.Records = len(collection.Records)
	report.AssetFailures = len(collection.Failures)
	for _, failure := range collection.Failures {
		logger.WithFields(logrus.Fields{
			"asset":  failure.Asset,
			"symbol": failure.Symbol,
			"error":  failure.Err.Error(),
		}).Warn("Asset skipped after fetch failure")
	}

	for _, record := range collection.Records {
		result, _ := c.dispatcher.Dispatch(ctx, record)
		switch result.Outcome {
		case OutcomeSent:
			report.Sent++
		case OutcomeDryRun:
			report.DryRun++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.Duration = c.now().Sub(report.StartedAt)
	c.record(report)

	span.SetAttributes(
		attribute.Int("records", report.Records),
		attribute.Int("sent", report.Sent),
		attribute.Int("failed", report.Failed),
	)
	logger.WithFields(logrus.Fields{
		"records":     report.Records,
		"sent":        report.Sent,
		"dry_run":     report.DryRun,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Collection cycle complete")
	return report, nil
}

// Run adapts RunCycle to the scheduler's cycle signature.
func (c *CollectorService) Run(ctx context.Context) error {
	_, err := c.RunCycle(ctx)
	return err
}

// LastCycle returns the most recent report and the number of cycles run.
func (c *CollectorService) LastCycle() (CycleReport, int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastReport == nil {
		return CycleReport{}, c.cycles, false
	}
	return *c.lastReport, c.cycles, true
}

func (c *CollectorService) record(report CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReport = &report
	c.cycles++
}
