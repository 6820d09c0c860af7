package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/messaging"
	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/state"
	"github.com/irfndi/funding-collector/internal/telemetry"
	"github.com/irfndi/funding-collector/internal/utils"
	"github.com/irfndi/funding-collector/pkg/httpclient"
)

const (
	tracerName = "github.com/irfndi/funding-collector/internal/services"

	// ActionFundingUpdate is the Action tag of every outbound message.
	ActionFundingUpdate = "Funding-Update"
	// DefaultSchema is used when no schema id is configured.
	DefaultSchema = "funding.v1"
)

// Tag names of the outbound message.
const (
	TagAction          = "Action"
	TagSource          = "Source"
	TagPair            = "Pair"
	TagRate            = "Rate"
	TagNextFunding     = "NextFunding"
	TagTimestamp       = "Timestamp"
	TagSchema          = "Schema"
	TagClientMessageID = "Client-Message-Id"
)

// DispatchOutcome says what happened to one record.
type DispatchOutcome string

const (
	OutcomeSent    DispatchOutcome = "sent"
	OutcomeDryRun  DispatchOutcome = "dry_run"
	OutcomeSkipped DispatchOutcome = "skipped"
	OutcomeFailed  DispatchOutcome = "failed"
)

// DispatchResult is returned for every dispatched record.
type DispatchResult struct {
	Outcome   DispatchOutcome
	MessageID string
}

// DispatcherConfig holds the delivery settings of one exchange process.
type DispatcherConfig struct {
	Destinations map[string]string
	DryRun       bool
	Schema       string
	TagSeconds   bool
	SendSleep    time.Duration
	Retry        httpclient.RetryPolicy
}

// DispatcherConfigFromConfig maps the loaded configuration onto dispatcher settings.
func DispatcherConfigFromConfig(cfg *config.Config) DispatcherConfig {
	return DispatcherConfig{
		Destinations: cfg.Assets.Destinations,
		DryRun:       cfg.Dispatch.DryRun,
		Schema:       cfg.Dispatch.Schema,
		TagSeconds:   cfg.Dispatch.TagSeconds,
		SendSleep:    cfg.Dispatch.SendSleep(),
		Retry: httpclient.RetryPolicy{
			Retries:   cfg.Dispatch.Retries,
			BaseDelay: cfg.Dispatch.RetryBaseDelay(),
			Factor:    httpclient.DefaultFactor,
			Label:     "bus send",
		},
	}
}

// Dispatcher turns canonical records into bus messages, gated by change detection.
type Dispatcher struct {
	config  DispatcherConfig
	client  messaging.Client
	breaker *CircuitBreaker
	store   *state.LastSentStore
	logger  *logrus.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewDispatcher creates a dispatcher. A nil breaker sends without one.
func NewDispatcher(cfg DispatcherConfig, client messaging.Client, breaker *CircuitBreaker, store *state.LastSentStore, logger *logrus.Logger) *Dispatcher {
	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		config:  cfg,
		client:  client,
		breaker: breaker,
		store:   store,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Dispatch delivers one record. Missing destinations and delivery failures are
// logged here and returned as *utils.ConfigError or *utils.DeliveryError so the
// caller can count them; neither should stop the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, record models.CanonicalFundingRecord) (DispatchResult, error) {
	fields := logrus.Fields{
		"exchange": record.Exchange,
		"asset":    record.Asset,
	}

	target, ok := d.config.Destinations[record.Asset]
	if !ok || target == "" {
		err := utils.NewConfigErrorf(config.DestinationKey(record.Asset), "no destination configured for %s", record.Asset)
		d.logger.WithFields(fields).WithError(err).Warn("Skipping asset without destination")
		return DispatchResult{Outcome: OutcomeFailed}, err
	}

	now := d.now()
	nowMs := now.UnixMilli()
	key := record.Key()
	if d.store.ShouldSkip(key, record, nowMs) {
		d.logger.WithFields(fields).WithField("funding_rate", record.FundingRate).Debug("Unchanged since last send, skipping")
		return DispatchResult{Outcome: OutcomeSkipped}, nil
	}

	message := BuildMessage(record, target, d.config.Schema, d.config.TagSeconds, now)
	data, err := json.Marshal(message.Payload)
	if err != nil {
		err = fmt.Errorf("failed to encode payload: %w", err)
		d.logger.WithFields(fields).WithError(err).Error("Failed to build funding update")
		return DispatchResult{Outcome: OutcomeFailed}, err
	}

	if d.config.DryRun {
		d.logger.WithFields(fields).WithFields(logrus.Fields{
			"target":       target,
			"funding_rate": record.FundingRate,
			"next_funding": record.NextFundingAtMs,
			"payload":      string(data),
		}).Info("Dry run, message not sent")
		d.store.Remember(ctx, key, record, nowMs)
		return DispatchResult{Outcome: OutcomeDryRun}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "dispatch.send",
		attribute.String("exchange", record.Exchange),
		attribute.String("asset", record.Asset),
	)
	defer span.End()

	messageID, err := d.send(ctx, message, data)
	if err != nil {
		deliveryErr := &utils.DeliveryError{Exchange: record.Exchange, Asset: record.Asset, Err: err}
		telemetry.RecordError(span, deliveryErr)
		d.logger.WithFields(fields).WithFields(logrus.Fields{
			"target": target,
			"error":  err.Error(),
		}).Error("Failed to deliver funding update")
		return DispatchResult{Outcome: OutcomeFailed}, deliveryErr
	}

	d.store.Remember(ctx, key, record, nowMs)
	span.SetAttributes(attribute.String("message_id", messageID))
	d.logger.WithFields(fields).WithFields(logrus.Fields{
		"message_id":   messageID,
		"funding_rate": record.FundingRate,
		"next_funding": record.NextFundingAtMs,
	}).Info("Funding update sent")

	if d.config.SendSleep > 0 {
		if err := d.sleep(ctx, d.config.SendSleep); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Debug("Send sleep interrupted")
		}
	}
	return DispatchResult{Outcome: OutcomeSent, MessageID: messageID}, nil
}

// send retries the bus call inside one breaker execution, so an open breaker
// fails fast and a fully retried failure counts once.
func (d *Dispatcher) send(ctx context.Context, message models.OutboundMessage, data []byte) (string, error) {
	var messageID string
	deliver := func(ctx context.Context) error {
		id, err := httpclient.WithRetry(ctx, d.logger, d.config.Retry, func(ctx context.Context) (string, error) {
			return d.client.Send(ctx, message.Target, message.Tags, data)
		})
		messageID = id
		return err
	}

	if d.breaker == nil {
		return messageID, deliver(ctx)
	}
	return messageID, d.breaker.Execute(ctx, deliver)
}

// BuildMessage assembles the tags and payload for record at now.
func BuildMessage(record models.CanonicalFundingRecord, target, schema string, tagSeconds bool, now time.Time) models.OutboundMessage {
	nowMs := now.UnixMilli()
	timestamp := strconv.FormatInt(nowMs, 10)
	if tagSeconds {
		timestamp = strconv.FormatInt(nowMs/1000, 10)
	}

	return models.OutboundMessage{
		Target: target,
		Tags: []models.Tag{
			{Name: TagAction, Value: ActionFundingUpdate},
			{Name: TagSource, Value: record.Exchange},
			{Name: TagPair, Value: record.Asset},
			{Name: TagRate, Value: FormatRate(record.FundingRate)},
			{Name: TagNextFunding, Value: strconv.FormatInt(record.NextFundingAtMs, 10)},
			{Name: TagTimestamp, Value: timestamp},
			{Name: TagSchema, Value: schema},
			{Name: TagClientMessageID, Value: fmt.Sprintf("%s:%s:%d", record.Exchange, record.Asset, nowMs)},
		},
		Payload: models.FundingPayload{
			Dex:            record.Exchange,
			Pair:           record.Asset,
			FundingRate:    record.FundingRate,
			NextFunding:    record.NextFundingAtMs,
			NextFundingSec: record.NextFundingAtMs / 1000,
			Liquidity:      record.Liquidity,
			Fees:           record.Fees,
			Timestamp:      nowMs,
			TimestampSec:   nowMs / 1000,
			Schema:         schema,
		},
	}
}

// FormatRate renders a funding rate the way downstream consumers already parse
// it: plain decimals, switching to a compact exponent ("1e-7", "2.5e+21")
// below 1e-6 and at or above 1e21.
func FormatRate(rate float64) string {
	abs := math.Abs(rate)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return decimal.NewFromFloat(rate).String()
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(rate, 'e', -1, 64), "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
