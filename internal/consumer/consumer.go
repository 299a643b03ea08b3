package consumer

import (
	"context"
	"errors"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/metrics"
	"github.com/sergeJAVA/contractor-service/pkg/outbox/idempotency"
)

const (
	defaultPrefetch     = 10
	resubscribeInitial  = time.Second
	resubscribeMaxDelay = 30 * time.Second
	forgetTimeout       = 5 * time.Second
)

// Handler applies one contractor change. Returning an error rejects the
// delivery so the broker parks it and retries after the retry TTL.
type Handler interface {
	Handle(ctx context.Context, contractor *models.Contractor) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, contractor *models.Contractor) error

func (f HandlerFunc) Handle(ctx context.Context, contractor *models.Contractor) error {
	return f(ctx, contractor)
}

type deliverySource interface {
	Consume(ctx context.Context, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

type deduplicator interface {
	Begin(ctx context.Context, consumer, messageID string) (idempotency.State, error)
	MarkProcessed(ctx context.Context, consumer, messageID string) error
	Delete(ctx context.Context, consumer, messageID string) error
}

type payloadDecoder interface {
	Decode(payload []byte) (*models.Contractor, error)
}

type Params struct {
	Config      config.ConsumerConfig
	Queue       string
	Source      deliverySource
	Idempotency deduplicator
	Decoder     payloadDecoder
	Handler     Handler
	Logger      *logger.Logger
	Metrics     *metrics.ConsumerMetrics
}

// Consumer reads contractor change notifications from the primary queue.
// Deliveries are deduplicated by AMQP message id since the relay delivers
// at least once.
type Consumer struct {
	name            string
	queue           string
	prefetch        int
	maxRedeliveries int
	source          deliverySource
	idempotency     deduplicator
	decoder         payloadDecoder
	handler         Handler
	logg            *logger.Logger
	metrics         *metrics.ConsumerMetrics
}

type outcome struct {
	ack    bool
	label  string
	reason string
}

func New(params Params) (*Consumer, error) {
	if params.Source == nil {
		return nil, errors.New("delivery source is required")
	}
	if params.Decoder == nil {
		return nil, errors.New("payload decoder is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	name := strings.TrimSpace(params.Config.Name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	prefetch := params.Config.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	return &Consumer{
		name:            name,
		queue:           params.Queue,
		prefetch:        prefetch,
		maxRedeliveries: params.Config.MaxRedeliveries,
		source:          params.Source,
		idempotency:     params.Idempotency,
		decoder:         params.Decoder,
		handler:         params.Handler,
		logg:            params.Logger,
		metrics:         params.Metrics,
	}, nil
}

// Run consumes until ctx is canceled, subscribing again whenever the
// delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	delay := resubscribeInitial
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.source.Consume(ctx, c.name, c.prefetch)
		if err != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"error":    err.Error(),
				"retry_in": delay.String(),
			}), "consumer subscribe failed")
			if err := wait(ctx, delay); err != nil {
				return err
			}
			delay = min(delay*2, resubscribeMaxDelay)
			continue
		}
		delay = resubscribeInitial
		c.logg.Info(c.logg.WithField(ctx, "queue", c.queue), "consumer subscribed")

		if err := c.drain(ctx, deliveries); err != nil {
			return err
		}
		c.logg.Warn(ctx, "delivery channel closed, resubscribing")
		if err := wait(ctx, resubscribeInitial); err != nil {
			return err
		}
	}
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.Process(ctx, d)
		}
	}
}

// Process settles a single delivery.
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id":   d.MessageId,
		"delivery_tag": d.DeliveryTag,
		"redelivered":  d.Redelivered,
	})

	result := c.process(logCtx, d)
	c.metrics.Inc(result.label)

	if result.ack {
		if err := d.Ack(false); err != nil {
			c.logg.Error(logCtx, "ack failed", err)
		}
		return
	}
	c.logg.Warn(c.logg.WithField(logCtx, "reason", result.reason), "delivery rejected")
	if err := d.Nack(false, false); err != nil {
		c.logg.Error(logCtx, "nack failed", err)
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) outcome {
	messageID := strings.TrimSpace(d.MessageId)
	if messageID == "" {
		c.logg.Warn(ctx, "delivery without message id, dropping")
		return outcome{ack: true, label: metrics.ConsumerPoison}
	}

	if c.maxRedeliveries > 0 {
		if deaths := RejectionCount(d.Headers, c.queue); deaths >= int64(c.maxRedeliveries) {
			c.logg.Warn(c.logg.WithField(ctx, "rejections", deaths), "redelivery limit reached, dropping")
			return outcome{ack: true, label: metrics.ConsumerDropped}
		}
	}

	contractor, err := c.decoder.Decode(d.Body)
	if err != nil {
		c.logg.Error(ctx, "undecodable contractor payload, dropping", err)
		return outcome{ack: true, label: metrics.ConsumerPoison}
	}
	ctx = c.logg.WithField(ctx, "contractor_id", contractor.ID)

	if c.idempotency != nil {
		state, err := c.idempotency.Begin(ctx, c.name, messageID)
		if err != nil {
			c.logg.Error(ctx, "idempotency check failed", err)
			return outcome{label: metrics.ConsumerRejected, reason: "idempotency"}
		}
		switch state {
		case idempotency.StateProcessed:
			c.logg.Info(ctx, "message already processed")
			return outcome{ack: true, label: metrics.ConsumerDuplicate}
		case idempotency.StateInProgress:
			// parked for the retry TTL, by then the lease of a crashed attempt is gone
			c.logg.Info(ctx, "message is being processed elsewhere")
			return outcome{label: metrics.ConsumerRejected, reason: "in_progress"}
		}
	}

	if err := c.handler.Handle(ctx, contractor); err != nil {
		c.logg.Error(ctx, "contractor change handling failed", err)
		c.forget(ctx, messageID)
		return outcome{label: metrics.ConsumerRejected, reason: "handler"}
	}

	if c.idempotency != nil {
		if err := c.idempotency.MarkProcessed(ctx, c.name, messageID); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "processed marker not stored, a redelivery will be handled again")
		}
	}
	c.logg.Info(ctx, "contractor change handled")
	return outcome{ack: true, label: metrics.ConsumerHandled}
}

func (c *Consumer) forget(ctx context.Context, messageID string) {
	if c.idempotency == nil {
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	if err := c.idempotency.Delete(delCtx, c.name, messageID); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "processed marker not cleared")
	}
}

// RejectionCount returns how many times the broker dead-lettered the message
// out of queue after a rejection, read from the x-death header.
func RejectionCount(headers amqp.Table, queue string) int64 {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}
	entries, ok := raw.([]any)
	if !ok {
		return 0
	}
	var total int64
	for _, entry := range entries {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if reason, _ := table["reason"].(string); reason != "rejected" {
			continue
		}
		if q, _ := table["queue"].(string); queue != "" && q != queue {
			continue
		}
		switch n := table["count"].(type) {
		case int64:
			total += n
		case int32:
			total += int64(n)
		case int:
			total += int64(n)
		}
	}
	return total
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
