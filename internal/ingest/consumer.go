package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenthands/argus/internal/core"
	"github.com/agenthands/argus/internal/core/model"
	"github.com/agenthands/argus/internal/logger"
	"github.com/agenthands/argus/internal/metrics"
	"github.com/rabbitmq/amqp091-go"
)

const consumerTag = "argus-ingest"

// Sink applies a decoded batch. *core.Engine satisfies it.
type Sink interface {
	Apply(ctx context.Context, batch model.ExtractionBatch) (core.ApplyResult, error)
}

// Consumer reads ExtractionBatch messages from one durable queue. Messages are acked only
// after the batch is applied. Malformed or invalid batches are rejected without requeue so
// a dead-letter policy on the queue can pick them up; other failures are requeued once.
type Consumer struct {
	conn     *amqp091.Connection
	queue    string
	prefetch int
	sink     Sink
	notify   func()
}

// NewConsumer dials the broker. notify, if set, runs after every applied batch; the server
// passes the structure scheduler's Trigger.
func NewConsumer(url, queue string, prefetch int, sink Sink, notify func()) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{conn: conn, queue: queue, prefetch: prefetch, sink: sink, notify: notify}, nil
}

// Run consumes until ctx is cancelled or the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	if _, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", c.queue, err)
	}

	msgs, err := ch.Consume(c.queue, consumerTag, false /*autoAck*/, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue '%s': %w", c.queue, err)
	}
	logger.Info("ingest consumer started", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	batch, err := Decode(msg.Body)
	if err == nil {
		var res core.ApplyResult
		res, err = c.sink.Apply(ctx, batch)
		if err == nil {
			if ackErr := msg.Ack(false); ackErr != nil {
				logger.Error("ack failed", "tag", msg.DeliveryTag, "err", ackErr)
			}
			metrics.IngestBatchesTotal.WithLabelValues("amqp", "applied").Inc()
			logger.Debug("batch consumed", "tag", msg.DeliveryTag, "entities", res.Entities, "relationships", res.Relationships)
			if c.notify != nil {
				c.notify()
			}
			return
		}
	}

	var requeue bool
	switch {
	case errors.Is(err, model.ErrValidation):
	case ctx.Err() != nil:
		// shutting down; let another consumer have it
		requeue = true
	default:
		requeue = !msg.Redelivered
	}
	result := "rejected"
	if requeue {
		result = "requeued"
	}
	metrics.IngestBatchesTotal.WithLabelValues("amqp", result).Inc()
	logger.Warn("batch not applied", "tag", msg.DeliveryTag, "requeue", requeue, "err", err)
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		logger.Error("nack failed", "tag", msg.DeliveryTag, "err", nackErr)
	}
}
