package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/amasampo/pkg/order"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderRecorder stores orders announced by checkout.
type OrderRecorder interface {
	RecordPlaced(ctx context.Context, rec order.Record) (bool, error)
}

type Consumer struct {
	orders     OrderRecorder
	reader     MessageReader
	log        *zap.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(orders OrderRecorder, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    order.EventsTopic,
		GroupID:  "orders-service",
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(orders, reader, log)
}

func NewConsumerWithReader(orders OrderRecorder, reader MessageReader, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{orders: orders, reader: reader, log: log, backoff: 500 * time.Millisecond, maxBackoff: 30 * time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

// processMessage stores one order. A message is committed once it is stored
// or found unusable. Storage failures are retried on the same message until
// they succeed or ctx is cancelled; the group reader does not rewind, so
// moving on would let a later commit skip the failed order.
func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("error reading message", zap.Error(err))
		}
		return
	}

	log := c.log.With(zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset))

	rec, ok := decode(m, log)
	if ok {
		if err := c.record(ctx, rec, log); err != nil {
			log.Info("stopped before order was stored", zap.String("order_id", rec.ID), zap.Error(err))
			return
		}
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Warn("failed to commit message", zap.Error(err))
	}
}

// record returns nil once the order is stored, or ctx.Err() when cancelled.
func (c *Consumer) record(ctx context.Context, rec order.Record, log *zap.Logger) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delay(attempt)):
			}
		}

		created, err := c.orders.RecordPlaced(ctx, rec)
		if err == nil {
			if created {
				log.Info("order stored", zap.String("order_id", rec.ID), zap.String("user_id", rec.UserID))
			} else {
				log.Info("order already stored, skipping", zap.String("order_id", rec.ID))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("failed to store order, retrying",
			zap.String("order_id", rec.ID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (c *Consumer) delay(attempt int) time.Duration {
	d := c.backoff * time.Duration(attempt)
	if d > c.maxBackoff {
		return c.maxBackoff
	}
	return d
}

func decode(m kafka.Message, log *zap.Logger) (order.Record, bool) {
	var rec order.Record
	if eventType(m) != order.EventOrderPlaced {
		return rec, false
	}
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		log.Warn("skipping malformed order event", zap.Error(err))
		return rec, false
	}
	if rec.ID == "" || rec.UserID == "" {
		log.Warn("skipping order event without id or user_id", zap.String("order_id", rec.ID))
		return rec, false
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		log.Warn("skipping order event with invalid id", zap.String("order_id", rec.ID))
		return rec, false
	}
	return rec, true
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == order.EventTypeHeader {
			return string(h.Value)
		}
	}
	return ""
}
