package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/amasampo/cart-service/internal/service"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CartCleaner empties carts once their orders are placed.
type CartCleaner interface {
	ClearAfterOrder(ctx context.Context, userID string, cartVersion int64, ordered []int64) (*service.Result, error)
}

// Poller consumes order events and clears the cart each order was built from.
type Poller struct {
	carts      CartCleaner
	reader     MessageReader
	log        *zap.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewPoller(carts CartCleaner, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    order.EventsTopic,
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, log)
}

func NewPollerWithReader(carts CartCleaner, reader MessageReader, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{carts: carts, reader: reader, log: log, backoff: 500 * time.Millisecond, maxBackoff: 30 * time.Second}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

// handleNext processes one message. A failed clear is retried on the same
// message until it succeeds or ctx is cancelled, since committing a later
// offset would skip it for good.
func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Warn("error reading message", zap.Error(err))
		}
		return
	}

	log := p.log.With(zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset))

	if rec, ok := p.decode(m, log); ok {
		if err := p.clear(ctx, rec, log); err != nil {
			log.Info("stopped before cart was cleared", zap.String("order_id", rec.ID), zap.Error(err))
			return
		}
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		log.Warn("failed to commit message", zap.Error(err))
	}
}

func (p *Poller) decode(m kafka.Message, log *zap.Logger) (order.Record, bool) {
	var rec order.Record
	if eventType(m) != order.EventOrderPlaced {
		return rec, false
	}
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		log.Warn("skipping malformed order event", zap.Error(err))
		return rec, false
	}
	if rec.UserID == "" {
		log.Warn("skipping order event without user_id", zap.String("order_id", rec.ID))
		return rec, false
	}
	return rec, true
}

// clear returns nil once the cart is cleared, or ctx.Err() when cancelled.
func (p *Poller) clear(ctx context.Context, rec order.Record, log *zap.Logger) error {
	ordered := make([]int64, len(rec.Items))
	for i, it := range rec.Items {
		ordered[i] = it.ProductID
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}

		_, err := p.carts.ClearAfterOrder(ctx, rec.UserID, rec.CartVersion, ordered)
		if err == nil {
			log.Info("cart cleared after order", zap.String("order_id", rec.ID), zap.String("user_id", rec.UserID))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("failed to clear cart, retrying",
			zap.String("user_id", rec.UserID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (p *Poller) delay(attempt int) time.Duration {
	d := p.backoff * time.Duration(attempt)
	if d > p.maxBackoff {
		return p.maxBackoff
	}
	return d
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == order.EventTypeHeader {
			return string(h.Value)
		}
	}
	return ""
}
