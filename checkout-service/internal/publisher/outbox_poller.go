package publisher

import (
	"context"
	"time"

	r "github.com/fjod/amasampo/checkout-service/internal/repository"
	"github.com/fjod/amasampo/pkg/order"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	batchSize = 100
	// processed events are kept this long for debugging, then purged
	retention = 7 * 24 * time.Hour
)

// Writer is the part of *kafka.Writer the poller needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	purgeTick time.Duration
	repo      r.RepoInterface
	writer    Writer
	log       *zap.Logger
	now       func() time.Time
}

func NewOutboxPoller(repo r.RepoInterface, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  order.EventsTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPollerWithWriter(repo, w, log)
}

func NewOutboxPollerWithWriter(repo r.RepoInterface, w Writer, log *zap.Logger) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		purgeTick: time.Hour,
		repo:      repo,
		writer:    w,
		log:       log,
		now:       time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents publishes pending events in creation order. An
// event is marked only after Kafka acknowledged it, so a crash in between
// publishes it twice; consumers are idempotent on the order id.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Error("failed to publish event",
				zap.String("event_id", event.ID),
				zap.String("order_id", event.AggregateID),
				zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as processed",
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	n, err := p.repo.DeleteProcessedEvents(ctx, p.now().Add(-retention))
	if err != nil {
		p.log.Error("failed to purge processed events", zap.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("purged processed outbox events", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order's events in one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: order.EventTypeHeader, Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
