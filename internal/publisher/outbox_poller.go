package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "storefront-orders"
	batchSize    = 100
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Observer is told how each outbox event was handled.
type Observer interface {
	ObserveOutbox(eventType, result string)
}

type nopObserver struct{}

func (nopObserver) ObserveOutbox(string, string) {}

// OutboxPoller relays committed outbox events to Kafka and marks them
// processed. Delivery is at least once: an event whose mark fails is sent
// again on the next tick.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	repo      repository.OutboxRepository
	writer    messageWriter
	observer  Observer
	log       *slog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, observer Observer, topic string, brokers ...string) *OutboxPoller {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return newOutboxPoller(repo, w, observer)
}

func newOutboxPoller(repo repository.OutboxRepository, w messageWriter, observer Observer) *OutboxPoller {
	if observer == nil {
		observer = nopObserver{}
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		repo:      repo,
		writer:    w,
		observer:  observer,
		log:       slog.Default().With("component", "outbox_poller"),
	}
}

// Run polls until ctx is cancelled, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("failed to close kafka writer", "error", err)
		}
	}()

	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Error("failed to publish outbox event", "event_id", event.ID, "event_type", event.EventType, "error", err)
			p.observer.ObserveOutbox(event.EventType, "failed")
			// keep per-aggregate ordering: later events wait for the next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			p.observer.ObserveOutbox(event.EventType, "unmarked")
			continue
		}
		p.observer.ObserveOutbox(event.EventType, "published")
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order number keeps an order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(wctx, msg)
}
