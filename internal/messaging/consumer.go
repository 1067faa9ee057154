package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"navdir/internal/domain"
)

// EventConsumer relays config events from the exchange to a local sink,
// normally the websocket hub of this instance.
type EventConsumer struct {
	rmq  *RabbitMQ
	sink domain.EventPublisher
}

func NewEventConsumer(rmq *RabbitMQ, sink domain.EventPublisher) *EventConsumer {
	return &EventConsumer{rmq: rmq, sink: sink}
}

// Start binds a private queue to the exchange and relays deliveries until
// ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare event queue: %w", err)
	}

	if err := c.rmq.channel.QueueBind(queue.Name, "", ConfigEventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind event queue: %w", err)
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register event consumer: %w", err)
	}

	slog.Info("started consuming config events",
		slog.String("queue", queue.Name),
		slog.String("exchange", ConfigEventsExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping config event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("config event consumer channel closed")
					return
				}
				c.handle(ctx, msg.Body)
			}
		}
	}()

	return nil
}

func (c *EventConsumer) handle(ctx context.Context, body []byte) {
	var event domain.ConfigEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ETag == "" {
		slog.Error("discarding malformed config event", slog.Int("body_size", len(body)))
		return
	}

	if err := c.sink.PublishConfigEvent(ctx, &event); err != nil {
		slog.Warn("failed to relay config event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()))
	}
}
