package services

import (
	"context"
	"log/slog"

	"duit/internal/amqp"
)

// EventPublisher is satisfied by *amqp.Client. A nil publisher disables
// events entirely; a failing publish is logged and never fails the
// operation that triggered it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *amqp.EventMessage) error
}

func publishEvent(ctx context.Context, events EventPublisher, msg *amqp.EventMessage) {
	if events == nil {
		return
	}
	if err := events.PublishEvent(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish event",
			"type", msg.Type,
			"family_id", msg.FamilyID,
			"error", err)
	}
}
