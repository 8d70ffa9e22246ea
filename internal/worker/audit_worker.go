// Package worker consumes directory and ledger events and appends them
// to the audit trail collection.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"duit/internal/amqp"
	"duit/internal/docstore"
)

// AuditWorker turns event messages into immutable audit documents. The
// trail is append-only; nothing in the application updates or deletes
// audit entries.
type AuditWorker struct {
	store docstore.Store
	now   func() time.Time
}

func NewAuditWorker(store docstore.Store) *AuditWorker {
	return &AuditWorker{store: store, now: time.Now}
}

// HandleEvent records a single event. Returning an error requeues the
// message, so only backend failures are errors; malformed events are
// logged and dropped.
func (w *AuditWorker) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	if msg.Type == "" {
		slog.WarnContext(ctx, "Dropping event without type")
		return nil
	}

	slog.InfoContext(ctx, "Processing event",
		"type", msg.Type,
		"family_id", msg.FamilyID)

	entry := docstore.Document{
		"type":       msg.Type,
		"familyId":   msg.FamilyID,
		"actorUid":   msg.ActorUID,
		"recordedAt": w.now().Format(time.RFC3339Nano),
	}
	if !msg.Timestamp.IsZero() {
		entry["occurredAt"] = msg.Timestamp.Format(time.RFC3339Nano)
	}
	if msg.MemberUID != "" {
		entry["memberUid"] = msg.MemberUID
	}
	if msg.Email != "" {
		entry["email"] = msg.Email
	}
	if msg.Role != "" {
		entry["role"] = msg.Role
	}
	if msg.SourceID != "" {
		entry["sourceId"] = msg.SourceID
	}
	if msg.DestID != "" {
		entry["destId"] = msg.DestID
	}
	if msg.Amount != 0 {
		entry["amount"] = msg.Amount
	}

	id := w.store.NewID()
	if err := w.store.Set(ctx, docstore.Audit, id, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	slog.InfoContext(ctx, "Audit entry recorded",
		"audit_id", id,
		"type", msg.Type,
		"family_id", msg.FamilyID)
	return nil
}

// Trail returns the audit entries for a family, unordered.
func (w *AuditWorker) Trail(ctx context.Context, familyID string) ([]docstore.Document, error) {
	return w.store.QueryByField(ctx, docstore.Audit, "familyId", familyID)
}
