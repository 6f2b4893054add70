package events

import "context"

// Domain event names published after a successful commit.
const (
	MovementCreated       = "financial_movement.created"
	PaymentStatusUpdated  = "financial_movement.payment_status_updated"
	PurchaseCreated       = "purchase.created"
	PurchaseUpdated       = "purchase.updated"
	PurchaseDeleted       = "purchase.deleted"
	OrderSettled          = "order.settled"
	RecurrenceRunFinished = "recurrence.run_finished"
)

// Publisher fans domain events out to interested consumers. Publishing
// is best-effort: implementations log failures and never surface them
// to the caller.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ string, _ any) {}
