// README: Payment processor contract consumed by the order lifecycle.
package payment

import "context"

// Status of a payment intent as reported by the processor.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Intent is the processor-side record of a charge.
type Intent struct {
	ID     string
	Status Status
}

// Processor is the remote payment provider. Calls are fallible, bounded-latency
// remote calls; no retries happen at this layer.
type Processor interface {
	// AuthorizeAndCapture charges amountCents against the customer's stored
	// payment method and returns the intent.
	AuthorizeAndCapture(ctx context.Context, customerRef string, amountCents int64, methodRef string) (Intent, error)
	// Confirm re-reads the intent and reports its settled status.
	Confirm(ctx context.Context, intentID string) (Status, error)
	// Cancel voids an uncaptured intent or refunds a captured one.
	Cancel(ctx context.Context, intentID string) error
	// Payout transfers amountCents to the payee's connected account and
	// returns the transfer id.
	Payout(ctx context.Context, amountCents int64, payeeRef string) (string, error)
}
