// README: Stripe-backed payment processor (PaymentIntents + Transfers).
package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProcessor implements Processor over the Stripe API.
type StripeProcessor struct {
	api *client.API
}

func NewStripeProcessor(apiKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProcessor{api: api}
}

func (p *StripeProcessor) AuthorizeAndCapture(ctx context.Context, customerRef string, amountCents int64, methodRef string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(customerRef),
		PaymentMethod: stripe.String(methodRef),
		Confirm:       stripe.Bool(true),
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, Status: fromStripeStatus(pi.Status)}, nil
}

func (p *StripeProcessor) Confirm(ctx context.Context, intentID string) (Status, error) {
	pi, err := p.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return StatusFailed, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return fromStripeStatus(pi.Status), nil
}

func (p *StripeProcessor) Cancel(ctx context.Context, intentID string) error {
	pi, err := p.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return fmt.Errorf("retrieve payment intent: %w", err)
	}
	// Captured intents cannot be voided, only refunded.
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		_, err = p.api.Refunds.New(&stripe.RefundParams{
			Params:        stripe.Params{Context: ctx},
			PaymentIntent: stripe.String(intentID),
		})
		if err != nil {
			return fmt.Errorf("refund payment intent: %w", err)
		}
		return nil
	}
	_, err = p.api.PaymentIntents.Cancel(intentID, &stripe.PaymentIntentCancelParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

func (p *StripeProcessor) Payout(ctx context.Context, amountCents int64, payeeRef string) (string, error) {
	tr, err := p.api.Transfers.New(&stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Destination: stripe.String(payeeRef),
	})
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return tr.ID, nil
}

func fromStripeStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusRequiresConfirmation:
		return StatusPending
	default:
		return StatusFailed
	}
}

var _ Processor = (*StripeProcessor)(nil)
