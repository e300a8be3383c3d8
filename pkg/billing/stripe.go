package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// PaymentState is the distilled billing status of a customer.
type PaymentState struct {
	Failed      bool
	FailureCode string
}

// PaymentProvider checks the payment status of an external billing customer.
type PaymentProvider interface {
	CustomerPaymentState(ctx context.Context, customerID string) (PaymentState, error)
}

// StripeProvider reads customer payment state from Stripe.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a provider around a Stripe secret key.
func NewStripeProvider(apiKey string) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api}
}

// CustomerPaymentState reports whether the customer's most recent payment
// attempt failed. A delinquent customer is always a failure; otherwise the
// latest payment intent decides.
func (p *StripeProvider) CustomerPaymentState(ctx context.Context, customerID string) (PaymentState, error) {
	cust, err := p.api.Customers.Get(customerID, &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return PaymentState{}, fmt.Errorf("fetching stripe customer %s: %w", customerID, err)
	}
	if cust.Delinquent {
		return PaymentState{Failed: true, FailureCode: "delinquent"}, nil
	}

	it := p.api.PaymentIntents.List(&stripe.PaymentIntentListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(1)},
		Customer:   stripe.String(customerID),
	})
	for it.Next() {
		pi := it.PaymentIntent()
		if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod && pi.LastPaymentError != nil {
			return PaymentState{Failed: true, FailureCode: string(pi.LastPaymentError.Code)}, nil
		}
		break
	}
	if err := it.Err(); err != nil {
		return PaymentState{}, fmt.Errorf("listing stripe payment intents for %s: %w", customerID, err)
	}
	return PaymentState{}, nil
}
