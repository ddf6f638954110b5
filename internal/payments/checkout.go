// Package payments wraps the external payment gateway. Checkout completion
// is trusted from the success redirect alone; there is no receipt
// verification (a known product gap, kept as-is).
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
)

// Provider creates hosted checkout sessions for credit packages.
type Provider interface {
	// CreateSession returns the gateway session ID for a hosted checkout of
	// the given package. The client redirects to the gateway using that ID.
	CreateSession(ctx context.Context, pkg domain.CreditPackage, successURL, cancelURL string) (string, error)
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripe creates a Stripe-backed checkout provider.
func NewStripe(secretKey string) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}, nil
}

// CreateSession creates a one-time-payment checkout session for a credit
// package.
func (p *StripeProvider) CreateSession(ctx context.Context, pkg domain.CreditPackage, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d AI Companion Credits", pkg.Credits)),
					},
					UnitAmount: stripe.Int64(pkg.PriceUSD),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("package_id", pkg.ID)
	params.AddMetadata("credits", fmt.Sprintf("%d", pkg.Credits))

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, nil
}
