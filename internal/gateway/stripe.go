package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

const orderIDMetadataKey = "order_id"

type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Stripe implements Gateway over the Stripe payment intents API.
type Stripe struct {
	intents intentAPI
	logger  *zap.Logger
}

func NewStripe(secretKey string, logger *zap.Logger) *Stripe {
	return &Stripe{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		logger:  logger,
	}
}

func (s *Stripe) CreateIntent(ctx context.Context, amountMinor int64, currency, orderID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(strings.ToLower(currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	params.AddMetadata(orderIDMetadataKey, orderID)

	pi, err := s.intents.New(params)
	if err != nil {
		s.logger.Warn("create payment intent failed", zap.String("order_id", orderID), zap.Error(err))
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func (s *Stripe) ResolveIntent(ctx context.Context, ref string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(ref, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return Intent{}, ErrIntentNotFound
		}
		return Intent{}, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) Intent {
	return Intent{
		Ref:      pi.ID,
		Status:   string(pi.Status),
		OrderID:  pi.Metadata[orderIDMetadataKey],
		Amount:   pi.Amount,
		Currency: strings.ToUpper(string(pi.Currency)),
	}
}
