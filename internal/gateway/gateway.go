// Package gateway verifies payment intents against the payment processor.
package gateway

import (
	"context"
	"errors"
)

var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the gateway view of a payment intent.
type Intent struct {
	Ref      string
	Status   string
	OrderID  string
	Amount   int64
	Currency string
}

// Gateway creates and retrieves payment intents.
type Gateway interface {
	// CreateIntent requests a charge of amountMinor (cents) tagged with orderID.
	CreateIntent(ctx context.Context, amountMinor int64, currency, orderID string) (Intent, error)
	// ResolveIntent returns the current state of ref, or ErrIntentNotFound.
	ResolveIntent(ctx context.Context, ref string) (Intent, error)
}

// StatusPolicy decides which intent statuses count as a completed payment.
type StatusPolicy struct {
	acceptable map[string]struct{}
}

func NewStatusPolicy(statuses []string) StatusPolicy {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return StatusPolicy{acceptable: set}
}

// Acceptable reports whether status is in the policy. An empty policy accepts
// every status.
func (p StatusPolicy) Acceptable(status string) bool {
	if len(p.acceptable) == 0 {
		return true
	}
	_, ok := p.acceptable[status]
	return ok
}
