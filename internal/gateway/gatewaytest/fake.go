// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/premium-verification/internal/gateway"
)

// Fake issues sequential intent refs (pi_1, pi_2, ...) and returns Status for
// every retrieved intent.
type Fake struct {
	mu      sync.Mutex
	next    int
	intents map[string]gateway.Intent

	// NextRef, when set, is used for the next created intent instead of a
	// sequential ref.
	NextRef    string
	Status     string
	CreateErr  error
	ResolveErr error
}

func New() *Fake {
	return &Fake{intents: make(map[string]gateway.Intent), Status: "succeeded"}
}

func (f *Fake) CreateIntent(_ context.Context, amountMinor int64, currency, orderID string) (gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return gateway.Intent{}, f.CreateErr
	}
	f.next++
	ref := fmt.Sprintf("pi_%d", f.next)
	if f.NextRef != "" {
		ref, f.NextRef = f.NextRef, ""
	}
	intent := gateway.Intent{
		Ref:      ref,
		Status:   "requires_payment_method",
		OrderID:  orderID,
		Amount:   amountMinor,
		Currency: currency,
	}
	f.intents[intent.Ref] = intent
	return intent, nil
}

func (f *Fake) ResolveIntent(_ context.Context, ref string) (gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResolveErr != nil {
		return gateway.Intent{}, f.ResolveErr
	}
	intent, ok := f.intents[ref]
	if !ok {
		return gateway.Intent{}, gateway.ErrIntentNotFound
	}
	intent.Status = f.Status
	return intent, nil
}

// Put registers an intent directly, bypassing CreateIntent.
func (f *Fake) Put(intent gateway.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[intent.Ref] = intent
}

// Created returns how many intents CreateIntent issued.
func (f *Fake) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}
