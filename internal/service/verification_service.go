package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/gateway"
	"github.com/spec-kit/premium-verification/internal/observability"
	"github.com/spec-kit/premium-verification/internal/repository"
)

// VerificationService decides whether a confirmation artifact becomes a
// durable Payment. Policy rejections are returned as outcomes, not errors.
type VerificationService struct {
	users      repository.UserRepository
	payments   repository.PaymentRepository
	gateway    gateway.Gateway
	policy     gateway.StatusPolicy
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// VerificationDependencies bundles collaborators for the verifier.
type VerificationDependencies struct {
	UserRepo    repository.UserRepository
	PaymentRepo repository.PaymentRepository
	Gateway     gateway.Gateway
	Policy      gateway.StatusPolicy
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

func NewVerificationService(deps VerificationDependencies) *VerificationService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &VerificationService{
		users:      deps.UserRepo,
		payments:   deps.PaymentRepo,
		gateway:    deps.Gateway,
		policy:     deps.Policy,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Verify checks the submission against the user, the gateway and the
// payment store, and records the payment when every check passes. The
// insert is the commit point; unique constraints close the race between
// the duplicate lookups and the insert.
func (s *VerificationService) Verify(ctx context.Context, sub domain.Submission) (domain.VerificationResult, error) {
	result, err := s.verify(ctx, sub)
	if err == nil {
		s.metrics.RecordVerification(string(result.Outcome))
	}
	return result, err
}

func (s *VerificationService) verify(ctx context.Context, sub domain.Submission) (domain.VerificationResult, error) {
	log := s.logger.With(zap.String("user_id", sub.UserID), zap.String("intent_ref", sub.IntentRef))

	user, err := s.users.GetByID(ctx, sub.UserID)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	if user.Entitled {
		return reject(domain.OutcomeAlreadyEntitled, ""), nil
	}

	confirmed, err := s.payments.ExistsConfirmedForUser(ctx, sub.UserID)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	if confirmed {
		return reject(domain.OutcomeAlreadyConfirmed, ""), nil
	}

	intent, err := s.gateway.ResolveIntent(ctx, sub.IntentRef)
	if err != nil {
		log.Warn("resolve intent failed", zap.Error(err))
		return reject(domain.OutcomeGatewayVerificationFailed, ""), nil
	}
	if !s.policy.Acceptable(intent.Status) {
		log.Info("intent not paid", zap.String("status", intent.Status))
		return reject(domain.OutcomeGatewayVerificationFailed, intent.OrderID), nil
	}
	if intent.OrderID == "" {
		return reject(domain.OutcomeOrderIDMissing, ""), nil
	}

	if _, err := s.payments.FindByOrderID(ctx, intent.OrderID); err == nil {
		return reject(domain.OutcomeDuplicateOrder, intent.OrderID), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.VerificationResult{}, err
	}
	if _, err := s.payments.FindByIntentRef(ctx, intent.Ref); err == nil {
		return reject(domain.OutcomeDuplicateIntent, intent.OrderID), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.VerificationResult{}, err
	}

	payment := &domain.Payment{
		UserID:               sub.UserID,
		TicketID:             sub.TicketID,
		PaymentIntentID:      intent.Ref,
		OrderID:              intent.OrderID,
		ConfirmationImageRef: sub.ArtifactRef,
		Confirmed:            true,
	}
	switch err := s.payments.Insert(ctx, payment); {
	case errors.Is(err, repository.ErrDuplicateOrder):
		log.Info("order id claimed concurrently", zap.String("order_id", intent.OrderID))
		return reject(domain.OutcomeDuplicateOrder, intent.OrderID), nil
	case errors.Is(err, repository.ErrDuplicateIntent):
		return reject(domain.OutcomeDuplicateIntent, intent.OrderID), nil
	case err != nil:
		return domain.VerificationResult{}, err
	}

	log.Info("payment confirmed", zap.String("payment_id", payment.ID), zap.String("order_id", payment.OrderID))
	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventPaymentConfirmed,
			UserID:    payment.UserID,
			TicketID:  payment.TicketID,
			Timestamp: s.clock.Now(),
			Payload: events.PaymentConfirmedPayload{
				PaymentID: payment.ID,
				OrderID:   payment.OrderID,
				IntentRef: payment.PaymentIntentID,
			},
		}); err != nil {
			log.Warn("event handler failed", zap.Error(err))
		}
	}
	return domain.VerificationResult{Outcome: domain.OutcomeAccepted, Payment: payment, OrderID: payment.OrderID}, nil
}

func reject(outcome domain.VerificationOutcome, orderID string) domain.VerificationResult {
	return domain.VerificationResult{Outcome: outcome, OrderID: orderID}
}
