package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/observability"
	"github.com/spec-kit/premium-verification/internal/repository"
	"github.com/spec-kit/premium-verification/internal/transport"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// EntitlementService flips the premium flag and requests the platform role.
type EntitlementService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	payments   repository.PaymentRepository
	transport  transport.Transport
	dispatcher events.Dispatcher
	clock      clock.Clock
	duration   time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// EntitlementDependencies bundles collaborators for the grantor.
type EntitlementDependencies struct {
	UserRepo    repository.UserRepository
	TicketRepo  repository.TicketRepository
	PaymentRepo repository.PaymentRepository
	Transport   transport.Transport
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Duration    time.Duration
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

func NewEntitlementService(deps EntitlementDependencies) *EntitlementService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &EntitlementService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		payments:   deps.PaymentRepo,
		transport:  deps.Transport,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		duration:   deps.Duration,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Grant marks the user entitled and requests the premium role. The flag is
// committed before the role request, so a failed grant surfaces as a
// transport error while the entitlement stays in place. Granting an already
// entitled user is a no-op.
func (s *EntitlementService) Grant(ctx context.Context, userID, paymentID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	start := s.clock.Now()
	var end *time.Time
	if s.duration > 0 {
		e := start.Add(s.duration)
		end = &e
	}
	changed, err := s.users.MarkEntitled(ctx, user.ID, start, end)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.Info("user already entitled", zap.String("user_id", user.ID))
		return nil
	}

	var channelRef string
	if ticket, err := s.tickets.GetByID(ctx, payment.TicketID); err == nil {
		channelRef = ticket.ChannelRef
	}

	grantErr := s.transport.GrantRole(ctx, user.ExternalID)
	if grantErr != nil {
		s.metrics.RoleGrantFailed()
		s.logger.Error("role grant failed; entitlement kept",
			zap.String("user_id", user.ID), zap.String("payment_id", payment.ID), zap.Error(grantErr))
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventEntitlementGranted,
			UserID:    user.ID,
			TicketID:  payment.TicketID,
			Timestamp: start,
			Payload: events.EntitlementGrantedPayload{
				UserExternalID: user.ExternalID,
				ChannelRef:     channelRef,
				PaymentID:      payment.ID,
				OrderID:        payment.OrderID,
				IntentRef:      payment.PaymentIntentID,
				ArtifactRef:    payment.ConfirmationImageRef,
				RoleGranted:    grantErr == nil,
				EntitledUntil:  end,
			},
		}); err != nil {
			s.logger.Warn("event handler failed", zap.Error(err))
		}
	}

	if grantErr != nil {
		return apperrors.NewTransportError("grant_role", grantErr)
	}
	return nil
}

// MaxRenewDays caps a single renewal.
const MaxRenewDays = 3650

// Status reports the entitlement period of the user with the given
// platform id.
func (s *EntitlementService) Status(ctx context.Context, userExternalID string) (*domain.EntitlementStatus, error) {
	user, err := s.lookup(ctx, userExternalID)
	if err != nil {
		return nil, err
	}
	status := user.StatusAt(s.clock.Now())
	return &status, nil
}

// Renew extends a bounded entitlement by days, counting from the later of
// its current end and now. Unbounded entitlements are returned unchanged.
func (s *EntitlementService) Renew(ctx context.Context, userExternalID string, days int) (*domain.EntitlementStatus, error) {
	if days <= 0 || days > MaxRenewDays {
		return nil, apperrors.NewValidationError("days must be between 1 and 3650", map[string]any{"days": days})
	}
	user, err := s.lookup(ctx, userExternalID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	renewed, err := s.users.ExtendEntitlement(ctx, user.ID, now, days)
	switch {
	case errors.Is(err, repository.ErrNotEntitled):
		return nil, apperrors.NewConflict("no active entitlement to renew", map[string]any{"user_id": userExternalID})
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userExternalID})
	case err != nil:
		return nil, err
	}

	s.logger.Info("entitlement renewed",
		zap.String("user_id", renewed.ID), zap.Int("days", days), zap.Timep("entitled_until", renewed.EntitlementEnd))
	if s.dispatcher != nil {
		if err := s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventEntitlementRenewed,
			UserID:    renewed.ID,
			Timestamp: now,
			Payload: events.EntitlementRenewedPayload{
				UserExternalID: renewed.ExternalID,
				Days:           days,
				EntitledUntil:  renewed.EntitlementEnd,
			},
		}); err != nil {
			s.logger.Warn("event handler failed", zap.Error(err))
		}
	}

	status := renewed.StatusAt(now)
	return &status, nil
}

func (s *EntitlementService) lookup(ctx context.Context, userExternalID string) (*domain.User, error) {
	if userExternalID == "" {
		return nil, apperrors.NewValidationError("user id is required", nil)
	}
	user, err := s.users.GetByExternalID(ctx, userExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userExternalID})
	}
	return user, err
}
