package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// ConfirmationService is what a conversation hands its artifact to: verify,
// grant, then close the ticket.
type ConfirmationService struct {
	verifier     *VerificationService
	entitlements *EntitlementService
	tickets      *TicketService
	logger       *zap.Logger
}

func NewConfirmationService(verifier *VerificationService, entitlements *EntitlementService, tickets *TicketService, logger *zap.Logger) *ConfirmationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationService{verifier: verifier, entitlements: entitlements, tickets: tickets, logger: logger}
}

// Confirm returns the verifier's result. An error alongside an accepted
// result means the payment is recorded but a later step failed.
func (s *ConfirmationService) Confirm(ctx context.Context, sub domain.Submission) (domain.VerificationResult, error) {
	result, err := s.verifier.Verify(ctx, sub)
	if err != nil || !result.Accepted() {
		return result, err
	}

	grantErr := s.entitlements.Grant(ctx, sub.UserID, result.Payment.ID)
	if err := s.tickets.CloseTicket(ctx, sub.TicketID); err != nil {
		s.logger.Warn("close ticket failed", zap.String("ticket_id", sub.TicketID), zap.Error(err))
	}
	return result, grantErr
}
