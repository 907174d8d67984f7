package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/conversation"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/lock"
	"github.com/spec-kit/premium-verification/internal/repository"
	"github.com/spec-kit/premium-verification/internal/transport"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// ConversationStarter runs at most one conversation per ticket.
type ConversationStarter interface {
	Start(ctx context.Context, s conversation.Session) error
	Stop(ctx context.Context, ticketID string) error
	Active(ticketID string) bool
}

// TicketService enforces one live ticket per user and drives the channel
// and conversation that belong to it.
type TicketService struct {
	users         repository.UserRepository
	tickets       repository.TicketRepository
	transport     transport.Transport
	locker        lock.Locker
	conversations ConversationStarter
	dispatcher    events.Dispatcher
	clock         clock.Clock
	logger        *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	UserRepo      repository.UserRepository
	TicketRepo    repository.TicketRepository
	Transport     transport.Transport
	Locker        lock.Locker
	Conversations ConversationStarter
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
}

// TicketResult is returned by RequestTicket.
type TicketResult struct {
	Ticket      *domain.Ticket
	ChannelRef  string
	AlreadyOpen bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		users:         deps.UserRepo,
		tickets:       deps.TicketRepo,
		transport:     deps.Transport,
		locker:        deps.Locker,
		conversations: deps.Conversations,
		dispatcher:    deps.Dispatcher,
		clock:         deps.Clock,
		logger:        deps.Logger,
	}
}

func ticketLockKey(userID string) string {
	return "ticket:" + userID
}

// RequestTicket returns the user's live ticket channel, creating the ticket,
// its channel and a fresh conversation when none is reachable. Repeated
// calls never create a second live ticket.
func (s *TicketService) RequestTicket(ctx context.Context, userExternalID string) (*TicketResult, error) {
	if userExternalID == "" {
		return nil, apperrors.NewValidationError("user id is required", nil)
	}
	user, err := s.users.GetOrCreateByExternalID(ctx, userExternalID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, ticketLockKey(user.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	live, err := s.tickets.FindLiveByUser(ctx, user.ID)
	switch {
	case err == nil:
		reachable, err := s.transport.ChannelExists(ctx, live.ChannelRef)
		if err != nil {
			return nil, apperrors.NewTransportError("channel_exists", err)
		}
		if reachable {
			if !s.conversations.Active(live.ID) {
				if err := s.conversations.Start(ctx, sessionFor(user, live)); err != nil {
					return nil, err
				}
			}
			return &TicketResult{Ticket: live, ChannelRef: live.ChannelRef, AlreadyOpen: true}, nil
		}
		s.logger.Info("retiring orphaned ticket", zap.String("ticket_id", live.ID), zap.String("channel_ref", live.ChannelRef))
		if err := s.retire(ctx, live, events.DeleteReasonOrphaned); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	channelRef, err := s.transport.CreateChannel(ctx, user.ExternalID)
	if err != nil {
		return nil, apperrors.NewTransportError("create_channel", err)
	}

	ticket := &domain.Ticket{UserID: user.ID, ChannelRef: channelRef}
	if err := s.tickets.InsertLive(ctx, ticket); err != nil {
		s.removeChannel(ctx, channelRef)
		if errors.Is(err, repository.ErrLiveTicketExists) {
			// Lost the race to another process whose lock lease we outlived.
			winner, findErr := s.tickets.FindLiveByUser(ctx, user.ID)
			if findErr != nil {
				return nil, findErr
			}
			return &TicketResult{Ticket: winner, ChannelRef: winner.ChannelRef, AlreadyOpen: true}, nil
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketOpened,
		UserID:   user.ID,
		TicketID: ticket.ID,
		Payload:  events.TicketOpenedPayload{UserExternalID: user.ExternalID, ChannelRef: channelRef},
	})

	if err := s.conversations.Start(ctx, sessionFor(user, ticket)); err != nil {
		return nil, err
	}
	return &TicketResult{Ticket: ticket, ChannelRef: channelRef}, nil
}

// DeleteTicket stops the user's conversation, removes the channel and
// soft-deletes the live ticket.
func (s *TicketService) DeleteTicket(ctx context.Context, userExternalID string) error {
	user, err := s.users.GetByExternalID(ctx, userExternalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"user_id": userExternalID})
		}
		return err
	}

	release, err := s.locker.Acquire(ctx, ticketLockKey(user.ID))
	if err != nil {
		return err
	}
	defer release()

	live, err := s.tickets.FindLiveByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"user_id": userExternalID})
		}
		return err
	}

	s.removeChannel(ctx, live.ChannelRef)
	return s.retire(ctx, live, events.DeleteReasonRequested)
}

// RestartConversation discards the current attempt in the user's live
// ticket and begins again at the currency step.
func (s *TicketService) RestartConversation(ctx context.Context, userExternalID, channelRef string) error {
	user, err := s.users.GetByExternalID(ctx, userExternalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"user_id": userExternalID})
		}
		return err
	}

	// Held across Start so a concurrent delete either retires the new
	// attempt or makes this call see no live ticket.
	release, err := s.locker.Acquire(ctx, ticketLockKey(user.ID))
	if err != nil {
		return err
	}
	defer release()

	live, err := s.tickets.FindLiveByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"user_id": userExternalID})
		}
		return err
	}
	if live.ChannelRef != channelRef {
		return apperrors.NewForbidden("channel does not belong to this user's ticket")
	}
	return s.conversations.Start(ctx, sessionFor(user, live))
}

// CloseTicket marks a ticket as completed. The channel is kept so the user
// can read the final messages.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Close(ctx, ticketID, s.clock.Now()); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		UserID:   ticket.UserID,
		TicketID: ticket.ID,
		Payload:  events.TicketClosedPayload{ChannelRef: ticket.ChannelRef},
	})
	return nil
}

func (s *TicketService) retire(ctx context.Context, ticket *domain.Ticket, reason string) error {
	if err := s.conversations.Stop(ctx, ticket.ID); err != nil {
		return err
	}
	if err := s.tickets.SoftDelete(ctx, ticket.ID, s.clock.Now()); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		UserID:   ticket.UserID,
		TicketID: ticket.ID,
		Payload:  events.TicketDeletedPayload{ChannelRef: ticket.ChannelRef, Reason: reason},
	})
	return nil
}

// removeChannel is best effort; a failure leaves an orphan channel behind
// but never blocks the ticket transition.
func (s *TicketService) removeChannel(ctx context.Context, channelRef string) {
	err := s.transport.DeleteChannel(ctx, channelRef)
	if err != nil && !errors.Is(err, transport.ErrChannelNotFound) {
		s.logger.Warn("delete channel failed", zap.String("channel_ref", channelRef), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.Timestamp = s.clock.Now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func sessionFor(user *domain.User, ticket *domain.Ticket) conversation.Session {
	return conversation.Session{
		TicketID:       ticket.ID,
		UserID:         user.ID,
		ExternalUserID: user.ExternalID,
		ChannelRef:     ticket.ChannelRef,
	}
}
