package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/transport"
)

// NotificationQueue accepts admin notifications for delivery.
type NotificationQueue interface {
	Enqueue(n transport.AdminNotification) error
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	queue      NotificationQueue
	clock      clock.Clock
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, queue NotificationQueue, clk clock.Clock, logger *zap.Logger) *NotificationService {
	if clk == nil {
		clk = clock.Real()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		queue:      queue,
		clock:      clk,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketOpened, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.logEvent)
	n.dispatcher.Subscribe(events.EventPaymentConfirmed, n.logEvent)
	n.dispatcher.Subscribe(events.EventEntitlementRenewed, n.logEvent)
	n.dispatcher.Subscribe(events.EventEntitlementGranted, n.handleEntitlementGranted)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("user_id", event.UserID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleEntitlementGranted(ctx context.Context, event events.Event) error {
	_ = n.logEvent(ctx, event)
	payload, ok := event.Payload.(events.EntitlementGrantedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	occurredAt := event.Timestamp
	if occurredAt.IsZero() {
		occurredAt = n.clock.Now()
	}
	return n.queue.Enqueue(transport.AdminNotification{
		UserExternalID: payload.UserExternalID,
		ChannelRef:     payload.ChannelRef,
		PaymentID:      payload.PaymentID,
		OrderID:        payload.OrderID,
		IntentRef:      payload.IntentRef,
		ArtifactRef:    payload.ArtifactRef,
		RoleGranted:    payload.RoleGranted,
		OccurredAt:     occurredAt,
	})
}
