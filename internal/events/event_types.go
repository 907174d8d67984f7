package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened       EventType = "ticket_opened"
	EventTicketDeleted      EventType = "ticket_deleted"
	EventTicketClosed       EventType = "ticket_closed"
	EventPaymentConfirmed   EventType = "payment_confirmed"
	EventEntitlementGranted EventType = "entitlement_granted"
	EventEntitlementRenewed EventType = "entitlement_renewed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	UserExternalID string `json:"user_external_id"`
	ChannelRef     string `json:"channel_ref"`
}

// Reasons a ticket was deleted.
const (
	DeleteReasonRequested = "requested"
	DeleteReasonOrphaned  = "orphaned"
)

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	ChannelRef string `json:"channel_ref"`
	Reason     string `json:"reason"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ChannelRef string `json:"channel_ref"`
}

// PaymentConfirmedPayload payload.
type PaymentConfirmedPayload struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	IntentRef string `json:"payment_intent_id"`
}

// EntitlementGrantedPayload carries everything admins are told about a new
// premium user.
type EntitlementGrantedPayload struct {
	UserExternalID string     `json:"user_external_id"`
	ChannelRef     string     `json:"channel_ref,omitempty"`
	PaymentID      string     `json:"payment_id"`
	OrderID        string     `json:"order_id"`
	IntentRef      string     `json:"payment_intent_id"`
	ArtifactRef    string     `json:"artifact_ref"`
	RoleGranted    bool       `json:"role_granted"`
	EntitledUntil  *time.Time `json:"entitled_until,omitempty"`
}

// EntitlementRenewedPayload payload.
type EntitlementRenewedPayload struct {
	UserExternalID string     `json:"user_external_id"`
	Days           int        `json:"days"`
	EntitledUntil  *time.Time `json:"entitled_until,omitempty"`
}
