package dto

import (
	"time"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	UserID string `json:"user_id"`
}

// RestartConversationRequest payload.
type RestartConversationRequest struct {
	ChannelRef string `json:"channel_ref"`
}

// TicketResponse is returned by ticket requests.
type TicketResponse struct {
	TicketID    string              `json:"ticket_id"`
	ChannelRef  string              `json:"channel_ref"`
	Status      domain.TicketStatus `json:"status"`
	AlreadyOpen bool                `json:"already_open"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AttachmentPayload describes a file on an inbound message.
type AttachmentPayload struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// InboundMessageRequest is a user message or button press forwarded by the
// relay.
type InboundMessageRequest struct {
	ID          string              `json:"id"`
	AuthorID    string              `json:"author_id"`
	Content     string              `json:"content"`
	Attachments []AttachmentPayload `json:"attachments"`
	ReceivedAt  *time.Time          `json:"received_at"`
}
