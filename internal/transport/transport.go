// Package transport is the boundary to the chat platform: private channels,
// prompts, inbound messages, role grants and admin notifications.
package transport

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var (
	// ErrChannelNotFound is returned for channels the platform no longer has.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrMailboxFull is returned when a channel has too many undelivered messages.
	ErrMailboxFull = errors.New("channel mailbox full")
)

// Transport is implemented by the chat-platform relay.
type Transport interface {
	CreateChannel(ctx context.Context, userExternalID string) (channelRef string, err error)
	DeleteChannel(ctx context.Context, channelRef string) error
	// ChannelExists reports whether the channel is still reachable.
	ChannelExists(ctx context.Context, channelRef string) (bool, error)
	SendPrompt(ctx context.Context, channelRef string, prompt Prompt) error
	// AwaitNextMessage blocks until a message accepted by predicate arrives
	// on the channel or ctx ends. Messages are consumed in arrival order;
	// rejected ones are dropped.
	AwaitNextMessage(ctx context.Context, channelRef string, predicate func(Message) bool) (Message, error)
	// DiscardPending drops messages that arrived while nobody was waiting.
	DiscardPending(ctx context.Context, channelRef string) error
	GrantRole(ctx context.Context, userExternalID string) error
	NotifyAdmins(ctx context.Context, notification AdminNotification) error
}

// Prompt is a bot message, optionally with selectable options (buttons).
type Prompt struct {
	Content string   `json:"content"`
	Options []string `json:"options,omitempty"`
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// IsImage reports whether the attachment is an image by content type or
// file extension.
func (a Attachment) IsImage() bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	ext := strings.ToLower(path.Ext(a.Filename))
	for _, candidate := range imageExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Message is an inbound user message or button selection.
type Message struct {
	ID          string       `json:"id"`
	ChannelRef  string       `json:"channel_ref"`
	AuthorID    string       `json:"author_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// FirstImage returns the first image attachment, if any.
func (m Message) FirstImage() (Attachment, bool) {
	for _, att := range m.Attachments {
		if att.IsImage() {
			return att, true
		}
	}
	return Attachment{}, false
}

// AdminNotification announces a granted entitlement to the admins.
type AdminNotification struct {
	UserExternalID string    `json:"user_id"`
	ChannelRef     string    `json:"channel_ref,omitempty"`
	PaymentID      string    `json:"payment_id"`
	OrderID        string    `json:"order_id"`
	IntentRef      string    `json:"payment_intent_id"`
	ArtifactRef    string    `json:"artifact_ref,omitempty"`
	RoleGranted    bool      `json:"role_granted"`
	OccurredAt     time.Time `json:"occurred_at"`
}
