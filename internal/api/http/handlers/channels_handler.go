package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/premium-verification/internal/api/dto"
	"github.com/spec-kit/premium-verification/internal/transport"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// MessageSink accepts inbound channel messages.
type MessageSink interface {
	Deliver(channelRef string, msg transport.Message) error
}

// ChannelsHandler receives messages the relay forwards from ticket channels.
type ChannelsHandler struct {
	sink MessageSink
}

func NewChannelsHandler(sink MessageSink) *ChannelsHandler {
	return &ChannelsHandler{sink: sink}
}

// DeliverMessage POST /v1/channels/:channelRef/messages.
func (h *ChannelsHandler) DeliverMessage(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AuthorID == "" {
		return apperrors.NewValidationError("author_id required", nil)
	}

	msg := transport.Message{
		ID:         req.ID,
		AuthorID:   req.AuthorID,
		Content:    req.Content,
		ReceivedAt: time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = *req.ReceivedAt
	}
	for _, att := range req.Attachments {
		msg.Attachments = append(msg.Attachments, transport.Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	channelRef := c.Params("channelRef")
	if err := h.sink.Deliver(channelRef, msg); err != nil {
		if errors.Is(err, transport.ErrMailboxFull) {
			return apperrors.NewMailboxFull(channelRef)
		}
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"message_id": msg.ID}})
}
