package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/premium-verification/internal/api/dto"
	"github.com/spec-kit/premium-verification/internal/service"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle to the relay.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// RequestTicket POST /v1/tickets.
func (h *TicketsHandler) RequestTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}

	res, err := h.service.RequestTicket(c.UserContext(), userID)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.AlreadyOpen {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.TicketResponse{
		TicketID:    res.Ticket.ID,
		ChannelRef:  res.ChannelRef,
		Status:      res.Ticket.Status(),
		AlreadyOpen: res.AlreadyOpen,
		CreatedAt:   res.Ticket.CreatedAt,
	}})
}

// DeleteTicket DELETE /v1/tickets/:userID.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.DeleteTicket(c.UserContext(), c.Params("userID")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RestartConversation POST /v1/tickets/:userID/restart.
func (h *TicketsHandler) RestartConversation(c *fiber.Ctx) error {
	var req dto.RestartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelRef == "" {
		return apperrors.NewValidationError("channel_ref required", nil)
	}
	if err := h.service.RestartConversation(c.UserContext(), c.Params("userID"), req.ChannelRef); err != nil {
		return err
	}
	return c.SendStatus(http.StatusAccepted)
}
