package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/premium-verification/internal/api/dto"
	"github.com/spec-kit/premium-verification/internal/domain"
	"github.com/spec-kit/premium-verification/internal/service"
	apperrors "github.com/spec-kit/premium-verification/pkg/util/errorutil"
)

// EntitlementsHandler lets the relay check and extend premium periods.
type EntitlementsHandler struct {
	service *service.EntitlementService
}

// NewEntitlementsHandler constructs handler.
func NewEntitlementsHandler(entitlementService *service.EntitlementService) *EntitlementsHandler {
	return &EntitlementsHandler{service: entitlementService}
}

// Status GET /v1/entitlements/:userID.
func (h *EntitlementsHandler) Status(c *fiber.Ctx) error {
	status, err := h.service.Status(c.UserContext(), c.Params("userID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toEntitlementResponse(status)})
}

// Renew POST /v1/entitlements/:userID/renew.
func (h *EntitlementsHandler) Renew(c *fiber.Ctx) error {
	var req dto.RenewEntitlementRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := h.service.Renew(c.UserContext(), c.Params("userID"), req.Days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toEntitlementResponse(status)})
}

func toEntitlementResponse(s *domain.EntitlementStatus) dto.EntitlementResponse {
	return dto.EntitlementResponse{
		UserID:        s.UserExternalID,
		Active:        s.Active,
		Start:         s.Start,
		End:           s.End,
		RemainingDays: s.RemainingDays,
	}
}
