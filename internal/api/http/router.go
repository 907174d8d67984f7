package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/premium-verification/internal/api/http/handlers"
	"github.com/spec-kit/premium-verification/internal/auth"
	"github.com/spec-kit/premium-verification/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Channels       *handlers.ChannelsHandler
	Entitlements   *handlers.EntitlementsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	tickets := v1.Group("/tickets", auth.RequireScope(auth.ScopeTickets))
	tickets.Post("", cfg.Tickets.RequestTicket)
	tickets.Delete("/:userID", cfg.Tickets.DeleteTicket)
	tickets.Post("/:userID/restart", cfg.Tickets.RestartConversation)

	channels := v1.Group("/channels", auth.RequireScope(auth.ScopeMessages))
	channels.Post("/:channelRef/messages", cfg.Channels.DeliverMessage)

	entitlements := v1.Group("/entitlements", auth.RequireScope(auth.ScopeEntitlements))
	entitlements.Get("/:userID", cfg.Entitlements.Status)
	entitlements.Post("/:userID/renew", cfg.Entitlements.Renew)
}
