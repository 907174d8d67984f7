package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/premium-verification/internal/api/http"
	"github.com/spec-kit/premium-verification/internal/api/http/handlers"
	"github.com/spec-kit/premium-verification/internal/auth"
	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/config"
	"github.com/spec-kit/premium-verification/internal/conversation"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/gateway"
	"github.com/spec-kit/premium-verification/internal/lock"
	"github.com/spec-kit/premium-verification/internal/observability"
	"github.com/spec-kit/premium-verification/internal/persistence"
	"github.com/spec-kit/premium-verification/internal/repository"
	"github.com/spec-kit/premium-verification/internal/service"
	"github.com/spec-kit/premium-verification/internal/transport"
	"github.com/spec-kit/premium-verification/internal/worker"
)

type stores struct {
	users    repository.UserRepository
	tickets  repository.TicketRepository
	payments repository.PaymentRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	dependencies := map[string]handlers.Pinger{}
	var st stores
	if pg.Enabled() {
		pool := pg.PoolHandle()
		st = stores{
			users:    repository.NewUserRepository(pool),
			tickets:  repository.NewTicketRepository(pool),
			payments: repository.NewPaymentRepository(pool),
		}
		dependencies["postgres"] = pg
	} else {
		logger.Warn("using in-memory stores; state is lost on restart")
		mem := repository.NewMemoryStore()
		st = stores{users: mem.Users(), tickets: mem.Tickets(), payments: mem.Payments()}
	}

	var locker lock.Locker
	switch cfg.Lock.Backend {
	case "redis":
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		dependencies["redis"] = rdb
		locker = lock.NewRedis(rdb.Client, cfg.Lock.TTL, cfg.Lock.RetryInterval, logger)
	default:
		locker = lock.NewLocal()
	}

	if cfg.Gateway.StripeSecretKey == "" {
		if cfg.App.Env == "production" {
			logger.Fatal("STRIPE_SECRET_KEY is required in production")
		}
		logger.Warn("STRIPE_SECRET_KEY not set; gateway calls will fail")
	}

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.TokenTTLMinutes)
	mailbox := transport.NewMailbox(cfg.Relay.MailboxCapacity)
	relay := transport.NewRelay(cfg.Relay.BaseURL, cfg.Relay.RequestTimeout, tokens.RelayToken, mailbox, logger)
	payments := gateway.NewStripe(cfg.Gateway.StripeSecretKey, logger)

	notifier := worker.NewNotificationWorker(relay, logger, cfg.Notification.QueueCapacity, cfg.Notification.Attempts, cfg.Notification.Backoff)
	notifier.Start(ctx)
	service.NewNotificationService(dispatcher, notifier, clk, logger).RegisterHandlers()

	verifier := service.NewVerificationService(service.VerificationDependencies{
		UserRepo:    st.users,
		PaymentRepo: st.payments,
		Gateway:     payments,
		Policy:      gateway.NewStatusPolicy(cfg.Gateway.AcceptableStatuses),
		Dispatcher:  dispatcher,
		Clock:       clk,
		Logger:      logger,
		Metrics:     metrics,
	})
	entitlements := service.NewEntitlementService(service.EntitlementDependencies{
		UserRepo:    st.users,
		TicketRepo:  st.tickets,
		PaymentRepo: st.payments,
		Transport:   relay,
		Dispatcher:  dispatcher,
		Clock:       clk,
		Duration:    cfg.Entitlement.Duration(),
		Logger:      logger,
		Metrics:     metrics,
	})

	// The registry needs the engine, the engine needs the confirmer, and the
	// confirmer closes tickets through the ticket service, which starts
	// conversations through the registry.
	starter := &lateStarter{}
	tickets := service.NewTicketService(service.TicketDependencies{
		UserRepo:      st.users,
		TicketRepo:    st.tickets,
		Transport:     relay,
		Locker:        locker,
		Conversations: starter,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Logger:        logger,
	})
	confirmer := service.NewConfirmationService(verifier, entitlements, tickets, logger)
	engine := conversation.NewEngine(conversation.EngineDependencies{
		Transport: relay,
		Gateway:   payments,
		Confirmer: confirmer,
		Clock:     clk,
		Logger:    logger,
		Metrics:   metrics,
	}, conversation.Config{
		CurrencyTimeout:     cfg.Conversation.CurrencyTimeout,
		AmountTimeout:       cfg.Conversation.AmountTimeout,
		OrderIDTimeout:      cfg.Conversation.OrderIDTimeout,
		ArtifactTimeout:     cfg.Conversation.ArtifactTimeout,
		PresetAmounts:       cfg.Conversation.PresetAmounts,
		OrderIDMaxLength:    cfg.Conversation.OrderIDMaxLength,
		EntitlementDuration: cfg.Entitlement.Duration(),
	})
	registry := conversation.NewRegistry(engine, logger, metrics, nil)
	starter.Registry = registry

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Channels:       handlers.NewChannelsHandler(relay),
		Entitlements:   handlers.NewEntitlementsHandler(entitlements),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("conversations did not stop in time", zap.Error(err))
	}
	cancel()
	notifier.Wait()
}

// lateStarter forwards to a registry assigned after construction.
type lateStarter struct {
	*conversation.Registry
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
