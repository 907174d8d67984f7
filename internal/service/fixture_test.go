package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/premium-verification/internal/clock"
	"github.com/spec-kit/premium-verification/internal/conversation"
	"github.com/spec-kit/premium-verification/internal/events"
	"github.com/spec-kit/premium-verification/internal/gateway"
	"github.com/spec-kit/premium-verification/internal/gateway/gatewaytest"
	"github.com/spec-kit/premium-verification/internal/lock"
	"github.com/spec-kit/premium-verification/internal/repository"
	"github.com/spec-kit/premium-verification/internal/transport"
	"github.com/spec-kit/premium-verification/internal/transport/transporttest"
)

type stubStarter struct {
	mu      sync.Mutex
	started []conversation.Session
	stopped []string
	active  map[string]bool
}

func newStubStarter() *stubStarter {
	return &stubStarter{active: make(map[string]bool)}
}

func (s *stubStarter) Start(_ context.Context, session conversation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, session)
	s.active[session.TicketID] = true
	return nil
}

func (s *stubStarter) Stop(_ context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, ticketID)
	delete(s.active, ticketID)
	return nil
}

func (s *stubStarter) Active(ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[ticketID]
}

func (s *stubStarter) finish(ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, ticketID)
}

func (s *stubStarter) starts() []conversation.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Session(nil), s.started...)
}

type recordingQueue struct {
	mu    sync.Mutex
	items []transport.AdminNotification
}

func (q *recordingQueue) Enqueue(n transport.AdminNotification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	return nil
}

func (q *recordingQueue) snapshot() []transport.AdminNotification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]transport.AdminNotification(nil), q.items...)
}

type fixture struct {
	store        *repository.MemoryStore
	transport    *transporttest.Fake
	gateway      *gatewaytest.Fake
	clock        *clock.FakeClock
	starter      *stubStarter
	locker       *lock.Local
	queue        *recordingQueue
	dispatcher   events.Dispatcher
	tickets      *TicketService
	verifier     *VerificationService
	entitlements *EntitlementService
	confirmer    *ConfirmationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      repository.NewMemoryStore(),
		transport:  transporttest.New(),
		gateway:    gatewaytest.New(),
		clock:      clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		starter:    newStubStarter(),
		locker:     lock.NewLocal(),
		queue:      &recordingQueue{},
		dispatcher: events.NewInMemoryDispatcher(),
	}
	NewNotificationService(f.dispatcher, f.queue, f.clock, zap.NewNop()).RegisterHandlers()

	f.tickets = NewTicketService(TicketDependencies{
		UserRepo:      f.store.Users(),
		TicketRepo:    f.store.Tickets(),
		Transport:     f.transport,
		Locker:        f.locker,
		Conversations: f.starter,
		Dispatcher:    f.dispatcher,
		Clock:         f.clock,
		Logger:        zap.NewNop(),
	})
	f.verifier = NewVerificationService(VerificationDependencies{
		UserRepo:    f.store.Users(),
		PaymentRepo: f.store.Payments(),
		Gateway:     f.gateway,
		Policy:      gateway.NewStatusPolicy([]string{"succeeded", "processing", "requires_capture"}),
		Dispatcher:  f.dispatcher,
		Clock:       f.clock,
		Logger:      zap.NewNop(),
	})
	f.entitlements = NewEntitlementService(EntitlementDependencies{
		UserRepo:    f.store.Users(),
		TicketRepo:  f.store.Tickets(),
		PaymentRepo: f.store.Payments(),
		Transport:   f.transport,
		Dispatcher:  f.dispatcher,
		Clock:       f.clock,
		Duration:    30 * 24 * time.Hour,
		Logger:      zap.NewNop(),
	})
	f.confirmer = NewConfirmationService(f.verifier, f.entitlements, f.tickets, zap.NewNop())
	return f
}

// openTicket requests a ticket and returns the stored user and result.
func (f *fixture) openTicket(t *testing.T, externalID string) (string, *TicketResult) {
	t.Helper()
	res, err := f.tickets.RequestTicket(context.Background(), externalID)
	require.NoError(t, err)
	user, err := f.store.Users().GetByExternalID(context.Background(), externalID)
	require.NoError(t, err)
	return user.ID, res
}
