package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// MemoryStore keeps users, tickets and payments in process memory. It
// enforces the same uniqueness rules as the Postgres schema and is used
// when no DSN is configured and in tests.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	users      map[string]*domain.User
	byExternal map[string]string
	tickets    map[string]*domain.Ticket
	payments   map[string]*domain.Payment
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		users:      make(map[string]*domain.User),
		byExternal: make(map[string]string),
		tickets:    make(map[string]*domain.Ticket),
		payments:   make(map[string]*domain.Payment),
	}
}

func (s *MemoryStore) Users() UserRepository       { return memoryUsers{s} }
func (s *MemoryStore) Tickets() TicketRepository   { return memoryTickets{s} }
func (s *MemoryStore) Payments() PaymentRepository { return memoryPayments{s} }

// TicketsForUser returns every ticket ever created for userID, oldest first.
func (s *MemoryStore) TicketsForUser(userID string) []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AllPayments returns a snapshot of every payment row.
func (s *MemoryStore) AllPayments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	return out
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) GetOrCreateByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.byExternal[externalID]; ok {
		u := *r.s.users[id]
		return &u, nil
	}
	now := r.s.now()
	user := &domain.User{ID: uuid.NewString(), ExternalID: externalID, CreatedAt: now, UpdatedAt: now}
	r.s.users[user.ID] = user
	r.s.byExternal[externalID] = user.ID
	u := *user
	return &u, nil
}

func (r memoryUsers) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byExternal[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	u := *r.s.users[id]
	return &u, nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (r memoryUsers) MarkEntitled(_ context.Context, id string, start time.Time, end *time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return false, ErrNotFound
	}
	if user.Entitled {
		return false, nil
	}
	user.Entitled = true
	user.EntitlementStart = &start
	user.EntitlementEnd = end
	user.UpdatedAt = r.s.now()
	return true, nil
}

func (r memoryUsers) ExtendEntitlement(_ context.Context, id string, now time.Time, days int) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !user.Entitled {
		return nil, ErrNotEntitled
	}
	if user.EntitlementEnd != nil {
		from := *user.EntitlementEnd
		if now.After(from) {
			from = now
		}
		end := from.AddDate(0, 0, days)
		user.EntitlementEnd = &end
	}
	user.UpdatedAt = r.s.now()
	u := *user
	return &u, nil
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) FindLiveByUser(_ context.Context, userID string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t := r.s.liveTicketLocked(userID); t != nil {
		c := *t
		return &c, nil
	}
	return nil, ErrNotFound
}

func (r memoryTickets) InsertLive(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.liveTicketLocked(ticket.UserID) != nil {
		return ErrLiveTicketExists
	}
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.s.now()
	stored := *ticket
	r.s.tickets[ticket.ID] = &stored
	return nil
}

func (r memoryTickets) SoftDelete(_ context.Context, ticketID string, at time.Time) error {
	return r.finish(ticketID, func(t *domain.Ticket) { t.DeletedAt = &at })
}

func (r memoryTickets) Close(_ context.Context, ticketID string, at time.Time) error {
	return r.finish(ticketID, func(t *domain.Ticket) { t.ClosedAt = &at })
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r memoryTickets) finish(ticketID string, apply func(*domain.Ticket)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[ticketID]
	if !ok || !t.Live() {
		return ErrNotFound
	}
	apply(t)
	return nil
}

func (s *MemoryStore) liveTicketLocked(userID string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.UserID == userID && t.Live() {
			return t
		}
	}
	return nil
}

type memoryPayments struct{ s *MemoryStore }

func (r memoryPayments) Insert(_ context.Context, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// Order ids first, matching the constraint order in the schema.
	for _, p := range r.s.payments {
		if p.OrderID == payment.OrderID {
			return ErrDuplicateOrder
		}
	}
	for _, p := range r.s.payments {
		if p.PaymentIntentID == payment.PaymentIntentID {
			return ErrDuplicateIntent
		}
	}
	payment.ID = uuid.NewString()
	payment.CreatedAt = r.s.now()
	stored := *payment
	r.s.payments[payment.ID] = &stored
	return nil
}

func (r memoryPayments) FindByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	return r.find(func(p *domain.Payment) bool { return p.OrderID == orderID })
}

func (r memoryPayments) FindByIntentRef(_ context.Context, intentRef string) (*domain.Payment, error) {
	return r.find(func(p *domain.Payment) bool { return p.PaymentIntentID == intentRef })
}

func (r memoryPayments) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	return r.find(func(p *domain.Payment) bool { return p.ID == id })
}

func (r memoryPayments) ExistsConfirmedForUser(_ context.Context, userID string) (bool, error) {
	_, err := r.find(func(p *domain.Payment) bool { return p.UserID == userID && p.Confirmed })
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r memoryPayments) find(match func(*domain.Payment) bool) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}
