package domain

import "time"

// TicketStatus is derived from the closed/deleted timestamps.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "OPEN"
	TicketStatusClosed  TicketStatus = "CLOSED"
	TicketStatusDeleted TicketStatus = "DELETED"
)

// Ticket is a private verification channel owned by one user. At most one
// ticket per user may be live (neither closed nor deleted).
type Ticket struct {
	ID         string
	UserID     string
	ChannelRef string
	CreatedAt  time.Time
	ClosedAt   *time.Time
	DeletedAt  *time.Time
}

// Live reports whether the ticket is still open.
func (t *Ticket) Live() bool {
	return t.ClosedAt == nil && t.DeletedAt == nil
}

// Status returns the lifecycle state of the ticket.
func (t *Ticket) Status() TicketStatus {
	switch {
	case t.DeletedAt != nil:
		return TicketStatusDeleted
	case t.ClosedAt != nil:
		return TicketStatusClosed
	default:
		return TicketStatusOpen
	}
}
