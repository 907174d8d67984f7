package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrLiveTicketExists is returned when a user already owns a live ticket.
	ErrLiveTicketExists = errors.New("user already has a live ticket")
	// ErrDuplicateOrder is returned when a payment reuses an order id.
	ErrDuplicateOrder = errors.New("order id already used")
	// ErrDuplicateIntent is returned when a payment reuses an intent reference.
	ErrDuplicateIntent = errors.New("payment intent already used")
	// ErrNotEntitled is returned when extending a user who holds no entitlement.
	ErrNotEntitled = errors.New("user is not entitled")
)

const uniqueViolation = "23505"

// Constraint names declared in migrations.
const (
	constraintLiveTicket    = "tickets_one_live_per_user"
	constraintPaymentOrder  = "payments_order_id_key"
	constraintPaymentIntent = "payments_payment_intent_id_key"
)

func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
