package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// PaymentRepository persists the append-only payment audit trail.
type PaymentRepository interface {
	// Insert records a payment. Unique constraints on order_id and
	// payment_intent_id surface as ErrDuplicateOrder and ErrDuplicateIntent.
	Insert(ctx context.Context, payment *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	FindByIntentRef(ctx context.Context, intentRef string) (*domain.Payment, error)
	ExistsConfirmedForUser(ctx context.Context, userID string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
}

type paymentRepository struct {
	db DB
}

// NewPaymentRepository constructs repository.
func NewPaymentRepository(db DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, ticket_id, payment_intent_id, order_id, confirmation_image_ref, confirmed, created_at`

func (r *paymentRepository) Insert(ctx context.Context, payment *domain.Payment) error {
	const query = `
        INSERT INTO payments (user_id, ticket_id, payment_intent_id, order_id, confirmation_image_ref, confirmed)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		payment.UserID,
		payment.TicketID,
		payment.PaymentIntentID,
		payment.OrderID,
		payment.ConfirmationImageRef,
		payment.Confirmed,
	).Scan(&payment.ID, &payment.CreatedAt)
	if name, ok := uniqueConstraint(err); ok {
		switch name {
		case constraintPaymentOrder:
			return ErrDuplicateOrder
		case constraintPaymentIntent:
			return ErrDuplicateIntent
		}
	}
	return err
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.fetchSingle(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1`, orderID)
}

func (r *paymentRepository) FindByIntentRef(ctx context.Context, intentRef string) (*domain.Payment, error) {
	return r.fetchSingle(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id=$1`, intentRef)
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.fetchSingle(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (r *paymentRepository) ExistsConfirmedForUser(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE user_id=$1 AND confirmed)`, userID).Scan(&exists)
	return exists, err
}

func (r *paymentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var payment domain.Payment
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.UserID,
		&payment.TicketID,
		&payment.PaymentIntentID,
		&payment.OrderID,
		&payment.ConfirmationImageRef,
		&payment.Confirmed,
		&payment.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}
