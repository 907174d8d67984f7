package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// FindLiveByUser returns the user's ticket that is neither closed nor deleted.
	FindLiveByUser(ctx context.Context, userID string) (*domain.Ticket, error)
	// InsertLive atomically checks that the user has no live ticket and
	// inserts one. It returns ErrLiveTicketExists otherwise.
	InsertLive(ctx context.Context, ticket *domain.Ticket) error
	// SoftDelete sets deleted_at on a live ticket.
	SoftDelete(ctx context.Context, ticketID string, at time.Time) error
	// Close sets closed_at on a live ticket.
	Close(ctx context.Context, ticketID string, at time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
}

type ticketRepository struct {
	db DB
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, user_id, channel_ref, created_at, closed_at, deleted_at`

func (r *ticketRepository) FindLiveByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets
        WHERE user_id=$1 AND closed_at IS NULL AND deleted_at IS NULL`
	return scanTicket(r.db.QueryRow(ctx, query, userID))
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
}

func (r *ticketRepository) InsertLive(ctx context.Context, ticket *domain.Ticket) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// Serializes concurrent inserts for the same user; the partial
		// unique index still backs the invariant.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticket.UserID); err != nil {
			return err
		}

		var existing string
		err := tx.QueryRow(ctx, `SELECT id FROM tickets
            WHERE user_id=$1 AND closed_at IS NULL AND deleted_at IS NULL`, ticket.UserID).Scan(&existing)
		if err == nil {
			return ErrLiveTicketExists
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		const insert = `
            INSERT INTO tickets (user_id, channel_ref)
            VALUES ($1, $2)
            RETURNING id, created_at`
		err = tx.QueryRow(ctx, insert, ticket.UserID, ticket.ChannelRef).Scan(&ticket.ID, &ticket.CreatedAt)
		if name, ok := uniqueConstraint(err); ok && name == constraintLiveTicket {
			return ErrLiveTicketExists
		}
		return err
	})
}

func (r *ticketRepository) SoftDelete(ctx context.Context, ticketID string, at time.Time) error {
	return r.finish(ctx, `UPDATE tickets SET deleted_at=$1
        WHERE id=$2 AND closed_at IS NULL AND deleted_at IS NULL`, at, ticketID)
}

func (r *ticketRepository) Close(ctx context.Context, ticketID string, at time.Time) error {
	return r.finish(ctx, `UPDATE tickets SET closed_at=$1
        WHERE id=$2 AND closed_at IS NULL AND deleted_at IS NULL`, at, ticketID)
}

func (r *ticketRepository) finish(ctx context.Context, query string, at time.Time, ticketID string) error {
	cmd, err := r.db.Exec(ctx, query, at, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.ChannelRef,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}
