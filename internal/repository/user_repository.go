package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/premium-verification/internal/domain"
)

// UserRepository defines persistence access for chat-platform users.
type UserRepository interface {
	GetOrCreateByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// MarkEntitled flips the entitled flag and reports whether it changed.
	MarkEntitled(ctx context.Context, id string, start time.Time, end *time.Time) (bool, error)
	// ExtendEntitlement pushes entitlement_end out by days, counted from the
	// later of the current end and now. Unbounded entitlements are unchanged.
	ExtendEntitlement(ctx context.Context, id string, now time.Time, days int) (*domain.User, error)
}

type userRepository struct {
	db DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, external_id, entitled, entitlement_start, entitlement_end, created_at, updated_at`

func (r *userRepository) GetOrCreateByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	const insert = `
        INSERT INTO users (external_id) VALUES ($1)
        ON CONFLICT (external_id) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, externalID); err != nil {
		return nil, err
	}
	return r.GetByExternalID(ctx, externalID)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE external_id=$1`, externalID)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) MarkEntitled(ctx context.Context, id string, start time.Time, end *time.Time) (bool, error) {
	const query = `
        UPDATE users SET entitled=TRUE, entitlement_start=$1, entitlement_end=$2, updated_at=NOW()
        WHERE id=$3 AND entitled=FALSE`
	cmd, err := r.db.Exec(ctx, query, start, end, id)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *userRepository) ExtendEntitlement(ctx context.Context, id string, now time.Time, days int) (*domain.User, error) {
	const query = `
        UPDATE users SET
            entitlement_end = CASE
                WHEN entitlement_end IS NULL THEN NULL
                ELSE GREATEST(entitlement_end, $1) + make_interval(days => $2)
            END,
            updated_at = NOW()
        WHERE id=$3 AND entitled=TRUE
        RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, now, days, id))
	if !errors.Is(err, ErrNotFound) {
		return user, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotEntitled
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, query, arg))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.Entitled,
		&user.EntitlementStart,
		&user.EntitlementEnd,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
