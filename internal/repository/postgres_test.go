package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/premium-verification/internal/domain"
)

func newMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func uniqueViolationOn(constraint string) error {
	return &pgconn.PgError{Code: uniqueViolation, ConstraintName: constraint}
}

func TestUniqueConstraint(t *testing.T) {
	name, ok := uniqueConstraint(uniqueViolationOn(constraintPaymentOrder))
	assert.True(t, ok)
	assert.Equal(t, constraintPaymentOrder, name)

	_, ok = uniqueConstraint(&pgconn.PgError{Code: "23503", ConstraintName: "payments_user_id_fkey"})
	assert.False(t, ok)
	_, ok = uniqueConstraint(errors.New("connection reset"))
	assert.False(t, ok)
	_, ok = uniqueConstraint(nil)
	assert.False(t, ok)
}

func TestPostgresPaymentInsertMapsConstraints(t *testing.T) {
	otherErr := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "payments_pkey"}
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"order id", uniqueViolationOn(constraintPaymentOrder), ErrDuplicateOrder},
		{"intent ref", uniqueViolationOn(constraintPaymentIntent), ErrDuplicateIntent},
		{"other constraint", otherErr, otherErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := newMockDB(t)
			mock.ExpectQuery("INSERT INTO payments").
				WithArgs("u-1", "t-1", "pi_1", "ORD1", "img", true).
				WillReturnError(tc.err)

			err := NewPaymentRepository(mock).Insert(context.Background(), &domain.Payment{
				UserID: "u-1", TicketID: "t-1", PaymentIntentID: "pi_1", OrderID: "ORD1",
				ConfirmationImageRef: "img", Confirmed: true,
			})
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresPaymentInsertReturnsGeneratedFields(t *testing.T) {
	mock := newMockDB(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO payments").
		WithArgs("u-1", "t-1", "pi_1", "ORD1", "", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("p-1", created))

	payment := &domain.Payment{UserID: "u-1", TicketID: "t-1", PaymentIntentID: "pi_1", OrderID: "ORD1"}
	require.NoError(t, NewPaymentRepository(mock).Insert(context.Background(), payment))
	assert.Equal(t, "p-1", payment.ID)
	assert.Equal(t, created, payment.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentFindMissing(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery("FROM payments WHERE order_id").
		WithArgs("ORD9").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewPaymentRepository(mock).FindByOrderID(context.Background(), "ORD9")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertLiveMapsPartialIndex(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("u-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT id FROM tickets").
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO tickets").
		WithArgs("u-1", "chan-1").
		WillReturnError(uniqueViolationOn(constraintLiveTicket))
	mock.ExpectRollback()

	err := NewTicketRepository(mock).InsertLive(context.Background(), &domain.Ticket{UserID: "u-1", ChannelRef: "chan-1"})
	assert.ErrorIs(t, err, ErrLiveTicketExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertLiveSeesExistingTicket(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("u-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT id FROM tickets").
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("t-old"))
	mock.ExpectRollback()

	err := NewTicketRepository(mock).InsertLive(context.Background(), &domain.Ticket{UserID: "u-1", ChannelRef: "chan-1"})
	assert.ErrorIs(t, err, ErrLiveTicketExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTicketCloseRequiresLiveRow(t *testing.T) {
	mock := newMockDB(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE tickets SET closed_at").
		WithArgs(at, "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewTicketRepository(mock).Close(context.Background(), "t-1", at)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExtendEntitlementWithoutEntitlement(t *testing.T) {
	mock := newMockDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE users SET").
		WithArgs(now, 30, "u-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "external_id", "entitled", "entitlement_start", "entitlement_end", "created_at", "updated_at",
		}).AddRow("u-1", "42", false, nil, nil, now, now))

	_, err := NewUserRepository(mock).ExtendEntitlement(context.Background(), "u-1", now, 30)
	assert.ErrorIs(t, err, ErrNotEntitled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExtendEntitlementUnknownUser(t *testing.T) {
	mock := newMockDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE users SET").
		WithArgs(now, 30, "ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := NewUserRepository(mock).ExtendEntitlement(context.Background(), "ghost", now, 30)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
