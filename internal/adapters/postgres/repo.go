package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/photobook/bookings-and-payments/internal/domain"
)

const (
	serializationFailureCode = "40001"
	uniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case serializationFailureCode:
				return domain.ErrSerializationFailure
			case uniqueViolationCode:
				return domain.ErrConflict
			}
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) CreateBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (
			id, photographer_id, event_type, event_date, event_time,
			duration_bucket, location, description, guest_count, budget_band,
			client_name, client_email, client_phone, additional_requests,
			total_amount, deposit_amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, b.ID, b.PhotographerID, b.EventType, b.EventDate, b.EventTime,
		b.DurationBucket, b.Location, b.Description, b.GuestCount, b.BudgetBand,
		b.ClientName, b.ClientEmail, b.ClientPhone, b.AdditionalRequests,
		b.TotalAmount, b.DepositAmount, string(b.Status), b.CreatedAt, b.UpdatedAt)
	return err
}

// AttachPaymentIntent binds the processor reference to a booking. The
// reference is write-once: a booking that already carries one keeps it and
// the caller gets ErrConflict.
func (r *Repository) AttachPaymentIntent(ctx context.Context, bookingID uuid.UUID, intentID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings SET payment_intent_id = $2, updated_at = now()
		WHERE id = $1 AND payment_intent_id IS NULL
	`, bookingID, intentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.ErrConflict
		}
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, bookingID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

// ApplyPaymentEvent drives the booking matched by intentID through the
// status machine inside a row lock, so concurrent deliveries for the same
// intent serialize and duplicates become no-ops. Returns the booking id,
// the resulting status, and whether this call changed it.
func (r *Repository) ApplyPaymentEvent(ctx context.Context, tx pgx.Tx, intentID string, kind domain.PaymentEventKind) (uuid.UUID, domain.Status, bool, error) {
	var bookingID uuid.UUID
	var current string
	err := tx.QueryRow(ctx, `
		SELECT id, status FROM bookings WHERE payment_intent_id = $1 FOR UPDATE
	`, intentID).Scan(&bookingID, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", false, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, "", false, err
	}

	next, changed := domain.ApplyPaymentEvent(domain.Status(current), kind)
	if !changed {
		return bookingID, next, false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now()
		WHERE payment_intent_id = $1
	`, intentID, string(next))
	if err != nil {
		return uuid.Nil, "", false, err
	}
	return bookingID, next, true, nil
}

const bookingColumns = `
	id, photographer_id, event_type, event_date, event_time,
	duration_bucket, location, description, guest_count, budget_band,
	client_name, client_email, client_phone, additional_requests,
	total_amount, deposit_amount, status, COALESCE(payment_intent_id, ''),
	created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status string
	err := row.Scan(&b.ID, &b.PhotographerID, &b.EventType, &b.EventDate, &b.EventTime,
		&b.DurationBucket, &b.Location, &b.Description, &b.GuestCount, &b.BudgetBand,
		&b.ClientName, &b.ClientEmail, &b.ClientPhone, &b.AdditionalRequests,
		&b.TotalAmount, &b.DepositAmount, &status, &b.PaymentIntentID,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = domain.Status(status)
	return &b, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *Repository) GetBookingByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_intent_id = $1`, intentID)
	return scanBooking(row)
}

// GetStalePendingBookings lists bookings that started a payment attempt but
// have sat in pending since before the cutoff. Input to reconciliation;
// nothing here mutates them.
func (r *Repository) GetStalePendingBookings(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending' AND payment_intent_id IS NOT NULL AND updated_at <= $1
		ORDER BY updated_at ASC LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
