package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotkeeper/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// CapacityCheck is called inside the write transaction with the active
// bookings of the target date as they are at that moment. A non-nil error
// aborts the write and is returned to the caller unchanged.
type CapacityCheck func(active []*models.Booking) error

var bookingColumns = []string{
	"id", "booking_date", "start_time", "resource_id", "duration_minutes", "status",
	"customer_name", "phone", "service_name", "comment", "version", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var dateStr string
	err := row.Scan(
		&b.ID, &dateStr, &b.Time, &b.ResourceID, &b.DurationMinutes, &b.Status,
		&b.CustomerName, &b.Phone, &b.ServiceName, &b.Comment, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) queryActive(ctx context.Context, q queryer, date time.Time, resourceID, excludeID string) ([]*models.Booking, error) {
	sb := db.builder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"booking_date": date.Format(models.DateLayout)}).
		Where(squirrel.Eq{"status": models.ActiveStatuses()}).
		OrderBy("start_time", "id")
	if resourceID != "" {
		sb = sb.Where(squirrel.Eq{"resource_id": resourceID})
	}
	if excludeID != "" {
		sb = sb.Where(squirrel.NotEq{"id": excludeID})
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build active bookings query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active bookings: %w", classify(err))
	}
	return scanBookings(rows)
}

// QueryActiveBookings returns pending, confirmed and in-progress bookings of
// date. An empty resourceID means every resource. The read takes no locks.
func (db *DB) QueryActiveBookings(ctx context.Context, date time.Time, resourceID string) ([]*models.Booking, error) {
	return db.queryActive(ctx, db.DB, date, resourceID, "")
}

// CreateBookingAtomic inserts booking only if check accepts the active
// bookings read in the same transaction.
func (db *DB) CreateBookingAtomic(ctx context.Context, booking *models.Booking, check CapacityCheck) error {
	tx, err := db.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Проверка вместимости внутри транзакции
	active, err := db.queryActive(ctx, tx, booking.Date, "", "")
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(active); err != nil {
			return err
		}
	}

	// 2. Запись
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	now := time.Now().UTC()
	query, args, err := db.builder.Insert("bookings").
		Columns(bookingColumns...).
		Values(
			booking.ID,
			booking.Date.Format(models.DateLayout),
			booking.Time,
			booking.ResourceID,
			booking.DurationMinutes,
			booking.Status,
			booking.CustomerName,
			booking.Phone,
			booking.ServiceName,
			booking.Comment,
			1,
			now,
			now,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", classify(err))
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// UpdateBookingAtomic moves booking id to the date, time, resource and
// duration of booking. The booking itself is left out of the set passed to
// check. A non-zero booking.Version must match the stored version.
func (db *DB) UpdateBookingAtomic(ctx context.Context, id string, booking *models.Booking, check CapacityCheck) error {
	tx, err := db.beginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := db.getBooking(ctx, tx, id)
	if err != nil {
		return err
	}
	if !current.IsActive() {
		return fmt.Errorf("%w: %s is %s", ErrBookingNotActive, id, current.Status)
	}
	if booking.Version != 0 && booking.Version != current.Version {
		return ErrConcurrentModification
	}

	active, err := db.queryActive(ctx, tx, booking.Date, "", id)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(active); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	query, args, err := db.builder.Update("bookings").
		Set("booking_date", booking.Date.Format(models.DateLayout)).
		Set("start_time", booking.Time).
		Set("resource_id", booking.ResourceID).
		Set("duration_minutes", booking.DurationMinutes).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id, "version": current.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking in tx: %w", classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking update: %w", classify(err))
	}

	booking.ID = id
	booking.Status = current.Status
	booking.CreatedAt = current.CreatedAt
	booking.UpdatedAt = now
	booking.Version = current.Version + 1
	return nil
}

func (db *DB) getBooking(ctx context.Context, q queryer, id string) (*models.Booking, error) {
	query, args, err := db.builder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	b, err := scanBooking(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", classify(err))
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return db.getBooking(ctx, db.DB, id)
}

// UpdateBookingStatusWithVersion changes the status if nobody touched the
// booking since fromVersion.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query, args, err := db.builder.Update("bookings").
		Set("status", status).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "version": fromVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", classify(err))
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	if _, err := db.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrConcurrentModification
}

// GetBookingsByDateRange returns bookings of every status, both ends inclusive.
func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query, args, err := db.builder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.GtOrEq{"booking_date": startDate.Format(models.DateLayout)}).
		Where(squirrel.LtOrEq{"booking_date": endDate.Format(models.DateLayout)}).
		OrderBy("booking_date", "start_time", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build date range query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", classify(err))
	}
	return scanBookings(rows)
}
