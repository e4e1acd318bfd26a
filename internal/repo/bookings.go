package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const bookingColumns = `
	id, slot_id, kind, first_name, middle_name, last_name, department, email,
	resume_link, resume_file, application_id, status, created_at, updated_at`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b     model.Booking
		appID sql.NullInt64
	)
	if err := row.Scan(
		&b.ID, &b.SlotID, &b.Kind, &b.FirstName, &b.MiddleName, &b.LastName, &b.Department, &b.Email,
		&b.ResumeLink, &b.ResumeFile, &appID, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.ApplicationID = nullInt64Ptr(appID)
	return &b, nil
}

func (r *repository) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := r.db.Master.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (r *repository) ListBookingsBySlot(ctx context.Context, slotID int64) ([]model.Booking, error) {
	var exists bool
	if err := r.db.Master.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, slotID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	if !exists {
		return nil, model.ErrSlotNotFound
	}

	rows, err := r.db.Master.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE slot_id = $1 ORDER BY created_at, id`, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (r *repository) UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	var updated *model.Booking
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
		b, err := scanBooking(row)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock booking: %w", err)
		}
		if err := model.CheckBookingTransition(b, status); err != nil {
			return err
		}

		row = tx.QueryRowContext(ctx, `
			UPDATE bookings SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+bookingColumns, id, status)
		updated, err = scanBooking(row)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrBookingNotPending
		}
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
