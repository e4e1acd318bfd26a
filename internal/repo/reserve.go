package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

type lockedSlot struct {
	kind    model.SlotKind
	limit   int
	booked  int
	deleted bool
}

// lockSlots takes row locks on the given slots in id order.
func lockSlots(ctx context.Context, tx *sql.Tx, ids ...int64) (map[int64]lockedSlot, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, slot_limit, booked, deleted_at IS NOT NULL
		FROM slots
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock slots: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]lockedSlot, len(ids))
	for rows.Next() {
		var (
			id int64
			s  lockedSlot
		)
		if err := rows.Scan(&id, &s.kind, &s.limit, &s.booked, &s.deleted); err != nil {
			return nil, fmt.Errorf("failed to scan locked slot: %w", err)
		}
		locked[id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locked slots: %w", err)
	}
	return locked, nil
}

func decrementSlot(ctx context.Context, tx *sql.Tx, slotID int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET booked = booked - 1, updated_at = NOW() WHERE id = $1`, slotID,
	); err != nil {
		return fmt.Errorf("failed to decrement booked: %w", err)
	}
	return nil
}

// lockApplication returns the booking the pending application currently holds.
func lockApplication(ctx context.Context, tx *sql.Tx, appID int64) (*int64, error) {
	var (
		status    model.ApplicationStatus
		bookingID sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, booking_id FROM applications WHERE id = $1 FOR UPDATE`, appID,
	).Scan(&status, &bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock application: %w", err)
	}
	if status != model.ApplicationStatusPending {
		return nil, model.ErrApplicationNotPending
	}
	return nullInt64Ptr(bookingID), nil
}

// lockApplicationRow locks the application whatever its status and returns the
// booking it holds.
func lockApplicationRow(ctx context.Context, tx *sql.Tx, appID int64) (sql.NullInt64, error) {
	var bookingID sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT booking_id FROM applications WHERE id = $1 FOR UPDATE`, appID,
	).Scan(&bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return bookingID, model.ErrApplicationNotFound
	}
	if err != nil {
		return bookingID, fmt.Errorf("failed to lock application: %w", err)
	}
	return bookingID, nil
}

// releaseBooking locks the booking and its slot, deletes the booking and
// decrements the slot.
func (r *repository) releaseBooking(ctx context.Context, tx *sql.Tx, bookingID int64) (*model.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	locked, err := lockSlots(ctx, tx, b.SlotID)
	if err != nil {
		return nil, err
	}
	if locked[b.SlotID].booked <= 0 {
		r.log.Error().Int64("slot_id", b.SlotID).Int64("booking_id", b.ID).
			Msg("booked counter underflow on cancel")
		return nil, model.ErrCounterUnderflow
	}

	// applications.booking_id is cleared by ON DELETE SET NULL.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, bookingID); err != nil {
		return nil, fmt.Errorf("failed to delete booking: %w", err)
	}
	if err := decrementSlot(ctx, tx, b.SlotID); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repository) ReserveTx(ctx context.Context, b *model.Booking) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		// Lock order is application, booking, slots by id. CancelTx follows it too.
		var (
			prevBookingID *int64
			prevSlotID    int64
		)
		if b.ApplicationID != nil {
			var err error
			prevBookingID, err = lockApplication(ctx, tx, *b.ApplicationID)
			if err != nil {
				return err
			}
		}
		if prevBookingID != nil {
			err := tx.QueryRowContext(ctx,
				`SELECT slot_id FROM bookings WHERE id = $1 FOR UPDATE`, *prevBookingID,
			).Scan(&prevSlotID)
			if err != nil {
				return fmt.Errorf("failed to lock previous booking: %w", err)
			}
		}

		ids := []int64{b.SlotID}
		if prevBookingID != nil && prevSlotID != b.SlotID {
			ids = append(ids, prevSlotID)
		}
		locked, err := lockSlots(ctx, tx, ids...)
		if err != nil {
			return err
		}

		slot, ok := locked[b.SlotID]
		if !ok {
			return model.ErrSlotNotFound
		}
		if slot.deleted {
			return model.ErrSlotDeleted
		}
		booked := slot.booked
		if prevBookingID != nil && prevSlotID == b.SlotID {
			// The seat being released frees room on the same slot.
			booked--
		}
		if booked >= slot.limit {
			return model.ErrSlotFull
		}

		b.Kind = slot.kind
		err = tx.QueryRowContext(ctx, `
			INSERT INTO bookings (
				slot_id, kind, first_name, middle_name, last_name, department, email,
				resume_link, resume_file, application_id, status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending')
			RETURNING id, status, created_at, updated_at
		`,
			b.SlotID, b.Kind, b.FirstName, b.MiddleName, b.LastName, b.Department, b.Email,
			b.ResumeLink, b.ResumeFile, b.ApplicationID,
		).Scan(&b.ID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		if prevBookingID != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, *prevBookingID); err != nil {
				return fmt.Errorf("failed to release previous booking: %w", err)
			}
			prev := locked[prevSlotID]
			if prev.booked <= 0 {
				r.log.Error().Int64("slot_id", prevSlotID).Int64("booking_id", *prevBookingID).
					Msg("booked counter underflow on release")
				return model.ErrCounterUnderflow
			}
			if prevSlotID != b.SlotID {
				if err := decrementSlot(ctx, tx, prevSlotID); err != nil {
					return err
				}
			}
		}
		if prevBookingID == nil || prevSlotID != b.SlotID {
			if _, err := tx.ExecContext(ctx,
				`UPDATE slots SET booked = booked + 1, updated_at = NOW() WHERE id = $1`, b.SlotID,
			); err != nil {
				return fmt.Errorf("failed to increment booked: %w", err)
			}
		}

		if b.ApplicationID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE applications SET booking_id = $2, updated_at = NOW() WHERE id = $1`,
				*b.ApplicationID, b.ID,
			); err != nil {
				return fmt.Errorf("failed to link application: %w", err)
			}
		}
		return nil
	})
}

func (r *repository) CancelTx(ctx context.Context, bookingID int64) (*model.Booking, error) {
	var cancelled *model.Booking
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var appID sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT application_id FROM bookings WHERE id = $1`, bookingID,
		).Scan(&appID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read booking: %w", err)
		}
		if appID.Valid {
			// A concurrent withdrawal may have removed the application. The
			// booking lookup below then reports it missing.
			if _, err := lockApplicationRow(ctx, tx, appID.Int64); err != nil && !errors.Is(err, model.ErrApplicationNotFound) {
				return err
			}
		}

		b, err := r.releaseBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *repository) WithdrawTx(ctx context.Context, appID int64) (*model.Booking, error) {
	var released *model.Booking
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		bookingID, err := lockApplicationRow(ctx, tx, appID)
		if err != nil {
			return err
		}
		if bookingID.Valid {
			if released, err = r.releaseBooking(ctx, tx, bookingID.Int64); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, appID); err != nil {
			return fmt.Errorf("failed to delete application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}
