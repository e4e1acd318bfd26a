package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const applicationSelect = `
	SELECT a.id, a.first_name, a.middle_name, a.last_name, a.email, a.program,
		a.status, a.booking_id, b.slot_id, a.approved_at, a.created_at, a.updated_at
	FROM applications a
	LEFT JOIN bookings b ON b.id = a.booking_id`

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		a          model.Application
		bookingID  sql.NullInt64
		slotID     sql.NullInt64
		approvedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.FirstName, &a.MiddleName, &a.LastName, &a.Email, &a.Program,
		&a.Status, &bookingID, &slotID, &approvedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.BookingID = nullInt64Ptr(bookingID)
	a.SlotID = nullInt64Ptr(slotID)
	a.ApprovedAt = nullTimePtr(approvedAt)
	return &a, nil
}

func (r *repository) CreateApplication(ctx context.Context, a *model.Application) error {
	query := `
		INSERT INTO applications (first_name, middle_name, last_name, email, program, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.Master.QueryRowContext(ctx, query,
		a.FirstName, a.MiddleName, a.LastName, a.Email, a.Program,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	a.BookingID, a.SlotID, a.ApprovedAt = nil, nil, nil
	return nil
}

func (r *repository) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	row := r.db.Master.QueryRowContext(ctx, applicationSelect+` WHERE a.id = $1`, id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

func (r *repository) ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.Application, error) {
	query := applicationSelect
	var args []any
	if f.Status != "" {
		query += ` WHERE a.status = $1`
		args = append(args, f.Status)
	}
	query += ` ORDER BY a.created_at, a.id`

	rows, err := r.db.Master.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

func (r *repository) ApproveApplication(ctx context.Context, id int64, at time.Time) (*model.Application, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status    model.ApplicationStatus
			bookingID sql.NullInt64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, booking_id FROM applications WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status, &bookingID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrApplicationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock application: %w", err)
		}
		if !bookingID.Valid {
			return model.ErrNoScheduleSelected
		}
		if status != model.ApplicationStatusPending {
			return model.ErrApplicationNotPending
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE applications SET status = 'approved', approved_at = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
		`, id, at); err != nil {
			return fmt.Errorf("failed to approve application: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE bookings SET status = 'approved', updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
		`, bookingID.Int64); err != nil {
			return fmt.Errorf("failed to approve booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetApplication(ctx, id)
}
