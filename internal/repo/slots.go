package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const slotColumns = `
	id, kind, to_char(slot_date, 'YYYY-MM-DD'), slot_time, slot_limit, booked,
	category, deleted_at, created_at, updated_at`

func scanSlot(row rowScanner) (*model.Slot, error) {
	var (
		s         model.Slot
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.Kind, &s.Date, &s.Time, &s.Limit, &s.Booked,
		&s.Category, &deletedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.DeletedAt = nullTimePtr(deletedAt)
	return &s, nil
}

func (r *repository) CreateSlot(ctx context.Context, s *model.Slot) error {
	query := `
		INSERT INTO slots (kind, slot_date, slot_time, slot_limit, booked, category)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING id, booked, created_at, updated_at
	`
	err := r.db.Master.QueryRowContext(ctx, query,
		s.Kind, s.Date, s.Time, s.Limit, s.Category,
	).Scan(&s.ID, &s.Booked, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	return nil
}

func (r *repository) GetSlot(ctx context.Context, id int64) (*model.Slot, error) {
	row := r.db.Master.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return s, nil
}

func (r *repository) ListSlots(ctx context.Context, f model.SlotFilter) ([]model.Slot, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Date != "" {
		add("slot_date = $%d", f.Date)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if !f.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	// slot_time is HH:MM text, so the string order is the chronological order.
	query += ` ORDER BY category, slot_date, slot_time, id`

	rows, err := r.db.Master.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	slots := make([]model.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}
	return slots, nil
}

func (r *repository) SoftDeleteSlot(ctx context.Context, id int64) error {
	var exists bool
	err := r.db.Master.QueryRowContext(ctx, `
		WITH upd AS (
			UPDATE slots SET deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
		)
		SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to soft delete slot: %w", err)
	}
	if !exists {
		return model.ErrSlotNotFound
	}
	return nil
}

func (r *repository) HardDeleteSlot(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var booked int
		err := tx.QueryRowContext(ctx, `SELECT booked FROM slots WHERE id = $1 FOR UPDATE`, id).Scan(&booked)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}
		if booked > 0 {
			return model.ErrSlotHasBookings
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete slot: %w", err)
		}
		return nil
	})
}

func (r *repository) UpdateSlotLimit(ctx context.Context, id int64, limit int) (*model.Slot, error) {
	var slot *model.Slot
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var booked int
		err := tx.QueryRowContext(ctx, `SELECT booked FROM slots WHERE id = $1 FOR UPDATE`, id).Scan(&booked)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}
		if limit < booked {
			return model.ErrLimitBelowBooked
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE slots SET slot_limit = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+slotColumns, id, limit)
		slot, err = scanSlot(row)
		if err != nil {
			return fmt.Errorf("failed to update slot limit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}
