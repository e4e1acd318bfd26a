package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

type SlotStore interface {
	CreateSlot(ctx context.Context, s *model.Slot) error
	GetSlot(ctx context.Context, id int64) (*model.Slot, error)
	ListSlots(ctx context.Context, f model.SlotFilter) ([]model.Slot, error)
	SoftDeleteSlot(ctx context.Context, id int64) error
	HardDeleteSlot(ctx context.Context, id int64) error
	UpdateSlotLimit(ctx context.Context, id int64, limit int) (*model.Slot, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ListBookingsBySlot(ctx context.Context, slotID int64) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) (*model.Booking, error)
}

type ApplicationStore interface {
	CreateApplication(ctx context.Context, a *model.Application) error
	GetApplication(ctx context.Context, id int64) (*model.Application, error)
	ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.Application, error)
	ApproveApplication(ctx context.Context, id int64, at time.Time) (*model.Application, error)
}

// Reserver holds the only write paths for slots.booked.
// It must be called through reservation.Engine.
type Reserver interface {
	// ReserveTx inserts b and increments its slot's counter in one unit.
	// When b.ApplicationID is set the application is linked to b and the
	// booking it held before, if any, is released in the same transaction.
	ReserveTx(ctx context.Context, b *model.Booking) error
	// CancelTx deletes the booking and decrements its slot's counter in one unit.
	CancelTx(ctx context.Context, bookingID int64) (*model.Booking, error)
	// WithdrawTx deletes the application and the booking it holds, giving the
	// seat back, in one unit. The released booking is nil if it held none.
	WithdrawTx(ctx context.Context, appID int64) (*model.Booking, error)
}

type Repository interface {
	SlotStore
	BookingStore
	ApplicationStore
	Reserver
}

// repository reads and writes through db.Master only.
type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

// Migrate applies all pending goose migrations found in migrationsDir.
func Migrate(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction on the master node and commits when fn
// returns nil.
func (r *repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Postgres error codes that mean "lost a lock race, try again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// IsRetryable reports whether err is a transient lock conflict. Business
// errors such as model.ErrSlotFull are never retryable.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
