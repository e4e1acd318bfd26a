package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/cache"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/metrics"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/pkg/validator"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 20 * time.Millisecond
)

type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

// ReserveRequest is the booking payload. ApplicationID links the new booking to
// an admission application and replaces the one it held before.
type ReserveRequest struct {
	FirstName     string `json:"first_name" validate:"required,max=128"`
	MiddleName    string `json:"middle_name" validate:"max=128"`
	LastName      string `json:"last_name" validate:"required,max=128"`
	Department    string `json:"department" validate:"required,max=255"`
	Email         string `json:"email" validate:"omitempty,email,max=255"`
	ResumeLink    string `json:"resume_link" validate:"omitempty,url"`
	ResumeFile    string `json:"resume_file"`
	ApplicationID *int64 `json:"-"`
}

// Engine is the only component that changes slots.booked.
type Engine struct {
	repo  repo.Repository
	cache *cache.SlotCache
	log   *zerolog.Logger
	cfg   Config
}

func NewEngine(r repo.Repository, c *cache.SlotCache, log *zerolog.Logger, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Engine{repo: r, cache: c, log: log, cfg: cfg}
}

// Reserve books one seat in the slot. It fails with model.ErrSlotFull when
// booked has reached limit and writes nothing in that case.
func (e *Engine) Reserve(ctx context.Context, slotID int64, req ReserveRequest) (*model.Booking, error) {
	started := time.Now()

	slot, err := e.repo.GetSlot(ctx, slotID)
	if err != nil {
		metrics.ObserveReservation("unknown", outcome(err), started)
		return nil, err
	}
	kind := string(slot.Kind)
	if slot.IsDeleted() {
		metrics.ObserveReservation(kind, outcome(model.ErrSlotDeleted), started)
		return nil, model.ErrSlotDeleted
	}
	if err := ValidateRequest(ctx, slot.Kind, req); err != nil {
		metrics.ObserveReservation(kind, outcome(err), started)
		return nil, err
	}

	b := &model.Booking{
		SlotID:        slotID,
		FirstName:     req.FirstName,
		MiddleName:    req.MiddleName,
		LastName:      req.LastName,
		Department:    req.Department,
		Email:         req.Email,
		ResumeLink:    req.ResumeLink,
		ResumeFile:    req.ResumeFile,
		ApplicationID: req.ApplicationID,
	}
	err = e.retry(ctx, "reserve", func() error {
		return e.repo.ReserveTx(ctx, b)
	})
	metrics.ObserveReservation(kind, outcome(err), started)
	if err != nil {
		if errors.Is(err, model.ErrCapacityExceeded) {
			e.log.Info().Int64("slot_id", slotID).Msg("slot is full")
		} else if !isDomainError(err) {
			e.log.Error().Err(err).Int64("slot_id", slotID).Msg("reservation failed")
		}
		return nil, err
	}

	e.cache.Invalidate(ctx)
	e.log.Info().
		Int64("slot_id", slotID).
		Int64("booking_id", b.ID).
		Str("kind", kind).
		Msg("seat reserved")
	return b, nil
}

// Cancel deletes the booking and gives its seat back to the slot.
func (e *Engine) Cancel(ctx context.Context, bookingID int64) (*model.Booking, error) {
	var cancelled *model.Booking
	err := e.retry(ctx, "cancel", func() error {
		var err error
		cancelled, err = e.repo.CancelTx(ctx, bookingID)
		return err
	})
	metrics.IncCancellation(outcome(err))
	if err != nil {
		if errors.Is(err, model.ErrCounterUnderflow) {
			e.log.Error().Err(err).Int64("booking_id", bookingID).Msg("slot counter is inconsistent")
		} else if !isDomainError(err) {
			e.log.Error().Err(err).Int64("booking_id", bookingID).Msg("cancellation failed")
		}
		return nil, err
	}

	e.cache.Invalidate(ctx)
	e.log.Info().
		Int64("slot_id", cancelled.SlotID).
		Int64("booking_id", bookingID).
		Msg("booking cancelled")
	return cancelled, nil
}

// Withdraw deletes an application together with the booking it holds, giving
// the seat back in the same unit.
func (e *Engine) Withdraw(ctx context.Context, appID int64) (*model.Booking, error) {
	var released *model.Booking
	err := e.retry(ctx, "withdraw", func() error {
		var err error
		released, err = e.repo.WithdrawTx(ctx, appID)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrCounterUnderflow) {
			metrics.IncCancellation(outcome(err))
			e.log.Error().Err(err).Int64("application_id", appID).Msg("slot counter is inconsistent")
		} else if !isDomainError(err) {
			e.log.Error().Err(err).Int64("application_id", appID).Msg("withdrawal failed")
		}
		return nil, err
	}
	if released == nil {
		return nil, nil
	}

	metrics.IncCancellation(outcome(nil))
	e.cache.Invalidate(ctx)
	e.log.Info().
		Int64("slot_id", released.SlotID).
		Int64("booking_id", released.ID).
		Int64("application_id", appID).
		Msg("booking released with its application")
	return released, nil
}

// retry reruns fn while it fails with a lock conflict, up to MaxAttempts runs.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !repo.IsRetryable(err) || attempt >= e.cfg.MaxAttempts {
			return err
		}
		metrics.IncLockRetry()
		e.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("lock conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.Backoff * time.Duration(attempt)):
		}
	}
}

// ValidateRequest checks the payload against the rules of the slot kind.
func ValidateRequest(ctx context.Context, kind model.SlotKind, req ReserveRequest) error {
	verr := model.NewValidationError()
	if err := validator.Validate(ctx, req); err != nil {
		var fields *model.ValidationError
		if !errors.As(err, &fields) {
			return err
		}
		verr.Fields = append(verr.Fields, fields.Fields...)
	}

	hasLink, hasFile := req.ResumeLink != "", req.ResumeFile != ""
	switch {
	case hasLink && hasFile:
		verr.Add("resume_link", "provide either a resume link or a resume file, not both")
		verr.Add("resume_file", "provide either a resume link or a resume file, not both")
	case kind == model.SlotKindExit && !hasLink && !hasFile:
		verr.Add("resume_link", "a resume link or a resume file is required")
		verr.Add("resume_file", "a resume link or a resume file is required")
	}
	return verr.OrNil()
}

func isDomainError(err error) bool {
	for _, kind := range []error{
		model.ErrValidation,
		model.ErrNotFound,
		model.ErrInvalidState,
		model.ErrCapacityExceeded,
		model.ErrPreconditionFailed,
		model.ErrConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrCapacityExceeded):
		return "full"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidState):
		return "invalid_state"
	default:
		return "error"
	}
}
