package approval

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/metrics"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/notify"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/pkg/validator"
)

type NewApplication struct {
	FirstName  string `json:"first_name" validate:"required,max=128"`
	MiddleName string `json:"middle_name" validate:"max=128"`
	LastName   string `json:"last_name" validate:"required,max=128"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Program    string `json:"program" validate:"required,max=255"`
}

// ApprovalResult reports a committed approval. A failed notification does not
// undo it.
type ApprovalResult struct {
	Application *model.Application `json:"application"`
	Notified    bool               `json:"notified"`
	NotifyError string             `json:"notify_error,omitempty"`
}

type Workflow struct {
	repo     repo.Repository
	engine   *reservation.Engine
	notifier notify.Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWorkflow(r repo.Repository, e *reservation.Engine, n notify.Notifier, log *zerolog.Logger) *Workflow {
	return &Workflow{
		repo:     r,
		engine:   e,
		notifier: n,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Workflow) CreateApplication(ctx context.Context, in NewApplication) (*model.Application, error) {
	if err := validator.Validate(ctx, in); err != nil {
		return nil, err
	}
	a := &model.Application{
		FirstName:  in.FirstName,
		MiddleName: in.MiddleName,
		LastName:   in.LastName,
		Email:      in.Email,
		Program:    in.Program,
	}
	if err := w.repo.CreateApplication(ctx, a); err != nil {
		return nil, err
	}
	w.log.Info().Int64("application_id", a.ID).Msg("application created")
	return a, nil
}

func (w *Workflow) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	return w.repo.GetApplication(ctx, id)
}

func (w *Workflow) ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.Application, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.NewValidationError(model.FieldError{Field: "status", Error: "unknown application status"})
	}
	return w.repo.ListApplications(ctx, f)
}

// ChooseSchedule books an exam seat for the application. The seat it held
// before, if any, is released in the same transaction.
func (w *Workflow) ChooseSchedule(ctx context.Context, appID, slotID int64) (*model.Application, error) {
	app, err := w.repo.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, model.ErrApplicationNotPending
	}
	if app.SlotID != nil && *app.SlotID == slotID {
		return app, nil
	}

	slot, err := w.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Kind != model.SlotKindExam {
		return nil, model.NewValidationError(model.FieldError{Field: "slot_id", Error: "applications can only be scheduled into exam slots"})
	}

	id := app.ID
	b, err := w.engine.Reserve(ctx, slotID, reservation.ReserveRequest{
		FirstName:     app.FirstName,
		MiddleName:    app.MiddleName,
		LastName:      app.LastName,
		Department:    app.Program,
		Email:         app.Email,
		ApplicationID: &id,
	})
	if err != nil {
		return nil, err
	}
	w.log.Info().
		Int64("application_id", appID).
		Int64("slot_id", slotID).
		Int64("booking_id", b.ID).
		Msg("schedule selected")
	return w.repo.GetApplication(ctx, appID)
}

// Approve marks the application and its booking approved, then notifies the
// applicant. Notification failures are reported in the result only.
func (w *Workflow) Approve(ctx context.Context, appID int64) (*ApprovalResult, error) {
	app, err := w.repo.ApproveApplication(ctx, appID, w.now())
	if err != nil {
		return nil, err
	}
	w.log.Info().Int64("application_id", appID).Msg("application approved")

	notice := notify.Notice{
		ApplicationID: app.ID,
		Email:         app.Email,
		FirstName:     app.FirstName,
		LastName:      app.LastName,
		Program:       app.Program,
	}
	if app.ApprovedAt != nil {
		notice.ApprovedAt = *app.ApprovedAt
	}
	if app.SlotID != nil {
		if slot, err := w.repo.GetSlot(ctx, *app.SlotID); err == nil {
			notice.SlotDate, notice.SlotTime = slot.Date, slot.Time
		} else {
			w.log.Warn().Err(err).Int64("slot_id", *app.SlotID).Msg("failed to load slot for notification")
		}
	}

	res := &ApprovalResult{Application: app, Notified: true}
	if err := w.notifier.ApplicationApproved(ctx, notice); err != nil {
		res.Notified = false
		res.NotifyError = err.Error()
		w.log.Warn().Err(err).Int64("application_id", appID).Msg("failed to notify applicant")
	}
	metrics.IncApproval(res.Notified)
	return res, nil
}

// DeleteApplication removes the application and gives back the seat it holds.
func (w *Workflow) DeleteApplication(ctx context.Context, appID int64) error {
	if _, err := w.engine.Withdraw(ctx, appID); err != nil {
		return err
	}
	w.log.Info().Int64("application_id", appID).Msg("application deleted")
	return nil
}
