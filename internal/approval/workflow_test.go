package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/notify"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) ApplicationApproved(ctx context.Context, n notify.Notice) error {
	return m.Called(ctx, n).Error(0)
}

type fixture struct {
	repo     repo.Repository
	notifier *mockNotifier
	wf       *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	r := repo.NewMemoryRepository(&log)
	e := reservation.NewEngine(r, nil, &log, reservation.Config{Backoff: time.Millisecond})
	n := new(mockNotifier)
	return &fixture{repo: r, notifier: n, wf: NewWorkflow(r, e, n, &log)}
}

func (f *fixture) slot(t *testing.T, kind model.SlotKind, limit int) *model.Slot {
	t.Helper()
	s := &model.Slot{Kind: kind, Date: "2025-04-02", Time: "13:00", Limit: limit}
	require.NoError(t, f.repo.CreateSlot(context.Background(), s))
	return s
}

func (f *fixture) application(t *testing.T) *model.Application {
	t.Helper()
	a, err := f.wf.CreateApplication(context.Background(), NewApplication{
		FirstName: "Ana", LastName: "Reyes", Email: "ana@example.com", Program: "BS Biology",
	})
	require.NoError(t, err)
	return a
}

func TestCreateApplication_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.CreateApplication(context.Background(), NewApplication{FirstName: "Ana"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "email")
	assert.Contains(t, verr.FieldMap(), "program")
}

func TestApprove_WithoutSchedule(t *testing.T) {
	f := newFixture(t)
	app := f.application(t)

	_, err := f.wf.Approve(context.Background(), app.ID)
	require.ErrorIs(t, err, model.ErrNoScheduleSelected)
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)

	got, err := f.wf.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusPending, got.Status)
	f.notifier.AssertNotCalled(t, "ApplicationApproved", mock.Anything, mock.Anything)
}

func TestApprove_Missing(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.Approve(context.Background(), 404)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
}

func TestApprove_NotifiesApplicant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, model.SlotKindExam, 2)
	app := f.application(t)

	_, err := f.wf.ChooseSchedule(ctx, app.ID, slot.ID)
	require.NoError(t, err)

	f.notifier.On("ApplicationApproved", mock.Anything, mock.MatchedBy(func(n notify.Notice) bool {
		return n.ApplicationID == app.ID && n.SlotDate == "2025-04-02" && n.SlotTime == "13:00"
	})).Return(nil).Once()

	res, err := f.wf.Approve(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Empty(t, res.NotifyError)
	assert.Equal(t, model.ApplicationStatusApproved, res.Application.Status)
	require.NotNil(t, res.Application.ApprovedAt)
	f.notifier.AssertExpectations(t)

	b, err := f.repo.GetBooking(ctx, *res.Application.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusApproved, b.Status)

	_, err = f.wf.Approve(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotPending)
}

func TestApprove_NotificationFailureKeepsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, model.SlotKindExam, 1)
	app := f.application(t)
	_, err := f.wf.ChooseSchedule(ctx, app.ID, slot.ID)
	require.NoError(t, err)

	f.notifier.On("ApplicationApproved", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	res, err := f.wf.Approve(ctx, app.ID)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Equal(t, "smtp down", res.NotifyError)

	got, err := f.wf.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusApproved, got.Status)
}

func TestChooseSchedule_ReplacesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.slot(t, model.SlotKindExam, 1)
	second := f.slot(t, model.SlotKindExam, 1)
	app := f.application(t)

	got, err := f.wf.ChooseSchedule(ctx, app.ID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SlotID)
	assert.Equal(t, first.ID, *got.SlotID)

	// Choosing the same slot again is a no-op.
	again, err := f.wf.ChooseSchedule(ctx, app.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.BookingID, *again.BookingID)

	got, err = f.wf.ChooseSchedule(ctx, app.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *got.SlotID)

	s1, _ := f.repo.GetSlot(ctx, first.ID)
	s2, _ := f.repo.GetSlot(ctx, second.ID)
	assert.Equal(t, 0, s1.Booked)
	assert.Equal(t, 1, s2.Booked)
}

func TestChooseSchedule_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exit := f.slot(t, model.SlotKindExit, 3)
	full := f.slot(t, model.SlotKindExam, 1)
	app := f.application(t)
	other := f.application(t)

	_, err := f.wf.ChooseSchedule(ctx, app.ID, exit.ID)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.wf.ChooseSchedule(ctx, other.ID, full.ID)
	require.NoError(t, err)
	_, err = f.wf.ChooseSchedule(ctx, app.ID, full.ID)
	assert.ErrorIs(t, err, model.ErrSlotFull)

	_, err = f.wf.ChooseSchedule(ctx, 999, full.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
}

func TestCancelClearsSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, model.SlotKindExam, 1)
	app := f.application(t)
	got, err := f.wf.ChooseSchedule(ctx, app.ID, slot.ID)
	require.NoError(t, err)

	e := reservation.NewEngine(f.repo, nil, f.wf.log, reservation.Config{})
	_, err = e.Cancel(ctx, *got.BookingID)
	require.NoError(t, err)

	got, err = f.wf.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Nil(t, got.BookingID)
	assert.Nil(t, got.SlotID)

	_, err = f.wf.Approve(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrNoScheduleSelected)
}

func TestDeleteApplication_ReleasesSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, model.SlotKindExam, 1)
	app := f.application(t)
	_, err := f.wf.ChooseSchedule(ctx, app.ID, slot.ID)
	require.NoError(t, err)

	require.NoError(t, f.wf.DeleteApplication(ctx, app.ID))

	s, _ := f.repo.GetSlot(ctx, slot.ID)
	assert.Equal(t, 0, s.Booked)
	_, err = f.wf.GetApplication(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
	assert.ErrorIs(t, f.wf.DeleteApplication(ctx, app.ID), model.ErrApplicationNotFound)
}

func TestDeleteApplication_WithoutSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.application(t)

	require.NoError(t, f.wf.DeleteApplication(ctx, app.ID))
	_, err := f.wf.GetApplication(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
}

func TestListApplications_StatusFilter(t *testing.T) {
	f := newFixture(t)
	f.application(t)

	apps, err := f.wf.ListApplications(context.Background(), model.ApplicationFilter{Status: model.ApplicationStatusPending})
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	_, err = f.wf.ListApplications(context.Background(), model.ApplicationFilter{Status: "lost"})
	assert.ErrorIs(t, err, model.ErrValidation)
}
