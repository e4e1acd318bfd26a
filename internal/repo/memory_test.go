package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

func newSlot(t *testing.T, r Repository, kind model.SlotKind, category, date, clock string, limit int) *model.Slot {
	t.Helper()
	s := &model.Slot{Kind: kind, Category: category, Date: date, Time: clock, Limit: limit}
	require.NoError(t, r.CreateSlot(context.Background(), s))
	return s
}

func TestMemory_ListSlotsOrderAndFilter(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	c := newSlot(t, r, model.SlotKindExam, "nursing", "2025-03-10", "08:00", 5)
	b := newSlot(t, r, model.SlotKindExam, "engineering", "2025-03-11", "09:00", 5)
	a := newSlot(t, r, model.SlotKindExit, "engineering", "2025-03-10", "13:30", 5)
	d := newSlot(t, r, model.SlotKindExam, "engineering", "2025-03-10", "09:00", 5)

	slots, err := r.ListSlots(ctx, model.SlotFilter{})
	require.NoError(t, err)
	var ids []int64
	for _, s := range slots {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{d.ID, a.ID, b.ID, c.ID}, ids)

	slots, err = r.ListSlots(ctx, model.SlotFilter{Category: "engineering", Date: "2025-03-10", Kind: model.SlotKindExit})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, a.ID, slots[0].ID)

	require.NoError(t, r.SoftDeleteSlot(ctx, a.ID))
	slots, _ = r.ListSlots(ctx, model.SlotFilter{Category: "engineering"})
	assert.Len(t, slots, 2)
	slots, _ = r.ListSlots(ctx, model.SlotFilter{Category: "engineering", IncludeDeleted: true})
	assert.Len(t, slots, 3)
}

func TestMemory_SlotDeletion(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	s := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 1)

	require.NoError(t, r.ReserveTx(ctx, &model.Booking{SlotID: s.ID, FirstName: "A", LastName: "B", Department: "C"}))

	assert.ErrorIs(t, r.HardDeleteSlot(ctx, s.ID), model.ErrSlotHasBookings)
	require.NoError(t, r.SoftDeleteSlot(ctx, s.ID))
	require.NoError(t, r.SoftDeleteSlot(ctx, s.ID))

	got, err := r.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
	bookings, err := r.ListBookingsBySlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	err = r.ReserveTx(ctx, &model.Booking{SlotID: s.ID})
	assert.ErrorIs(t, err, model.ErrSlotDeleted)

	empty := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "10:00", 1)
	require.NoError(t, r.HardDeleteSlot(ctx, empty.ID))
	_, err = r.GetSlot(ctx, empty.ID)
	assert.ErrorIs(t, err, model.ErrSlotNotFound)

	assert.ErrorIs(t, r.SoftDeleteSlot(ctx, 404), model.ErrSlotNotFound)
	_, err = r.ListBookingsBySlot(ctx, 404)
	assert.ErrorIs(t, err, model.ErrSlotNotFound)
}

func TestMemory_UpdateSlotLimit(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	s := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 2)
	for i := 0; i < 2; i++ {
		require.NoError(t, r.ReserveTx(ctx, &model.Booking{SlotID: s.ID}))
	}

	_, err := r.UpdateSlotLimit(ctx, s.ID, 1)
	assert.ErrorIs(t, err, model.ErrLimitBelowBooked)
	assert.ErrorIs(t, err, model.ErrConflict)

	got, err := r.UpdateSlotLimit(ctx, s.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Limit)
	assert.Equal(t, 0, got.Available())

	got, err = r.UpdateSlotLimit(ctx, s.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Available())
}

func TestMemory_BookingStatus(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	exam := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 3)

	b := &model.Booking{SlotID: exam.ID}
	require.NoError(t, r.ReserveTx(ctx, b))
	assert.Equal(t, model.SlotKindExam, b.Kind)

	_, err := r.UpdateBookingStatus(ctx, b.ID, model.BookingStatusFinished)
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := r.UpdateBookingStatus(ctx, b.ID, model.BookingStatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusNoShow, got.Status)

	_, err = r.UpdateBookingStatus(ctx, b.ID, model.BookingStatusApproved)
	assert.ErrorIs(t, err, model.ErrBookingNotPending)

	slot, _ := r.GetSlot(ctx, exam.ID)
	assert.Equal(t, 1, slot.Booked)

	app := &model.Application{FirstName: "A", LastName: "B", Email: "a@b.c", Program: "P"}
	require.NoError(t, r.CreateApplication(ctx, app))
	linked := &model.Booking{SlotID: exam.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, linked))
	_, err = r.UpdateBookingStatus(ctx, linked.ID, model.BookingStatusApproved)
	assert.ErrorIs(t, err, model.ErrBookingManaged)
}

func TestMemory_ReserveReplacesApplicationBooking(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	full := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 1)
	other := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "09:00", 1)

	app := &model.Application{FirstName: "A", LastName: "B", Email: "a@b.c", Program: "P"}
	require.NoError(t, r.CreateApplication(ctx, app))

	first := &model.Booking{SlotID: full.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, first))

	// Re-reserving the slot the application already holds fits even at the limit.
	again := &model.Booking{SlotID: full.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, again))
	s, _ := r.GetSlot(ctx, full.ID)
	assert.Equal(t, 1, s.Booked)
	_, err := r.GetBooking(ctx, first.ID)
	assert.ErrorIs(t, err, model.ErrBookingNotFound)

	moved := &model.Booking{SlotID: other.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, moved))
	s, _ = r.GetSlot(ctx, full.ID)
	assert.Equal(t, 0, s.Booked)
	s, _ = r.GetSlot(ctx, other.ID)
	assert.Equal(t, 1, s.Booked)

	got, err := r.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SlotID)
	assert.Equal(t, other.ID, *got.SlotID)
	assert.Equal(t, moved.ID, *got.BookingID)

	_, err = r.ApproveApplication(ctx, app.ID, time.Now())
	require.NoError(t, err)
	err = r.ReserveTx(ctx, &model.Booking{SlotID: full.ID, ApplicationID: &app.ID})
	assert.ErrorIs(t, err, model.ErrApplicationNotPending)

	missing := int64(77)
	err = r.ReserveTx(ctx, &model.Booking{SlotID: full.ID, ApplicationID: &missing})
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
}

func TestMemory_CancelTx(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	s := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 2)

	app := &model.Application{FirstName: "A", LastName: "B", Email: "a@b.c", Program: "P"}
	require.NoError(t, r.CreateApplication(ctx, app))
	b := &model.Booking{SlotID: s.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, b))

	cancelled, err := r.CancelTx(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, cancelled.ID)

	got, _ := r.GetSlot(ctx, s.ID)
	assert.Equal(t, 0, got.Booked)
	a, _ := r.GetApplication(ctx, app.ID)
	assert.Nil(t, a.BookingID)

	_, err = r.CancelTx(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestMemory_WithdrawTx(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	s := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 1)

	empty := &model.Application{FirstName: "A", LastName: "B", Email: "a@b.c", Program: "P"}
	require.NoError(t, r.CreateApplication(ctx, empty))
	released, err := r.WithdrawTx(ctx, empty.ID)
	require.NoError(t, err)
	assert.Nil(t, released)

	app := &model.Application{FirstName: "C", LastName: "D", Email: "c@d.e", Program: "P"}
	require.NoError(t, r.CreateApplication(ctx, app))
	b := &model.Booking{SlotID: s.ID, ApplicationID: &app.ID}
	require.NoError(t, r.ReserveTx(ctx, b))

	released, err = r.WithdrawTx(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.Equal(t, b.ID, released.ID)

	got, _ := r.GetSlot(ctx, s.ID)
	assert.Equal(t, 0, got.Booked)
	_, err = r.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
	_, err = r.GetApplication(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)

	_, err = r.WithdrawTx(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrApplicationNotFound)
}

func TestMemory_WithdrawRacesScheduleChange(t *testing.T) {
	r := NewMemoryRepository(nil)
	ctx := context.Background()
	first := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "08:00", 100)
	second := newSlot(t, r, model.SlotKindExam, "", "2025-03-10", "09:00", 100)

	for i := 0; i < 50; i++ {
		app := &model.Application{FirstName: "A", LastName: "B", Email: "a@b.c", Program: "P"}
		require.NoError(t, r.CreateApplication(ctx, app))
		require.NoError(t, r.ReserveTx(ctx, &model.Booking{SlotID: first.ID, ApplicationID: &app.ID}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.WithdrawTx(ctx, app.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			err := r.ReserveTx(ctx, &model.Booking{SlotID: second.ID, ApplicationID: &app.ID})
			if err != nil {
				assert.ErrorIs(t, err, model.ErrApplicationNotFound)
			}
		}()
		wg.Wait()
	}

	// Every withdrawal won in the end, so no seat may remain taken.
	for _, id := range []int64{first.ID, second.ID} {
		s, err := r.GetSlot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Booked)
		bookings, err := r.ListBookingsBySlot(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, bookings)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, IsRetryable(errors.Join(errors.New("tx"), &pq.Error{Code: "55P03"})))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, IsRetryable(model.ErrSlotFull))
	assert.False(t, IsRetryable(nil))
}
