package reservation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
)

func newEngine(t *testing.T) (*Engine, repo.Repository) {
	t.Helper()
	log := zerolog.Nop()
	r := repo.NewMemoryRepository(&log)
	return NewEngine(r, nil, &log, Config{Backoff: time.Millisecond}), r
}

func createSlot(t *testing.T, r repo.Repository, kind model.SlotKind, limit int) *model.Slot {
	t.Helper()
	s := &model.Slot{Kind: kind, Date: "2025-03-10", Time: "09:00", Limit: limit, Category: "engineering"}
	require.NoError(t, r.CreateSlot(context.Background(), s))
	return s
}

func examRequest(name string) ReserveRequest {
	return ReserveRequest{FirstName: name, LastName: "Cruz", Department: "Engineering", Email: name + "@example.com"}
}

func TestReserve_HappyPath(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	slot := createSlot(t, r, model.SlotKindExam, 2)

	b, err := e.Reserve(ctx, slot.ID, examRequest("ana"))
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, model.SlotKindExam, b.Kind)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := r.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Booked)
	assert.Equal(t, 1, got.Available())
}

func TestReserve_FullSlot(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	slot := createSlot(t, r, model.SlotKindExam, 1)

	_, err := e.Reserve(ctx, slot.ID, examRequest("ana"))
	require.NoError(t, err)

	_, err = e.Reserve(ctx, slot.ID, examRequest("ben"))
	require.ErrorIs(t, err, model.ErrSlotFull)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	bookings, err := r.ListBookingsBySlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	got, _ := r.GetSlot(ctx, slot.ID)
	assert.Equal(t, 1, got.Booked)
}

func TestReserve_ConcurrentLastSeat(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	slot := createSlot(t, r, model.SlotKindExam, 1)

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		full    atomic.Int32
		start   = make(chan struct{})
		callers = 2
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.Reserve(ctx, slot.ID, examRequest("racer"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrSlotFull):
				full.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), full.Load())
	got, _ := r.GetSlot(ctx, slot.ID)
	assert.Equal(t, 1, got.Booked)
}

func TestReserve_ConcurrentNeverOverbooks(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	const limit, callers = 5, 40
	slot := createSlot(t, r, model.SlotKindExam, limit)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Reserve(ctx, slot.ID, examRequest("racer")); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), ok.Load())
	got, _ := r.GetSlot(ctx, slot.ID)
	assert.Equal(t, limit, got.Booked)
	bookings, _ := r.ListBookingsBySlot(ctx, slot.ID)
	assert.Len(t, bookings, limit)
}

func TestCancel_FreesSeat(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	slot := createSlot(t, r, model.SlotKindExam, 3)

	var ids []int64
	for _, name := range []string{"ana", "ben", "cai"} {
		b, err := e.Reserve(ctx, slot.ID, examRequest(name))
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	_, err := e.Reserve(ctx, slot.ID, examRequest("dan"))
	require.ErrorIs(t, err, model.ErrSlotFull)

	cancelled, err := e.Cancel(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], cancelled.ID)
	got, _ := r.GetSlot(ctx, slot.ID)
	assert.Equal(t, 2, got.Booked)

	_, err = r.GetBooking(ctx, ids[1])
	assert.ErrorIs(t, err, model.ErrBookingNotFound)

	_, err = e.Reserve(ctx, slot.ID, examRequest("dan"))
	require.NoError(t, err)
	got, _ = r.GetSlot(ctx, slot.ID)
	assert.Equal(t, 3, got.Booked)
}

func TestCancel_Missing(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Cancel(context.Background(), 42)
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestReserve_SlotStates(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()

	_, err := e.Reserve(ctx, 99, examRequest("ana"))
	assert.ErrorIs(t, err, model.ErrSlotNotFound)

	slot := createSlot(t, r, model.SlotKindExam, 2)
	require.NoError(t, r.SoftDeleteSlot(ctx, slot.ID))
	_, err = e.Reserve(ctx, slot.ID, examRequest("ana"))
	assert.ErrorIs(t, err, model.ErrSlotDeleted)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestReserve_ExitNeedsExactlyOneResume(t *testing.T) {
	e, r := newEngine(t)
	ctx := context.Background()
	slot := createSlot(t, r, model.SlotKindExit, 5)

	req := ReserveRequest{FirstName: "Lea", LastName: "Santos", Department: "Nursing"}
	_, err := e.Reserve(ctx, slot.ID, req)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "resume_link")
	assert.Contains(t, verr.FieldMap(), "resume_file")

	req.ResumeLink = "https://drive.example.com/resume.pdf"
	req.ResumeFile = "resume.pdf"
	_, err = e.Reserve(ctx, slot.ID, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req.ResumeFile = ""
	b, err := e.Reserve(ctx, slot.ID, req)
	require.NoError(t, err)
	assert.Equal(t, model.SlotKindExit, b.Kind)

	got, _ := r.GetSlot(ctx, slot.ID)
	assert.Equal(t, 1, got.Booked)
}

func TestReserve_RequiredFields(t *testing.T) {
	e, r := newEngine(t)
	slot := createSlot(t, r, model.SlotKindExam, 5)

	_, err := e.Reserve(context.Background(), slot.ID, ReserveRequest{Email: "not-an-email"})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := verr.FieldMap()
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "last_name")
	assert.Contains(t, fields, "department")
	assert.Contains(t, fields, "email")
	assert.NotContains(t, fields, "resume_link")
}

// flakyReserver fails the first n reservations with a lock conflict.
type flakyReserver struct {
	repo.Repository
	failures atomic.Int32
	calls    atomic.Int32
	code     pq.ErrorCode
}

func (f *flakyReserver) ReserveTx(ctx context.Context, b *model.Booking) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return &pq.Error{Code: f.code}
	}
	return f.Repository.ReserveTx(ctx, b)
}

func TestReserve_RetriesLockConflicts(t *testing.T) {
	log := zerolog.Nop()
	mem := repo.NewMemoryRepository(&log)
	flaky := &flakyReserver{Repository: mem, code: "40001"}
	flaky.failures.Store(2)
	e := NewEngine(flaky, nil, &log, Config{MaxAttempts: 3, Backoff: time.Millisecond})
	slot := createSlot(t, mem, model.SlotKindExam, 1)

	b, err := e.Reserve(context.Background(), slot.ID, examRequest("ana"))
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestReserve_GivesUpAfterMaxAttempts(t *testing.T) {
	log := zerolog.Nop()
	mem := repo.NewMemoryRepository(&log)
	flaky := &flakyReserver{Repository: mem, code: "40P01"}
	flaky.failures.Store(10)
	e := NewEngine(flaky, nil, &log, Config{MaxAttempts: 3, Backoff: time.Millisecond})
	slot := createSlot(t, mem, model.SlotKindExam, 1)

	_, err := e.Reserve(context.Background(), slot.ID, examRequest("ana"))
	require.Error(t, err)
	assert.True(t, repo.IsRetryable(err))
	assert.Equal(t, int32(3), flaky.calls.Load())

	got, _ := mem.GetSlot(context.Background(), slot.ID)
	assert.Equal(t, 0, got.Booked)
}

func TestReserve_CapacityIsNotRetried(t *testing.T) {
	log := zerolog.Nop()
	mem := repo.NewMemoryRepository(&log)
	flaky := &flakyReserver{Repository: mem}
	e := NewEngine(flaky, nil, &log, Config{MaxAttempts: 3, Backoff: time.Millisecond})
	slot := createSlot(t, mem, model.SlotKindExam, 1)

	_, err := e.Reserve(context.Background(), slot.ID, examRequest("ana"))
	require.NoError(t, err)
	_, err = e.Reserve(context.Background(), slot.ID, examRequest("ben"))
	require.ErrorIs(t, err, model.ErrSlotFull)
	assert.Equal(t, int32(2), flaky.calls.Load())
}
