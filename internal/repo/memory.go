package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

type memorySlot struct {
	mu      sync.Mutex
	slot    model.Slot
	removed bool
}

// memoryRepository keeps everything in maps. Lock order mirrors the Postgres
// implementation: appMu, then slot mutexes by id, then mu. mu is never held
// while waiting for a slot mutex.
type memoryRepository struct {
	appMu sync.Mutex

	mu       sync.RWMutex
	slots    map[int64]*memorySlot
	bookings map[int64]*model.Booking
	apps     map[int64]*model.Application

	nextSlotID    int64
	nextBookingID int64
	nextAppID     int64

	log *zerolog.Logger
	now func() time.Time
}

// NewMemoryRepository returns a Repository that lives in process memory. It is
// used for local runs and tests.
func NewMemoryRepository(log *zerolog.Logger) Repository {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &memoryRepository{
		slots:    make(map[int64]*memorySlot),
		bookings: make(map[int64]*model.Booking),
		apps:     make(map[int64]*model.Application),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// lockSlots locks the existing slots among ids in ascending id order.
func (m *memoryRepository) lockSlots(ids ...int64) (map[int64]*memorySlot, func()) {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	m.mu.RLock()
	found := make([]*memorySlot, 0, len(uniq))
	locked := make(map[int64]*memorySlot, len(uniq))
	for _, id := range uniq {
		if s, ok := m.slots[id]; ok {
			found = append(found, s)
			locked[id] = s
		}
	}
	m.mu.RUnlock()

	for _, s := range found {
		s.mu.Lock()
	}
	return locked, func() {
		for i := len(found) - 1; i >= 0; i-- {
			found[i].mu.Unlock()
		}
	}
}

func (m *memoryRepository) CreateSlot(_ context.Context, s *model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSlotID++
	now := m.now()
	s.ID = m.nextSlotID
	s.Booked = 0
	s.DeletedAt = nil
	s.CreatedAt, s.UpdatedAt = now, now
	m.slots[s.ID] = &memorySlot{slot: *s}
	return nil
}

func (m *memoryRepository) GetSlot(_ context.Context, id int64) (*model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, model.ErrSlotNotFound
	}
	out := s.slot
	return &out, nil
}

func (m *memoryRepository) ListSlots(_ context.Context, f model.SlotFilter) ([]model.Slot, error) {
	m.mu.RLock()
	slots := make([]model.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		sl := s.slot
		if f.Category != "" && sl.Category != f.Category {
			continue
		}
		if f.Date != "" && sl.Date != f.Date {
			continue
		}
		if f.Kind != "" && sl.Kind != f.Kind {
			continue
		}
		if !f.IncludeDeleted && sl.IsDeleted() {
			continue
		}
		slots = append(slots, sl)
	}
	m.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return slots, nil
}

func (m *memoryRepository) SoftDeleteSlot(_ context.Context, id int64) error {
	locked, unlock := m.lockSlots(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := locked[id]
	if !ok || s.removed {
		return model.ErrSlotNotFound
	}
	if s.slot.DeletedAt == nil {
		now := m.now()
		s.slot.DeletedAt = &now
		s.slot.UpdatedAt = now
	}
	return nil
}

func (m *memoryRepository) HardDeleteSlot(_ context.Context, id int64) error {
	locked, unlock := m.lockSlots(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := locked[id]
	if !ok || s.removed {
		return model.ErrSlotNotFound
	}
	if s.slot.Booked > 0 {
		return model.ErrSlotHasBookings
	}
	s.removed = true
	delete(m.slots, id)
	return nil
}

func (m *memoryRepository) UpdateSlotLimit(_ context.Context, id int64, limit int) (*model.Slot, error) {
	locked, unlock := m.lockSlots(id)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := locked[id]
	if !ok || s.removed {
		return nil, model.ErrSlotNotFound
	}
	if limit < s.slot.Booked {
		return nil, model.ErrLimitBelowBooked
	}
	s.slot.Limit = limit
	s.slot.UpdatedAt = m.now()
	out := s.slot
	return &out, nil
}

func (m *memoryRepository) GetBooking(_ context.Context, id int64) (*model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (m *memoryRepository) ListBookingsBySlot(_ context.Context, slotID int64) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.slots[slotID]; !ok {
		return nil, model.ErrSlotNotFound
	}
	bookings := make([]model.Booking, 0)
	for _, b := range m.bookings {
		if b.SlotID == slotID {
			bookings = append(bookings, *b)
		}
	}
	// ids grow with creation time.
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return bookings, nil
}

func (m *memoryRepository) UpdateBookingStatus(_ context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	if err := model.CheckBookingTransition(b, status); err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedAt = m.now()
	out := *b
	return &out, nil
}

// application returns a copy with the derived slot id filled in. Callers hold mu.
func (m *memoryRepository) application(a *model.Application) *model.Application {
	out := *a
	out.SlotID = nil
	if a.BookingID != nil {
		if b, ok := m.bookings[*a.BookingID]; ok {
			slotID := b.SlotID
			out.SlotID = &slotID
		}
	}
	return &out
}

func (m *memoryRepository) CreateApplication(_ context.Context, a *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAppID++
	now := m.now()
	a.ID = m.nextAppID
	a.Status = model.ApplicationStatusPending
	a.BookingID, a.SlotID, a.ApprovedAt = nil, nil, nil
	a.CreatedAt, a.UpdatedAt = now, now
	stored := *a
	m.apps[a.ID] = &stored
	return nil
}

func (m *memoryRepository) GetApplication(_ context.Context, id int64) (*model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.apps[id]
	if !ok {
		return nil, model.ErrApplicationNotFound
	}
	return m.application(a), nil
}

func (m *memoryRepository) ListApplications(_ context.Context, f model.ApplicationFilter) ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]model.Application, 0, len(m.apps))
	for _, a := range m.apps {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		apps = append(apps, *m.application(a))
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps, nil
}

func (m *memoryRepository) ApproveApplication(_ context.Context, id int64, at time.Time) (*model.Application, error) {
	m.appMu.Lock()
	defer m.appMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.apps[id]
	if !ok {
		return nil, model.ErrApplicationNotFound
	}
	if a.BookingID == nil {
		return nil, model.ErrNoScheduleSelected
	}
	if a.Status != model.ApplicationStatusPending {
		return nil, model.ErrApplicationNotPending
	}

	now := m.now()
	approvedAt := at
	a.Status = model.ApplicationStatusApproved
	a.ApprovedAt = &approvedAt
	a.UpdatedAt = now
	if b, ok := m.bookings[*a.BookingID]; ok && b.Status == model.BookingStatusPending {
		b.Status = model.BookingStatusApproved
		b.UpdatedAt = now
	}
	return m.application(a), nil
}

func (m *memoryRepository) ReserveTx(_ context.Context, b *model.Booking) error {
	var (
		prevBookingID *int64
		prevSlotID    int64
	)
	if b.ApplicationID != nil {
		m.appMu.Lock()
		defer m.appMu.Unlock()

		m.mu.RLock()
		a, ok := m.apps[*b.ApplicationID]
		var status model.ApplicationStatus
		if ok {
			status = a.Status
			if a.BookingID != nil {
				id := *a.BookingID
				prevBookingID = &id
				if prev, ok := m.bookings[id]; ok {
					prevSlotID = prev.SlotID
				}
			}
		}
		m.mu.RUnlock()

		if !ok {
			return model.ErrApplicationNotFound
		}
		if status != model.ApplicationStatusPending {
			return model.ErrApplicationNotPending
		}
	}

	ids := []int64{b.SlotID}
	if prevBookingID != nil {
		ids = append(ids, prevSlotID)
	}
	locked, unlock := m.lockSlots(ids...)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := locked[b.SlotID]
	if !ok || s.removed {
		return model.ErrSlotNotFound
	}
	if s.slot.IsDeleted() {
		return model.ErrSlotDeleted
	}
	booked := s.slot.Booked
	if prevBookingID != nil && prevSlotID == b.SlotID {
		booked--
	}
	if booked >= s.slot.Limit {
		return model.ErrSlotFull
	}
	var prev *memorySlot
	if prevBookingID != nil {
		prev = locked[prevSlotID]
		if prev == nil || prev.slot.Booked <= 0 {
			m.log.Error().Int64("slot_id", prevSlotID).Int64("booking_id", *prevBookingID).
				Msg("booked counter underflow on release")
			return model.ErrCounterUnderflow
		}
	}

	now := m.now()
	m.nextBookingID++
	b.ID = m.nextBookingID
	b.Kind = s.slot.Kind
	b.Status = model.BookingStatusPending
	b.CreatedAt, b.UpdatedAt = now, now
	stored := *b
	m.bookings[b.ID] = &stored

	if prevBookingID != nil {
		delete(m.bookings, *prevBookingID)
		prev.slot.Booked--
		prev.slot.UpdatedAt = now
	}
	s.slot.Booked++
	s.slot.UpdatedAt = now

	if b.ApplicationID != nil {
		a := m.apps[*b.ApplicationID]
		id := b.ID
		a.BookingID = &id
		a.UpdatedAt = now
	}
	return nil
}

func (m *memoryRepository) CancelTx(_ context.Context, bookingID int64) (*model.Booking, error) {
	m.mu.RLock()
	b, ok := m.bookings[bookingID]
	var (
		slotID int64
		appID  *int64
	)
	if ok {
		slotID, appID = b.SlotID, b.ApplicationID
	}
	m.mu.RUnlock()
	if !ok {
		return nil, model.ErrBookingNotFound
	}

	if appID != nil {
		m.appMu.Lock()
		defer m.appMu.Unlock()
	}
	locked, unlock := m.lockSlots(slotID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok = m.bookings[bookingID]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	s, ok := locked[slotID]
	if !ok || s.slot.Booked <= 0 {
		m.log.Error().Int64("slot_id", slotID).Int64("booking_id", bookingID).
			Msg("booked counter underflow on cancel")
		return nil, model.ErrCounterUnderflow
	}

	now := m.now()
	delete(m.bookings, bookingID)
	s.slot.Booked--
	s.slot.UpdatedAt = now

	if b.ApplicationID != nil {
		if a, ok := m.apps[*b.ApplicationID]; ok && a.BookingID != nil && *a.BookingID == bookingID {
			a.BookingID = nil
			a.UpdatedAt = now
		}
	}
	out := *b
	return &out, nil
}

func (m *memoryRepository) WithdrawTx(_ context.Context, appID int64) (*model.Booking, error) {
	m.appMu.Lock()
	defer m.appMu.Unlock()

	m.mu.RLock()
	a, ok := m.apps[appID]
	var (
		bookingID *int64
		slotID    int64
	)
	if ok && a.BookingID != nil {
		if b, found := m.bookings[*a.BookingID]; found {
			id := b.ID
			bookingID, slotID = &id, b.SlotID
		}
	}
	m.mu.RUnlock()
	if !ok {
		return nil, model.ErrApplicationNotFound
	}

	ids := []int64{}
	if bookingID != nil {
		ids = append(ids, slotID)
	}
	locked, unlock := m.lockSlots(ids...)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	var released *model.Booking
	if bookingID != nil {
		s, ok := locked[slotID]
		if !ok || s.slot.Booked <= 0 {
			m.log.Error().Int64("slot_id", slotID).Int64("booking_id", *bookingID).
				Msg("booked counter underflow on cancel")
			return nil, model.ErrCounterUnderflow
		}
		out := *m.bookings[*bookingID]
		released = &out
		delete(m.bookings, *bookingID)
		s.slot.Booked--
		s.slot.UpdatedAt = m.now()
	}
	delete(m.apps, appID)
	return released, nil
}
