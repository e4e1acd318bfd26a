package model

import "time"

type SlotKind string

const (
	SlotKindExam SlotKind = "exam"
	SlotKindExit SlotKind = "exit"
)

func (k SlotKind) Valid() bool {
	return k == SlotKindExam || k == SlotKindExit
}

type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusFinished BookingStatus = "finished"
	BookingStatusNoShow   BookingStatus = "no_show"
)

// bookingTransitions lists the statuses a pending booking of each kind may move to.
// Every non-pending status is terminal.
var bookingTransitions = map[SlotKind][]BookingStatus{
	SlotKindExam: {BookingStatusApproved, BookingStatusNoShow},
	SlotKindExit: {BookingStatusFinished, BookingStatusNoShow},
}

// Allows reports whether a pending booking of kind k may be moved to status s.
func (k SlotKind) Allows(s BookingStatus) bool {
	for _, st := range bookingTransitions[k] {
		if st == s {
			return true
		}
	}
	return false
}

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
)

func (s ApplicationStatus) Valid() bool {
	return s == ApplicationStatusPending || s == ApplicationStatusApproved
}

type Slot struct {
	ID        int64      `db:"id" json:"id"`
	Kind      SlotKind   `db:"kind" json:"kind"`
	Date      string     `db:"slot_date" json:"date"`
	Time      string     `db:"slot_time" json:"time"`
	Limit     int        `db:"slot_limit" json:"limit"`
	Booked    int        `db:"booked" json:"booked"`
	Category  string     `db:"category" json:"category,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Available never goes below zero, even for a slot whose counter is corrupt.
func (s *Slot) Available() int {
	if s.Booked >= s.Limit {
		return 0
	}
	return s.Limit - s.Booked
}

func (s *Slot) IsDeleted() bool {
	return s.DeletedAt != nil
}

type SlotFilter struct {
	Category       string
	Date           string
	Kind           SlotKind
	IncludeDeleted bool
}

type Booking struct {
	ID            int64         `db:"id" json:"id"`
	SlotID        int64         `db:"slot_id" json:"slot_id"`
	Kind          SlotKind      `db:"kind" json:"kind"`
	FirstName     string        `db:"first_name" json:"first_name"`
	MiddleName    string        `db:"middle_name" json:"middle_name,omitempty"`
	LastName      string        `db:"last_name" json:"last_name"`
	Department    string        `db:"department" json:"department"`
	Email         string        `db:"email" json:"email,omitempty"`
	ResumeLink    string        `db:"resume_link" json:"resume_link,omitempty"`
	ResumeFile    string        `db:"resume_file" json:"resume_file,omitempty"`
	ApplicationID *int64        `db:"application_id" json:"application_id,omitempty"`
	Status        BookingStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

type Application struct {
	ID         int64             `db:"id" json:"id"`
	FirstName  string            `db:"first_name" json:"first_name"`
	MiddleName string            `db:"middle_name" json:"middle_name,omitempty"`
	LastName   string            `db:"last_name" json:"last_name"`
	Email      string            `db:"email" json:"email"`
	Program    string            `db:"program" json:"program"`
	Status     ApplicationStatus `db:"status" json:"status"`
	BookingID  *int64            `db:"booking_id" json:"booking_id,omitempty"`
	SlotID     *int64            `db:"slot_id" json:"slot_id,omitempty"`
	ApprovedAt *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}

// CheckBookingTransition validates moving b to status outside the application
// workflow.
func CheckBookingTransition(b *Booking, status BookingStatus) error {
	if !b.Kind.Allows(status) {
		return NewValidationError(FieldError{
			Field: "status",
			Error: "status " + string(status) + " is not valid for " + string(b.Kind) + " bookings",
		})
	}
	if b.Status != BookingStatusPending {
		return ErrBookingNotPending
	}
	if b.Kind == SlotKindExam && b.ApplicationID != nil {
		return ErrBookingManaged
	}
	return nil
}

func (a *Application) HasSchedule() bool {
	return a.SlotID != nil && a.BookingID != nil
}

type ApplicationFilter struct {
	Status ApplicationStatus
}
