package dto

import (
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

type CreateSlotRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=exam exit"`
	Date     string `json:"date" validate:"required,date"`
	Time     string `json:"time" validate:"required,clock"`
	Limit    int    `json:"limit" validate:"positive"`
	Category string `json:"category" validate:"max=128"`
}

type UpdateSlotRequest struct {
	Limit int `json:"limit" validate:"positive"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved finished no_show"`
}

type ChooseScheduleRequest struct {
	SlotID int64 `json:"slot_id" validate:"positive"`
}

type SlotResponse struct {
	model.Slot
	Available int `json:"available"`
}

func NewSlotResponse(s model.Slot) SlotResponse {
	return SlotResponse{Slot: s, Available: s.Available()}
}

func NewSlotsResponse(slots []model.Slot) []SlotResponse {
	resp := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, NewSlotResponse(s))
	}
	return resp
}

type SlotBookingsResponse struct {
	Slot     SlotResponse    `json:"slot"`
	Bookings []model.Booking `json:"bookings"`
}
