package service

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/dto"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/pkg/validator"
)

func (s *service) Book(ctx *ginext.Context) {
	slotID, ok := s.pathID(ctx)
	if !ok {
		return
	}
	var req reservation.ReserveRequest
	if !s.bindJSON(ctx, &req) {
		return
	}

	booking, err := s.engine.Reserve(ctx.Request.Context(), slotID, req)
	if err != nil {
		s.fail(ctx, err, "failed to reserve seat")
		return
	}
	dto.SuccessCreatedResponse(ctx, booking)
}

func (s *service) GetBooking(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to get booking")
		return
	}
	dto.SuccessResponse(ctx, booking)
}

func (s *service) CancelBooking(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	booking, err := s.engine.Cancel(ctx.Request.Context(), id)
	if err != nil {
		s.fail(ctx, err, "failed to cancel booking")
		return
	}
	dto.SuccessResponse(ctx, booking)
}

func (s *service) UpdateBookingStatus(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	var req dto.UpdateBookingStatusRequest
	if !s.bindJSON(ctx, &req) {
		return
	}
	if err := validator.Validate(ctx, req); err != nil {
		s.fail(ctx, err, "failed to validate booking status")
		return
	}

	booking, err := s.repo.UpdateBookingStatus(ctx, id, model.BookingStatus(req.Status))
	if err != nil {
		s.fail(ctx, err, "failed to update booking status")
		return
	}

	s.log.Info().
		Int64("booking_id", id).
		Str("status", req.Status).
		Msg("booking status updated")
	dto.SuccessResponse(ctx, booking)
}
