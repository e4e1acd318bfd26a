package service

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/dto"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/export"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/pkg/validator"
)

func (s *service) CreateSlot(ctx *ginext.Context) {
	var req dto.CreateSlotRequest
	if !s.bindJSON(ctx, &req) {
		return
	}
	if err := validator.Validate(ctx, req); err != nil {
		s.fail(ctx, err, "failed to validate slot")
		return
	}

	slot := &model.Slot{
		Kind:     model.SlotKind(req.Kind),
		Date:     req.Date,
		Time:     req.Time,
		Limit:    req.Limit,
		Category: req.Category,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		s.fail(ctx, err, "failed to create slot")
		return
	}
	s.cache.Invalidate(ctx)

	s.log.Info().Int64("slot_id", slot.ID).Str("kind", req.Kind).Msg("slot created")
	dto.SuccessCreatedResponse(ctx, dto.NewSlotResponse(*slot))
}

func (s *service) ListSlots(ctx *ginext.Context) {
	f := model.SlotFilter{
		Category: ctx.Query("category"),
		Date:     ctx.Query("date"),
		Kind:     model.SlotKind(ctx.Query("kind")),
	}
	verr := model.NewValidationError()
	if f.Kind != "" && !f.Kind.Valid() {
		verr.Add("kind", "unknown slot kind")
	}
	if f.Date != "" {
		form := struct {
			Date string `json:"date" validate:"date"`
		}{f.Date}
		if validator.Validate(ctx, form) != nil {
			verr.Add("date", validator.ErrInvalidDate)
		}
	}
	if raw := ctx.Query("include_deleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("include_deleted", "must be true or false")
		}
		f.IncludeDeleted = v
	}
	if err := verr.OrNil(); err != nil {
		s.fail(ctx, err, "invalid slot filter")
		return
	}

	cached, key, ok := s.cache.Get(ctx, f)
	if ok {
		dto.SuccessResponse(ctx, dto.NewSlotsResponse(cached))
		return
	}
	slots, err := s.repo.ListSlots(ctx, f)
	if err != nil {
		s.fail(ctx, err, "failed to list slots")
		return
	}
	s.cache.Set(ctx, key, slots)
	dto.SuccessResponse(ctx, dto.NewSlotsResponse(slots))
}

func (s *service) GetSlot(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to get slot")
		return
	}
	dto.SuccessResponse(ctx, dto.NewSlotResponse(*slot))
}

func (s *service) UpdateSlot(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	var req dto.UpdateSlotRequest
	if !s.bindJSON(ctx, &req) {
		return
	}
	if err := validator.Validate(ctx, req); err != nil {
		s.fail(ctx, err, "failed to validate slot update")
		return
	}

	slot, err := s.repo.UpdateSlotLimit(ctx, id, req.Limit)
	if err != nil {
		s.fail(ctx, err, "failed to update slot limit")
		return
	}
	s.cache.Invalidate(ctx)

	s.log.Info().Int64("slot_id", id).Int("limit", req.Limit).Msg("slot limit updated")
	dto.SuccessResponse(ctx, dto.NewSlotResponse(*slot))
}

func (s *service) DeleteSlot(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}

	mode := "soft"
	var err error
	if ctx.Query("hard") == "true" {
		mode = "hard"
		err = s.repo.HardDeleteSlot(ctx, id)
	} else {
		err = s.repo.SoftDeleteSlot(ctx, id)
	}
	if err != nil {
		s.fail(ctx, err, "failed to delete slot")
		return
	}
	s.cache.Invalidate(ctx)

	s.log.Info().Int64("slot_id", id).Str("mode", mode).Msg("slot deleted")
	dto.SuccessResponse(ctx, map[string]any{"id": id, "deleted": mode})
}

func (s *service) SlotBookings(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to get slot")
		return
	}
	bookings, err := s.repo.ListBookingsBySlot(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to list bookings")
		return
	}
	dto.SuccessResponse(ctx, dto.SlotBookingsResponse{
		Slot:     dto.NewSlotResponse(*slot),
		Bookings: bookings,
	})
}

func (s *service) ExportSlotBookings(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to get slot")
		return
	}
	bookings, err := s.repo.ListBookingsBySlot(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to list bookings")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteRoster(&buf, slot, bookings); err != nil {
		s.log.Error().Err(err).Int64("slot_id", id).Msg("failed to build roster")
		dto.InternalServerError(ctx)
		return
	}
	ctx.Header("Content-Disposition", `attachment; filename="`+export.FileName(slot)+`"`)
	ctx.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
