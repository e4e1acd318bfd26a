package service

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/approval"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/dto"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/pkg/validator"
)

func (s *service) CreateApplication(ctx *ginext.Context) {
	var req approval.NewApplication
	if !s.bindJSON(ctx, &req) {
		return
	}
	app, err := s.workflow.CreateApplication(ctx, req)
	if err != nil {
		s.fail(ctx, err, "failed to create application")
		return
	}
	dto.SuccessCreatedResponse(ctx, app)
}

func (s *service) ListApplications(ctx *ginext.Context) {
	f := model.ApplicationFilter{Status: model.ApplicationStatus(ctx.Query("status"))}
	apps, err := s.workflow.ListApplications(ctx, f)
	if err != nil {
		s.fail(ctx, err, "failed to list applications")
		return
	}
	dto.SuccessResponse(ctx, apps)
}

func (s *service) GetApplication(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	app, err := s.workflow.GetApplication(ctx, id)
	if err != nil {
		s.fail(ctx, err, "failed to get application")
		return
	}
	dto.SuccessResponse(ctx, app)
}

func (s *service) ChooseSchedule(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	var req dto.ChooseScheduleRequest
	if !s.bindJSON(ctx, &req) {
		return
	}
	if err := validator.Validate(ctx, req); err != nil {
		s.fail(ctx, err, "failed to validate schedule")
		return
	}

	app, err := s.workflow.ChooseSchedule(ctx.Request.Context(), id, req.SlotID)
	if err != nil {
		s.fail(ctx, err, "failed to choose schedule")
		return
	}
	dto.SuccessResponse(ctx, app)
}

func (s *service) ApproveApplication(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	res, err := s.workflow.Approve(ctx.Request.Context(), id)
	if err != nil {
		s.fail(ctx, err, "failed to approve application")
		return
	}
	dto.SuccessResponse(ctx, res)
}

func (s *service) DeleteApplication(ctx *ginext.Context) {
	id, ok := s.pathID(ctx)
	if !ok {
		return
	}
	if err := s.workflow.DeleteApplication(ctx.Request.Context(), id); err != nil {
		s.fail(ctx, err, "failed to delete application")
		return
	}
	dto.SuccessResponse(ctx, map[string]any{"id": id, "deleted": true})
}
