package service

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/approval"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/cache"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/dto"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
)

type Service interface {
	CreateSlot(ctx *ginext.Context)
	ListSlots(ctx *ginext.Context)
	GetSlot(ctx *ginext.Context)
	UpdateSlot(ctx *ginext.Context)
	DeleteSlot(ctx *ginext.Context)
	SlotBookings(ctx *ginext.Context)
	ExportSlotBookings(ctx *ginext.Context)
	Book(ctx *ginext.Context)

	GetBooking(ctx *ginext.Context)
	CancelBooking(ctx *ginext.Context)
	UpdateBookingStatus(ctx *ginext.Context)

	CreateApplication(ctx *ginext.Context)
	ListApplications(ctx *ginext.Context)
	GetApplication(ctx *ginext.Context)
	ChooseSchedule(ctx *ginext.Context)
	ApproveApplication(ctx *ginext.Context)
	DeleteApplication(ctx *ginext.Context)
}

type service struct {
	repo     repo.Repository
	engine   *reservation.Engine
	workflow *approval.Workflow
	cache    *cache.SlotCache
	log      *zerolog.Logger
}

func NewService(
	repo repo.Repository,
	engine *reservation.Engine,
	workflow *approval.Workflow,
	cache *cache.SlotCache,
	logger *zerolog.Logger,
) Service {
	return &service{
		repo:     repo,
		engine:   engine,
		workflow: workflow,
		cache:    cache,
		log:      logger,
	}
}

// pathID parses the :id path parameter and writes a 400 when it is not a
// positive integer.
func (s *service) pathID(ctx *ginext.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		dto.FieldBadFormatError(ctx, "id")
		return 0, false
	}
	return id, true
}

func (s *service) bindJSON(ctx *ginext.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		s.log.Debug().Err(err).Str("path", ctx.FullPath()).Msg("failed to parse request body")
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid JSON format")
		return false
	}
	return true
}

// fail writes the error response and logs errors that are not part of the
// domain contract.
func (s *service) fail(ctx *ginext.Context, err error, msg string) {
	if !dto.DomainError(ctx, err) {
		s.log.Error().Err(err).Str("path", ctx.FullPath()).Msg(msg)
	}
}
