package api

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/cmd/middleware"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/dto"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/service"
)

type Routers struct {
	Service    service.Service
	Log        *zerolog.Logger
	AdminToken string
	// Health reports whether the storage backend is reachable. Nil means always healthy.
	Health func(ctx context.Context) error
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware(r.Log))
	app.Use(cors.New(corsConfig()))

	app.GET("/healthz", r.healthz)
	app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := middleware.AdminOnly(r.AdminToken)
	v1 := app.Group("/v1")

	slots := v1.Group("/slots")
	slots.GET("", r.Service.ListSlots)
	slots.GET("/:id", r.Service.GetSlot)
	slots.POST("/:id/book", r.Service.Book)
	slots.POST("", admin, r.Service.CreateSlot)
	slots.PATCH("/:id", admin, r.Service.UpdateSlot)
	slots.DELETE("/:id", admin, r.Service.DeleteSlot)
	slots.GET("/:id/bookings", admin, r.Service.SlotBookings)
	slots.GET("/:id/bookings/export", admin, r.Service.ExportSlotBookings)

	bookings := v1.Group("/bookings")
	bookings.GET("/:id", r.Service.GetBooking)
	bookings.DELETE("/:id", r.Service.CancelBooking)
	bookings.PATCH("/:id/status", admin, r.Service.UpdateBookingStatus)

	apps := v1.Group("/applications")
	apps.POST("", r.Service.CreateApplication)
	apps.GET("/:id", r.Service.GetApplication)
	apps.PUT("/:id/schedule", r.Service.ChooseSchedule)
	apps.GET("", admin, r.Service.ListApplications)
	apps.POST("/:id/approve", admin, r.Service.ApproveApplication)
	apps.DELETE("/:id", admin, r.Service.DeleteApplication)

	return app
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, middleware.AdminTokenHeader, middleware.RequestIDHeader)
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	return cfg
}

func (r *Routers) healthz(c *ginext.Context) {
	if r.Health != nil {
		if err := r.Health(c.Request.Context()); err != nil {
			r.Log.Error().Err(err).Msg("health check failed")
			dto.ErrorResponse(c, http.StatusServiceUnavailable, dto.ServiceUnavailable, "storage is unreachable")
			return
		}
	}
	dto.SuccessResponse(c, map[string]string{"state": "ok"})
}
