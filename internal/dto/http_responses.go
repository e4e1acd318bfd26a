package dto

import (
	"errors"
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	SlotNotFound        = "SLOT_NOT_FOUND"
	BookingNotFound     = "BOOKING_NOT_FOUND"
	ApplicationNotFound = "APPLICATION_NOT_FOUND"
	NotFound            = "NOT_FOUND"
	InvalidState        = "INVALID_STATE"
	SlotFull            = "SLOT_FULL"
	NoScheduleSelected  = "NO_SCHEDULE_SELECTED"
	Conflict            = "CONFLICT"
	Unauthorized        = "UNAUTHORIZED"

	SlotFullDesc = "this slot is full, choose another"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code   string            `json:"code"`
	Desc   string            `json:"desc"`
	Fields map[string]string `json:"fields,omitempty"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func ValidationErrorResponse(c *ginext.Context, verr *model.ValidationError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Status: "error",
		Error: &Error{
			Code:   FieldIncorrect,
			Desc:   "Request validation failed",
			Fields: verr.FieldMap(),
		},
	})
}

// DomainError writes the response for err and reports whether it was a domain
// error. Anything else becomes a 500 and the caller is expected to log it.
func DomainError(c *ginext.Context, err error) bool {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		ValidationErrorResponse(c, verr)
	case errors.Is(err, model.ErrSlotNotFound):
		ErrorResponse(c, http.StatusNotFound, SlotNotFound, "Slot not found")
	case errors.Is(err, model.ErrBookingNotFound):
		ErrorResponse(c, http.StatusNotFound, BookingNotFound, "Booking not found")
	case errors.Is(err, model.ErrApplicationNotFound):
		ErrorResponse(c, http.StatusNotFound, ApplicationNotFound, "Application not found")
	case errors.Is(err, model.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, NotFound, err.Error())
	case errors.Is(err, model.ErrCapacityExceeded):
		ErrorResponse(c, http.StatusConflict, SlotFull, SlotFullDesc)
	case errors.Is(err, model.ErrInvalidState):
		ErrorResponse(c, http.StatusConflict, InvalidState, err.Error())
	case errors.Is(err, model.ErrPreconditionFailed):
		ErrorResponse(c, http.StatusPreconditionFailed, NoScheduleSelected, "No schedule selected")
	case errors.Is(err, model.ErrConflict):
		ErrorResponse(c, http.StatusConflict, Conflict, err.Error())
	case errors.Is(err, model.ErrValidation):
		ErrorResponse(c, http.StatusBadRequest, FieldIncorrect, err.Error())
	default:
		InternalServerError(c)
		return false
	}
	return true
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
