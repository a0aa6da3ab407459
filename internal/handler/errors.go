package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/idempotency"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// apiError はエラーレスポンスの本体です
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

var bookingStatus = map[booking.ErrCode]int{
	booking.CodeResourceNotFound:          http.StatusNotFound,
	booking.CodeReservationNotFound:       http.StatusNotFound,
	booking.CodeResourceUnavailable:       http.StatusConflict,
	booking.CodeResourceFull:              http.StatusConflict,
	booking.CodeDuplicateReservation:      http.StatusConflict,
	booking.CodeReservationNotCancellable: http.StatusConflict,
	booking.CodeCapacityBelowBooked:       http.StatusConflict,
	booking.CodeResourceHasReservations:   http.StatusConflict,
	booking.CodeInvalidSubject:            http.StatusUnprocessableEntity,
	booking.CodeInvalidCapacity:           http.StatusUnprocessableEntity,
	booking.CodeTransientConflict:         http.StatusServiceUnavailable,
	booking.CodeStorageFailure:            http.StatusInternalServerError,
}

// toAPIError はエラーをHTTPステータスとエラーコードに変換します
func toAPIError(err error) apiError {
	var bookingErr *booking.Error
	if errors.As(err, &bookingErr) {
		status, ok := bookingStatus[bookingErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		msg := bookingErr.Message
		if status >= http.StatusInternalServerError {
			msg = "booking could not be completed, please retry"
		}
		return apiError{Status: status, Code: string(bookingErr.Code), Message: msg}
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		return apiError{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: strings.Join(fields, "; ")}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return apiError{Status: httpErr.Code, Code: statusCode(httpErr.Code), Message: fmt.Sprint(httpErr.Message)}
	}

	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return apiError{Status: http.StatusConflict, Code: "EMAIL_TAKEN", Message: err.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apiError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: err.Error()}
	case errors.Is(err, auth.ErrInvalidRole):
		return apiError{Status: http.StatusBadRequest, Code: "INVALID_ROLE", Message: err.Error()}
	case errors.Is(err, auth.ErrAccountNotFound):
		return apiError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, idempotency.ErrInProgress):
		return apiError{Status: http.StatusConflict, Code: "IDEMPOTENCY_KEY_IN_USE", Message: err.Error()}
	case errors.Is(err, idempotency.ErrKeyMismatch):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "IDEMPOTENCY_KEY_MISMATCH", Message: err.Error()}
	case errors.Is(err, repository.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "resource not found"}
	case errors.Is(err, repository.ErrInUse):
		return apiError{Status: http.StatusConflict, Code: "IN_USE", Message: "resource is referenced by reservations"}
	case errors.Is(err, repository.ErrDuplicate):
		return apiError{Status: http.StatusConflict, Code: "DUPLICATE", Message: "resource already exists"}
	case errors.Is(err, context.DeadlineExceeded):
		return apiError{Status: http.StatusServiceUnavailable, Code: "TIMEOUT", Message: "request timed out"}
	}

	return apiError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal server error"}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// ErrorHandler はecho.HTTPErrorHandlerです。すべてのエラーを{"error":{code,message}}で返します
func (h *Handler) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.String("req_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.Any("error", err),
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(apiErr.Status)
	} else {
		writeErr = c.JSON(apiErr.Status, errorResponse{Error: apiErr})
	}
	if writeErr != nil {
		h.log.Error("failed to write error response", slog.Any("error", writeErr))
	}
}
