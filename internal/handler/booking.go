package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/idempotency"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// ListBookings は顧客なら自分の予約、トレーナーなら自分のクラスの予約を返します
func (h *Handler) ListBookings(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	classID, err := optionalQueryID(c, "class_id")
	if err != nil {
		return err
	}

	filter := model.ReservationFilter{ClassID: classID}
	switch u.Role {
	case model.RoleCustomer:
		filter.CustomerID = &u.ID
	case model.RoleTrainer:
		filter.TrainerID = &u.ID
	}

	reservations, err := h.reservations.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reservations)
}

// CreateBooking はクラスへの予約を受け付けます
// Idempotency-Keyが指定された場合、同じキーの再送には最初の結果を返します
func (h *Handler) CreateBooking(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	key := c.Request().Header.Get(headerIdempotencyKey)
	scope := fmt.Sprintf("booking:%d", u.ID)
	fingerprint := idempotency.Fingerprint(strconv.FormatInt(req.ClassID, 10), strconv.FormatInt(req.PetID, 10))
	if key != "" {
		stored, err := h.idem.Begin(ctx, scope, key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInProgress), errors.Is(err, idempotency.ErrKeyMismatch):
			return err
		case err != nil:
			// Redisが使えない場合は再送の検出なしで処理を続ける
			h.log.Warn("idempotency store unavailable", slog.Any("error", err))
			key = ""
		case stored != nil:
			c.Response().Header().Set(headerReplayed, "true")
			return c.JSONBlob(stored.Status, stored.Body)
		}
	}

	reservation, err := h.booking.RequestReservation(ctx, req.ClassID, model.Subject{CustomerID: u.ID, PetID: req.PetID})
	if err != nil {
		if key != "" {
			h.finishIdempotent(c, scope, key, fingerprint, err)
		}
		return err
	}

	body, err := json.Marshal(reservation)
	if err != nil {
		return err
	}
	if key != "" {
		if err := h.idem.Save(ctx, scope, key, idempotency.Response{Status: http.StatusCreated, Body: body, Fingerprint: fingerprint}); err != nil {
			h.log.Warn("failed to save idempotent response", slog.Any("error", err))
		}
	}

	h.publish(ctx, model.NewReservationEvent(model.ReservationEventBooked, reservation, reservation.CreatedAt))
	return c.JSONBlob(http.StatusCreated, body)
}

// finishIdempotent は失敗した予約の結果を保存します
// 業務ルールによる拒否は保存し、再試行で結果が変わりうる失敗はキーを解放します
func (h *Handler) finishIdempotent(c echo.Context, scope, key, fingerprint string, cause error) {
	ctx := c.Request().Context()

	if !booking.IsRejection(cause) {
		if err := h.idem.Release(ctx, scope, key); err != nil {
			h.log.Warn("failed to release idempotency key", slog.Any("error", err))
		}
		return
	}

	apiErr := toAPIError(cause)
	body, err := json.Marshal(errorResponse{Error: apiErr})
	if err != nil {
		return
	}
	if err := h.idem.Save(ctx, scope, key, idempotency.Response{Status: apiErr.Status, Body: body, Fingerprint: fingerprint}); err != nil {
		h.log.Warn("failed to save idempotent response", slog.Any("error", err))
	}
}

// CancelBooking は自分の予約をキャンセルします。キャンセル済みの予約に対しても成功します
func (h *Handler) CancelBooking(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	reservation, changed, err := h.booking.Cancel(c.Request().Context(), id, booking.OwnedBy(u.ID))
	if err != nil {
		return err
	}
	if changed {
		h.publish(c.Request().Context(), model.NewReservationEvent(model.ReservationEventCancelled, reservation, *reservation.CancelledAt))
	}
	return c.JSON(http.StatusOK, reservation)
}
