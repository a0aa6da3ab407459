package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// ListClasses はクラス一覧を返します。trainer_idとfrom(RFC3339)で絞り込めます
func (h *Handler) ListClasses(c echo.Context) error {
	trainerID, err := optionalQueryID(c, "trainer_id")
	if err != nil {
		return err
	}
	filter := repository.ClassFilter{TrainerID: trainerID}
	if raw := c.QueryParam("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		filter.From = &from
	}

	classes, err := h.classes.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	views := make([]classView, 0, len(classes))
	for _, class := range classes {
		views = append(views, newClassView(class))
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) GetClass(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	class, err := h.classes.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newClassView(*class))
}

// ClassCount は有効な予約数を返します
func (h *Handler) ClassCount(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	count, err := h.booking.CurrentCount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"class_id": id, "count": count})
}

func (h *Handler) CreateClass(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req classRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Price.IsNegative() {
		return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
	}

	class := &model.Class{
		TrainerID:   u.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		ScheduleAt:  req.ScheduleAt,
		Capacity:    req.Capacity,
		Price:       req.Price.Round(2),
		Status:      model.ClassStatusScheduled,
	}
	if err := h.classes.Create(c.Request().Context(), class); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, class)
}

func (h *Handler) UpdateClass(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req classUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	update := req.toUpdate()
	if update.IsEmpty() {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	if update.Price != nil {
		if update.Price.IsNegative() {
			return echo.NewHTTPError(http.StatusBadRequest, "price cannot be negative")
		}
		rounded := update.Price.Round(2)
		update.Price = &rounded
	}

	class, err := h.booking.UpdateClass(c.Request().Context(), id, u.ID, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, class)
}

// CancelClass はクラスをキャンセルし、残っていた予約のキャンセルイベントを発行します
func (h *Handler) CancelClass(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	class, cancelled, err := h.booking.CancelClass(c.Request().Context(), id, u.ID)
	if err != nil {
		return err
	}

	events := make([]model.ReservationEvent, 0, len(cancelled))
	for i := range cancelled {
		events = append(events, model.NewReservationEvent(model.ReservationEventCancelled, &cancelled[i], h.now()))
	}
	h.publish(c.Request().Context(), events...)

	return c.JSON(http.StatusOK, echo.Map{"class": class, "cancelled_reservations": len(cancelled)})
}

func (h *Handler) DeleteClass(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.booking.DeleteClass(c.Request().Context(), id, u.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClassRoster はクラスの予約一覧を返します。自分のクラスのみ参照できます
func (h *Handler) ClassRoster(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	class, err := h.classes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if class.TrainerID != u.ID {
		return repository.ErrNotFound
	}

	roster, err := h.reservations.List(ctx, model.ReservationFilter{ClassID: &id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"class": newClassView(*class), "reservations": roster})
}
