package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *Handler) ListNotifications(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	records, err := h.notifications.GetByCustomerID(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) MarkNotificationRead(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.notifications.UpdateIsRead(c.Request().Context(), u.ID, id, true); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
