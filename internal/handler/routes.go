package handler

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// NewServer はミドルウェアとルートを登録したechoを返します
func NewServer(h *Handler, requestTimeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.ErrorHandler
	e.Validator = h

	e.Use(middleware.Recover())
	e.Use(requestID())
	e.Use(h.requestLog())
	if requestTimeout > 0 {
		e.Use(middleware.ContextTimeout(requestTimeout))
	}

	Register(e, h)
	return e
}

// Register はルートを登録します
func Register(e *echo.Echo, h *Handler) {
	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}

	// グループにミドルウェアを付けるとechoが404用のルートを追加し、未知のパスでも認証が走る
	// そのため認証はルート単位で指定する
	api := e.Group("/api")
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)

	auth := h.authenticate()
	customer := requireRole(model.RoleCustomer)
	trainer := requireRole(model.RoleTrainer)

	api.GET("/profile", h.GetProfile, auth)
	api.PUT("/profile", h.UpdateProfile, auth)

	api.GET("/trainers", h.ListTrainers, auth)

	api.GET("/pets", h.ListPets, auth, customer)
	api.POST("/pets", h.CreatePet, auth, customer)
	api.PUT("/pets/:id", h.UpdatePet, auth, customer)
	api.DELETE("/pets/:id", h.DeletePet, auth, customer)

	api.GET("/classes", h.ListClasses, auth)
	api.GET("/classes/:id", h.GetClass, auth)
	api.GET("/classes/:id/count", h.ClassCount, auth)
	api.POST("/classes", h.CreateClass, auth, trainer)
	api.PUT("/classes/:id", h.UpdateClass, auth, trainer)
	api.POST("/classes/:id/cancel", h.CancelClass, auth, trainer)
	api.DELETE("/classes/:id", h.DeleteClass, auth, trainer)
	api.GET("/classes/:id/roster", h.ClassRoster, auth, trainer)

	api.GET("/bookings", h.ListBookings, auth)
	api.POST("/bookings", h.CreateBooking, auth, customer)
	api.POST("/bookings/:id/cancel", h.CancelBooking, auth, customer)

	api.GET("/notifications", h.ListNotifications, auth, customer)
	api.PUT("/notifications/:id/read", h.MarkNotificationRead, auth, customer)
}

// Validate はecho.Validatorを実装します
func (h *Handler) Validate(i interface{}) error {
	return h.validate.Struct(i)
}
