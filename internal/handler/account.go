package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// Signup は顧客またはトレーナーを登録し、トークンを返します
func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.auth.Signup(c.Request().Context(), auth.SignupInput{
		Role:              model.Role(req.Role),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             req.Email,
		Password:          req.Password,
		Phone:             req.Phone,
		Address:           req.Address,
		Specialization:    req.Specialization,
		YearsOfExperience: req.YearsOfExperience,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.auth.Login(c.Request().Context(), model.Role(req.Role), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) GetProfile(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.auth.Profile(c.Request().Context(), u.Role, u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	update := model.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	// 種別に関係のない項目は無視する
	switch u.Role {
	case model.RoleCustomer:
		update.Phone = req.Phone
		update.Address = req.Address
	case model.RoleTrainer:
		update.Specialization = req.Specialization
		update.YearsOfExperience = req.YearsOfExperience
	}

	profile, err := h.auth.UpdateProfile(c.Request().Context(), u.Role, u.ID, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// ListTrainers はトレーナーの一覧を返します
func (h *Handler) ListTrainers(c echo.Context) error {
	trainers, err := h.trainers.ListTrainers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, trainers)
}
