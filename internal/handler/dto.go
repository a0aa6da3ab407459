package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

type signupRequest struct {
	Role              string  `json:"role" validate:"required,oneof=customer trainer"`
	FirstName         string  `json:"first_name" validate:"required,max=100"`
	LastName          string  `json:"last_name" validate:"required,max=100"`
	Email             string  `json:"email" validate:"required,email,max=255"`
	Password          string  `json:"password" validate:"required,min=8,maxbytes=72"`
	Phone             *string `json:"phone" validate:"omitempty,max=50"`
	Address           *string `json:"address" validate:"omitempty,max=500"`
	Specialization    *string `json:"specialization" validate:"omitempty,max=255"`
	YearsOfExperience int     `json:"years_of_experience" validate:"gte=0,lte=80"`
}

type loginRequest struct {
	Role     string `json:"role" validate:"required,oneof=customer trainer"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName         *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName          *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Phone             *string `json:"phone" validate:"omitempty,max=50"`
	Address           *string `json:"address" validate:"omitempty,max=500"`
	Specialization    *string `json:"specialization" validate:"omitempty,max=255"`
	YearsOfExperience *int    `json:"years_of_experience" validate:"omitempty,gte=0,lte=80"`
}

type petRequest struct {
	Name    string  `json:"name" validate:"required,max=100"`
	Species string  `json:"species" validate:"required,max=50"`
	Breed   *string `json:"breed" validate:"omitempty,max=100"`
}

type petUpdateRequest struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Species *string `json:"species" validate:"omitempty,min=1,max=50"`
	Breed   *string `json:"breed" validate:"omitempty,max=100"`
}

type classRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description *string         `json:"description"`
	Type        string          `json:"type" validate:"required,max=100"`
	ScheduleAt  time.Time       `json:"schedule_at" validate:"required"`
	Capacity    int             `json:"capacity" validate:"required,gt=0"`
	Price       decimal.Decimal `json:"price"`
}

type classUpdateRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description"`
	Type        *string          `json:"type" validate:"omitempty,min=1,max=100"`
	ScheduleAt  *time.Time       `json:"schedule_at"`
	Capacity    *int             `json:"capacity" validate:"omitempty,gt=0"`
	Price       *decimal.Decimal `json:"price"`
}

func (r classUpdateRequest) toUpdate() model.ClassUpdate {
	return model.ClassUpdate{
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		ScheduleAt:  r.ScheduleAt,
		Capacity:    r.Capacity,
		Price:       r.Price,
	}
}

type bookingRequest struct {
	ClassID int64 `json:"class_id" validate:"required,gt=0"`
	PetID   int64 `json:"pet_id" validate:"required,gt=0"`
}

// classView はEffectiveStatusを反映したクラスの表示形式です
type classView struct {
	model.ClassSummary
	Status    model.ClassStatus `json:"status"`
	Remaining int               `json:"remaining"`
}

func newClassView(s model.ClassSummary) classView {
	remaining := s.Capacity - s.BookedCount
	if remaining < 0 {
		remaining = 0
	}
	return classView{ClassSummary: s, Status: s.EffectiveStatus(), Remaining: remaining}
}

// newValidator はリクエストの検証に使うvalidatorを作成します
// maxはUTF-8の文字数で数えるため、bcryptの72バイト制限にはmaxbytesを使います
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	return v
}

func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// bindAndValidate はリクエストボディを読み込んで検証します
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return c.Validate(req)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func optionalQueryID(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}
