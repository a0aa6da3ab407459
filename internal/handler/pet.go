package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

func (h *Handler) ListPets(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	pets, err := h.pets.ListByCustomer(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pets)
}

func (h *Handler) CreatePet(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req petRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	pet := &model.Pet{CustomerID: u.ID, Name: req.Name, Species: req.Species, Breed: req.Breed}
	if err := h.pets.Create(c.Request().Context(), pet); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pet)
}

// ownedPet は自分のペットを取得します。他の顧客のペットは存在しないものとして扱います
func (h *Handler) ownedPet(c echo.Context, customerID int64) (*model.Pet, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	pet, err := h.pets.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if pet.CustomerID != customerID {
		return nil, repository.ErrNotFound
	}
	return pet, nil
}

func (h *Handler) UpdatePet(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req petUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	update := model.PetUpdate{Name: req.Name, Species: req.Species, Breed: req.Breed}
	if update.IsEmpty() {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}

	pet, err := h.ownedPet(c, u.ID)
	if err != nil {
		return err
	}
	if update.Name != nil {
		pet.Name = *update.Name
	}
	if update.Species != nil {
		pet.Species = *update.Species
	}
	if update.Breed != nil {
		pet.Breed = update.Breed
	}

	if err := h.pets.Update(c.Request().Context(), pet); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pet)
}

// DeletePet は予約に使われていないペットを削除します
func (h *Handler) DeletePet(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	pet, err := h.ownedPet(c, u.ID)
	if err != nil {
		return err
	}
	if err := h.pets.Delete(c.Request().Context(), u.ID, pet.ID); err != nil {
		if errors.Is(err, repository.ErrInUse) {
			return echo.NewHTTPError(http.StatusConflict, "pet has reservations and cannot be deleted")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
