package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// PetRepository はペット情報の永続化を担当するインターフェースです
type PetRepository interface {
	Create(ctx context.Context, pet *model.Pet) error
	ListByCustomer(ctx context.Context, customerID int64) ([]model.Pet, error)
	GetByID(ctx context.Context, petID int64) (*model.Pet, error)
	Update(ctx context.Context, pet *model.Pet) error
	Delete(ctx context.Context, customerID, petID int64) error
	GetNamesByIDs(ctx context.Context, petIDs []int64) (map[int64]string, error)
}

// PetRepositoryImpl はPetRepositoryの実装です
type PetRepositoryImpl struct {
	db *DB
}

// NewPetRepository は新しいPetRepositoryを作成します
func NewPetRepository(db *DB) *PetRepositoryImpl {
	return &PetRepositoryImpl{
		db: db,
	}
}

const petColumns = `id, customer_id, name, species, breed`

func (r *PetRepositoryImpl) Create(ctx context.Context, pet *model.Pet) error {
	query := `
		INSERT INTO pets (customer_id, name, species, breed)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.getContext(ctx, "PetRepository.Create", &pet.ID, query, pet.CustomerID, pet.Name, pet.Species, pet.Breed); err != nil {
		return fmt.Errorf("failed to create pet: %w", err)
	}
	return nil
}

func (r *PetRepositoryImpl) ListByCustomer(ctx context.Context, customerID int64) ([]model.Pet, error) {
	pets := []model.Pet{}
	query := `SELECT ` + petColumns + ` FROM pets WHERE customer_id = $1 ORDER BY id`
	if err := r.db.selectContext(ctx, "PetRepository.ListByCustomer", &pets, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to list pets: %w", err)
	}
	return pets, nil
}

func (r *PetRepositoryImpl) GetByID(ctx context.Context, petID int64) (*model.Pet, error) {
	var pet model.Pet
	query := `SELECT ` + petColumns + ` FROM pets WHERE id = $1`
	if err := r.db.getContext(ctx, "PetRepository.GetByID", &pet, query, petID); err != nil {
		return nil, fmt.Errorf("failed to get pet %d: %w", petID, err)
	}
	return &pet, nil
}

// Update は飼い主が一致するペットのみ更新します
func (r *PetRepositoryImpl) Update(ctx context.Context, pet *model.Pet) error {
	query := `
		UPDATE pets
		SET name = $1, species = $2, breed = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND customer_id = $5`
	if err := r.db.execContext(ctx, "PetRepository.Update", true, query, pet.Name, pet.Species, pet.Breed, pet.ID, pet.CustomerID); err != nil {
		return fmt.Errorf("failed to update pet %d: %w", pet.ID, err)
	}
	return nil
}

// Delete は飼い主が一致するペットのみ削除します
// 予約が残っているペットは外部キー制約で削除できません
func (r *PetRepositoryImpl) Delete(ctx context.Context, customerID, petID int64) error {
	query := `DELETE FROM pets WHERE id = $1 AND customer_id = $2`
	if err := r.db.execContext(ctx, "PetRepository.Delete", true, query, petID, customerID); err != nil {
		return fmt.Errorf("failed to delete pet %d: %w", petID, err)
	}
	return nil
}

// GetNamesByIDs は指定されたペットIDのペット名をまとめて取得します
func (r *PetRepositoryImpl) GetNamesByIDs(ctx context.Context, petIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(petIDs))
	if len(petIDs) == 0 {
		return names, nil
	}

	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	query := `SELECT id, name FROM pets WHERE id = ANY($1)`
	if err := r.db.selectContext(ctx, "PetRepository.GetNamesByIDs", &rows, query, pq64(petIDs)); err != nil {
		return nil, fmt.Errorf("failed to get pet names: %w", err)
	}

	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func pq64(ids []int64) interface{} {
	return pq.Array(ids)
}
