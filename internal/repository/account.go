package repository

import (
	"context"
	"fmt"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// AccountRepository は顧客・トレーナーのアカウントを担当するインターフェースです
type AccountRepository interface {
	CreateCustomer(ctx context.Context, customer *model.Customer) error
	CreateTrainer(ctx context.Context, trainer *model.Trainer) error
	GetCredential(ctx context.Context, role model.Role, email string) (*model.Credential, error)
	GetCustomer(ctx context.Context, customerID int64) (*model.Customer, error)
	GetTrainer(ctx context.Context, trainerID int64) (*model.Trainer, error)
	ListTrainers(ctx context.Context) ([]model.Trainer, error)
	UpdateCustomer(ctx context.Context, customer *model.Customer) error
	UpdateTrainer(ctx context.Context, trainer *model.Trainer) error
}

type AccountRepositoryImpl struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepositoryImpl {
	return &AccountRepositoryImpl{db: db}
}

const (
	customerColumns = `id, first_name, last_name, email, phone, address, password_hash, created_at`
	trainerColumns  = `id, first_name, last_name, email, specialization, years_of_experience, password_hash, created_at`
)

// CreateCustomer は顧客を作成します。メールアドレスが重複する場合はErrDuplicateを返します
func (r *AccountRepositoryImpl) CreateCustomer(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (first_name, last_name, email, phone, address, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	if err := r.db.QueryRowxContext(ctx, query, c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.PasswordHash).
		Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("failed to create customer: %w", classify(err))
	}
	return nil
}

// CreateTrainer はトレーナーを作成します。メールアドレスが重複する場合はErrDuplicateを返します
func (r *AccountRepositoryImpl) CreateTrainer(ctx context.Context, t *model.Trainer) error {
	query := `
		INSERT INTO trainers (first_name, last_name, email, specialization, years_of_experience, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	if err := r.db.QueryRowxContext(ctx, query, t.FirstName, t.LastName, t.Email, t.Specialization, t.YearsOfExperience, t.PasswordHash).
		Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create trainer: %w", classify(err))
	}
	return nil
}

// GetCredential はログイン照合用にIDとパスワードハッシュを取得します
func (r *AccountRepositoryImpl) GetCredential(ctx context.Context, role model.Role, email string) (*model.Credential, error) {
	var query string
	switch role {
	case model.RoleCustomer:
		query = `SELECT id, password_hash FROM customers WHERE email = $1`
	case model.RoleTrainer:
		query = `SELECT id, password_hash FROM trainers WHERE email = $1`
	default:
		return nil, fmt.Errorf("unknown role: %s", role)
	}

	var cred model.Credential
	if err := r.db.getContext(ctx, "AccountRepository.GetCredential", &cred, query, email); err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

func (r *AccountRepositoryImpl) GetCustomer(ctx context.Context, customerID int64) (*model.Customer, error) {
	var c model.Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	if err := r.db.getContext(ctx, "AccountRepository.GetCustomer", &c, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to get customer %d: %w", customerID, err)
	}
	return &c, nil
}

func (r *AccountRepositoryImpl) GetTrainer(ctx context.Context, trainerID int64) (*model.Trainer, error) {
	var t model.Trainer
	query := `SELECT ` + trainerColumns + ` FROM trainers WHERE id = $1`
	if err := r.db.getContext(ctx, "AccountRepository.GetTrainer", &t, query, trainerID); err != nil {
		return nil, fmt.Errorf("failed to get trainer %d: %w", trainerID, err)
	}
	return &t, nil
}

// ListTrainers はトレーナーの一覧を新しい順に返します
func (r *AccountRepositoryImpl) ListTrainers(ctx context.Context) ([]model.Trainer, error) {
	trainers := []model.Trainer{}
	query := `SELECT ` + trainerColumns + ` FROM trainers ORDER BY id DESC`
	if err := r.db.selectContext(ctx, "AccountRepository.ListTrainers", &trainers, query); err != nil {
		return nil, fmt.Errorf("failed to list trainers: %w", err)
	}
	return trainers, nil
}

func (r *AccountRepositoryImpl) UpdateCustomer(ctx context.Context, c *model.Customer) error {
	query := `
		UPDATE customers
		SET first_name = $1, last_name = $2, phone = $3, address = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5`
	if err := r.db.execContext(ctx, "AccountRepository.UpdateCustomer", true, query, c.FirstName, c.LastName, c.Phone, c.Address, c.ID); err != nil {
		return fmt.Errorf("failed to update customer %d: %w", c.ID, err)
	}
	return nil
}

func (r *AccountRepositoryImpl) UpdateTrainer(ctx context.Context, t *model.Trainer) error {
	query := `
		UPDATE trainers
		SET first_name = $1, last_name = $2, specialization = $3, years_of_experience = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5`
	if err := r.db.execContext(ctx, "AccountRepository.UpdateTrainer", true, query, t.FirstName, t.LastName, t.Specialization, t.YearsOfExperience, t.ID); err != nil {
		return fmt.Errorf("failed to update trainer %d: %w", t.ID, err)
	}
	return nil
}
