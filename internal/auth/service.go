package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRole        = errors.New("role must be customer or trainer")
	ErrAccountNotFound    = errors.New("account not found")
)

// SignupInput は新規登録の入力です。Specialization/YearsOfExperienceはトレーナーのみ使います
type SignupInput struct {
	Role              model.Role
	FirstName         string
	LastName          string
	Email             string
	Password          string
	Phone             *string
	Address           *string
	Specialization    *string
	YearsOfExperience int
}

// Session はログイン結果です
type Session struct {
	UserID int64      `json:"user_id"`
	Role   model.Role `json:"role"`
	Token  string     `json:"token"`
}

type Service struct {
	accounts repository.AccountRepository
	tokens   *TokenIssuer
}

func NewService(accounts repository.AccountRepository, tokens *TokenIssuer) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Signup はアカウントを作成し、そのままログインした状態のセッションを返します
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var id int64
	switch in.Role {
	case model.RoleCustomer:
		c := &model.Customer{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        email,
			Phone:        in.Phone,
			Address:      in.Address,
			PasswordHash: hash,
		}
		err = s.accounts.CreateCustomer(ctx, c)
		id = c.ID
	case model.RoleTrainer:
		t := &model.Trainer{
			FirstName:         in.FirstName,
			LastName:          in.LastName,
			Email:             email,
			Specialization:    in.Specialization,
			YearsOfExperience: in.YearsOfExperience,
			PasswordHash:      hash,
		}
		err = s.accounts.CreateTrainer(ctx, t)
		id = t.ID
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	return s.session(id, in.Role)
}

// Login はbcryptハッシュとの照合のみで認証します
func (s *Service) Login(ctx context.Context, role model.Role, email, password string) (*Session, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	cred, err := s.accounts.GetCredential(ctx, role, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if err := CheckPassword(cred.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(cred.ID, role)
}

func (s *Service) session(id int64, role model.Role) (*Session, error) {
	token, err := s.tokens.Issue(id, role)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: id, Role: role, Token: token}, nil
}

// Profile は種別に応じてCustomerまたはTrainerを返します
func (s *Service) Profile(ctx context.Context, role model.Role, id int64) (interface{}, error) {
	var (
		profile interface{}
		err     error
	)
	switch role {
	case model.RoleCustomer:
		profile, err = s.accounts.GetCustomer(ctx, id)
	case model.RoleTrainer:
		profile, err = s.accounts.GetTrainer(ctx, id)
	default:
		return nil, ErrInvalidRole
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return profile, nil
}

// UpdateProfile はプロフィールを部分更新して更新後の値を返します
func (s *Service) UpdateProfile(ctx context.Context, role model.Role, id int64, u model.ProfileUpdate) (interface{}, error) {
	current, err := s.Profile(ctx, role, id)
	if err != nil {
		return nil, err
	}

	switch p := current.(type) {
	case *model.Customer:
		applyName(&p.FirstName, &p.LastName, u)
		if u.Phone != nil {
			p.Phone = u.Phone
		}
		if u.Address != nil {
			p.Address = u.Address
		}
		err = s.accounts.UpdateCustomer(ctx, p)
	case *model.Trainer:
		applyName(&p.FirstName, &p.LastName, u)
		if u.Specialization != nil {
			p.Specialization = u.Specialization
		}
		if u.YearsOfExperience != nil {
			p.YearsOfExperience = *u.YearsOfExperience
		}
		err = s.accounts.UpdateTrainer(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return current, nil
}

func applyName(first, last *string, u model.ProfileUpdate) {
	if u.FirstName != nil {
		*first = *u.FirstName
	}
	if u.LastName != nil {
		*last = *u.LastName
	}
}
