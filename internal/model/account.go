package model

import "time"

// Role は利用者の種別です
type Role string

const (
	RoleCustomer Role = "customer"
	RoleTrainer  Role = "trainer"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleTrainer
}

// Customer はペットの飼い主です
type Customer struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Address      *string   `db:"address" json:"address,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Trainer はクラスを開催するトレーナーです
type Trainer struct {
	ID                int64     `db:"id" json:"id"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          string    `db:"last_name" json:"last_name"`
	Email             string    `db:"email" json:"email"`
	Specialization    *string   `db:"specialization" json:"specialization,omitempty"`
	YearsOfExperience int       `db:"years_of_experience" json:"years_of_experience"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Credential はログイン照合に必要な最小限の情報です
type Credential struct {
	ID           int64  `db:"id"`
	PasswordHash string `db:"password_hash"`
}

// ProfileUpdate は顧客・トレーナー共通のプロフィール部分更新です
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	Phone             *string
	Address           *string
	Specialization    *string
	YearsOfExperience *int
}
