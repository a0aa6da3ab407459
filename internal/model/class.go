package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClassStatus はクラス(予約対象の枠)のライフサイクル状態です
type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "Scheduled"
	// ClassStatusFull は永続化されません。予約数から導出される表示用の状態です
	ClassStatusFull      ClassStatus = "Full"
	ClassStatusCompleted ClassStatus = "Completed"
	ClassStatusCancelled ClassStatus = "Cancelled"
)

// Class はトレーナーが開催する予約可能なクラスです
type Class struct {
	ID          int64           `db:"id" json:"id"`
	TrainerID   int64           `db:"trainer_id" json:"trainer_id"`
	Name        string          `db:"name" json:"name"`
	Description *string         `db:"description" json:"description,omitempty"`
	Type        string          `db:"type" json:"type"`
	ScheduleAt  time.Time       `db:"schedule_at" json:"schedule_at"`
	Capacity    int             `db:"capacity" json:"capacity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Status      ClassStatus     `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// AcceptsReservations は新規予約を受け付けられる状態かを返します
func (c *Class) AcceptsReservations() bool {
	return c.Status != ClassStatusCancelled && c.Status != ClassStatusCompleted
}

// ClassSummary は一覧表示用にトレーナー名と予約数を付与したクラスです
type ClassSummary struct {
	Class
	TrainerName string `db:"trainer_name" json:"trainer_name"`
	BookedCount int    `db:"booked_count" json:"booked_count"`
}

// EffectiveStatus は予約数を加味した表示用のステータスを返します
func (s ClassSummary) EffectiveStatus() ClassStatus {
	if s.Status == ClassStatusScheduled && s.BookedCount >= s.Capacity {
		return ClassStatusFull
	}
	return s.Status
}

// ClassUpdate はクラスの部分更新です。nilのフィールドは変更しません
type ClassUpdate struct {
	Name        *string
	Description *string
	Type        *string
	ScheduleAt  *time.Time
	Capacity    *int
	Price       *decimal.Decimal
}

// IsEmpty は更新対象のフィールドが一つもないかを返します
func (u ClassUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Type == nil &&
		u.ScheduleAt == nil && u.Capacity == nil && u.Price == nil
}

// Apply は更新内容をクラスへ反映したコピーを返します
func (u ClassUpdate) Apply(c Class) Class {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = u.Description
	}
	if u.Type != nil {
		c.Type = *u.Type
	}
	if u.ScheduleAt != nil {
		c.ScheduleAt = *u.ScheduleAt
	}
	if u.Capacity != nil {
		c.Capacity = *u.Capacity
	}
	if u.Price != nil {
		c.Price = *u.Price
	}
	return c
}
