package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus は予約の状態です
type ReservationStatus string

const (
	ReservationStatusBooked    ReservationStatus = "Booked"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
	ReservationStatusCompleted ReservationStatus = "Completed"
)

// Terminal は終端状態かどうかを返します
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusCompleted
}

// CountsTowardCapacity は定員の消費に数えられる状態かどうかを返します
func (s ReservationStatus) CountsTowardCapacity() bool {
	return s == ReservationStatusBooked || s == ReservationStatusCompleted
}

// CanTransitionTo は状態遷移が許可されているかを返します
// Booked -> Cancelled, Booked -> Completed のみ
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return s == ReservationStatusBooked &&
		(next == ReservationStatusCancelled || next == ReservationStatusCompleted)
}

// Subject は予約の主体(顧客とそのペット)です
type Subject struct {
	CustomerID int64 `json:"customer_id"`
	PetID      int64 `json:"pet_id"`
}

// Reservation はクラスに対する1件の予約です
// PricePaidは予約時点のクラス料金で、以後変更されません
type Reservation struct {
	ID          int64             `db:"id" json:"id"`
	ClassID     int64             `db:"class_id" json:"class_id"`
	CustomerID  int64             `db:"customer_id" json:"customer_id"`
	PetID       int64             `db:"pet_id" json:"pet_id"`
	Status      ReservationStatus `db:"status" json:"status"`
	PricePaid   decimal.Decimal   `db:"price_paid" json:"price_paid"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	CancelledAt *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Subject は予約の主体を返します
func (r *Reservation) Subject() Subject {
	return Subject{CustomerID: r.CustomerID, PetID: r.PetID}
}

// ReservationDetail は一覧・名簿表示用に名前を付与した予約です
type ReservationDetail struct {
	Reservation
	ClassName    string    `db:"class_name" json:"class_name"`
	ScheduleAt   time.Time `db:"schedule_at" json:"schedule_at"`
	TrainerID    int64     `db:"trainer_id" json:"trainer_id"`
	PetName      string    `db:"pet_name" json:"pet_name"`
	CustomerName string    `db:"customer_name" json:"customer_name"`
}

// ReservationFilter は予約一覧の絞り込み条件です
type ReservationFilter struct {
	CustomerID *int64
	TrainerID  *int64
	ClassID    *int64
}

// ReservationEventType は予約イベントの種類です
type ReservationEventType string

const (
	ReservationEventBooked    ReservationEventType = "reservation.booked"
	ReservationEventCancelled ReservationEventType = "reservation.cancelled"
	ReservationEventCompleted ReservationEventType = "reservation.completed"
)

// ReservationEvent は予約の状態が変わった時に発行されるイベントの構造体
type ReservationEvent struct {
	Type          ReservationEventType `json:"type"`
	ReservationID int64                `json:"reservation_id"`
	ClassID       int64                `json:"class_id"`
	CustomerID    int64                `json:"customer_id"`
	PetID         int64                `json:"pet_id"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewReservationEvent は予約からイベントを作成します
func NewReservationEvent(t ReservationEventType, r *Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:          t,
		ReservationID: r.ID,
		ClassID:       r.ClassID,
		CustomerID:    r.CustomerID,
		PetID:         r.PetID,
		OccurredAt:    at,
	}
}
