package model

import (
	"fmt"
	"time"
)

// NotificationType は通知の種類を表します
type NotificationType string

const (
	// NotificationTypeReservation は予約関連の通知を表します
	NotificationTypeReservation NotificationType = "reservation"
	// NotificationTypeCommon は共通の通知を表します
	NotificationTypeCommon NotificationType = "common"
)

// Notification はイベントIFを受け取るための定義です
// Step Functionsのタスク出力としてJSONでやり取りされます
type Notification struct {
	Type      NotificationType  `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
	Event     *ReservationEvent `json:"event,omitempty"`
	UserID    int64             `json:"user_id"`
}

// NotificationRecord は通知のドメインモデルです
// データベースに永続化される通知レコードと一致しています
type NotificationRecord struct {
	ID         int64            `db:"id" json:"id"`
	CustomerID int64            `db:"customer_id" json:"customer_id"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	IsRead     bool             `db:"is_read" json:"is_read"`
	Type       NotificationType `db:"type" json:"type"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// NameLookup は通知文面に埋め込むペット名・クラス名の対応表です
type NameLookup struct {
	Pets    map[int64]string
	Classes map[int64]ClassName
}

// ClassName は通知に必要なクラスの表示情報です
type ClassName struct {
	Name       string
	ScheduleAt time.Time
}

// NewReservationNotification は予約イベントから通知を作成します
func NewReservationNotification(event ReservationEvent) Notification {
	return Notification{
		Type:      NotificationTypeReservation,
		CreatedAt: event.OccurredAt,
		Event:     &event,
		UserID:    event.CustomerID,
	}
}

// ToNotificationRecord は通知を通知レコードに変換します
func (n Notification) ToNotificationRecord(names NameLookup) (*NotificationRecord, error) {
	if n.Type != NotificationTypeReservation {
		return &NotificationRecord{
			CustomerID: n.UserID,
			Title:      "You have a new notification",
			Message:    "Open HappyPaws to see what's new.",
			Type:       NotificationTypeCommon,
			CreatedAt:  n.CreatedAt,
			UpdatedAt:  n.CreatedAt,
		}, nil
	}

	if n.Event == nil {
		return nil, fmt.Errorf("reservation notification has no event")
	}
	e := n.Event

	petName, ok := names.Pets[e.PetID]
	if !ok {
		return nil, fmt.Errorf("pet_id %d not found in name lookup", e.PetID)
	}
	class, ok := names.Classes[e.ClassID]
	if !ok {
		return nil, fmt.Errorf("class_id %d not found in name lookup", e.ClassID)
	}

	var title, lead string
	switch e.Type {
	case ReservationEventBooked:
		title, lead = "Booking confirmed", "Your booking is confirmed. See you in class!"
	case ReservationEventCancelled:
		title, lead = "Booking cancelled", "Your booking has been cancelled."
	case ReservationEventCompleted:
		title, lead = "Class completed", "Thanks for joining the class."
	default:
		return nil, fmt.Errorf("unexpected reservation event type: %s", e.Type)
	}

	message := fmt.Sprintf(`%s
Class: %s
Date: %s
Pet: %s`, lead, class.Name, class.ScheduleAt.Format("2006-01-02 15:04"), petName)

	return &NotificationRecord{
		CustomerID: e.CustomerID,
		Title:      title,
		Message:    message,
		IsRead:     false,
		Type:       NotificationTypeReservation,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.CreatedAt,
	}, nil
}
