package booking

import (
	"errors"
	"fmt"
)

// ErrCode は予約処理の失敗理由を表すコードです
// HTTPレスポンスのerror.codeとしてそのまま返します
type ErrCode string

const (
	CodeResourceNotFound          ErrCode = "RESOURCE_NOT_FOUND"
	CodeResourceUnavailable       ErrCode = "RESOURCE_UNAVAILABLE"
	CodeResourceFull              ErrCode = "RESOURCE_FULL"
	CodeDuplicateReservation      ErrCode = "DUPLICATE_RESERVATION"
	CodeReservationNotFound       ErrCode = "RESERVATION_NOT_FOUND"
	CodeReservationNotCancellable ErrCode = "RESERVATION_NOT_CANCELLABLE"
	CodeInvalidSubject            ErrCode = "INVALID_SUBJECT"
	CodeInvalidCapacity           ErrCode = "INVALID_CAPACITY"
	CodeCapacityBelowBooked       ErrCode = "CAPACITY_BELOW_BOOKED"
	CodeResourceHasReservations   ErrCode = "RESOURCE_HAS_RESERVATIONS"
	CodeTransientConflict         ErrCode = "TRANSIENT_CONFLICT"
	CodeStorageFailure            ErrCode = "STORAGE_FAILURE"
)

// Error は予約処理のエラーです。errors.Isはコードで比較します
type Error struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrResourceNotFound          = &Error{Code: CodeResourceNotFound, Message: "class not found"}
	ErrResourceUnavailable       = &Error{Code: CodeResourceUnavailable, Message: "class is not accepting reservations"}
	ErrResourceFull              = &Error{Code: CodeResourceFull, Message: "class is full"}
	ErrDuplicateReservation      = &Error{Code: CodeDuplicateReservation, Message: "an active reservation already exists for this pet"}
	ErrReservationNotFound       = &Error{Code: CodeReservationNotFound, Message: "reservation not found"}
	ErrReservationNotCancellable = &Error{Code: CodeReservationNotCancellable, Message: "reservation cannot be cancelled"}
	ErrInvalidSubject            = &Error{Code: CodeInvalidSubject, Message: "pet does not belong to customer"}
	ErrInvalidCapacity           = &Error{Code: CodeInvalidCapacity, Message: "capacity must be positive"}
	ErrCapacityBelowBooked       = &Error{Code: CodeCapacityBelowBooked, Message: "capacity cannot be lower than current bookings"}
	ErrResourceHasReservations   = &Error{Code: CodeResourceHasReservations, Message: "class has reservations"}
	ErrTransientConflict         = &Error{Code: CodeTransientConflict, Message: "too much contention, please retry"}
	ErrStorageFailure            = &Error{Code: CodeStorageFailure, Message: "storage failure"}
)

// wrap はsentinelのコードとメッセージを保ったまま原因を付与します
func wrap(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Code はエラーに含まれるErrCodeを返します。予約処理のエラーでなければ空文字です
func Code(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRejection は業務ルールによる拒否(リトライしても結果が変わらない失敗)かどうかを返します
func IsRejection(err error) bool {
	switch Code(err) {
	case "", CodeTransientConflict, CodeStorageFailure:
		return false
	}
	return true
}
