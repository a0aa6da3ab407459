package booking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

type cancelOptions struct {
	customerID *int64
}

type CancelOption func(*cancelOptions)

// OwnedBy は指定した顧客の予約である場合のみキャンセルします
// 他の顧客の予約はErrReservationNotFoundとして扱います
func OwnedBy(customerID int64) CancelOption {
	return func(o *cancelOptions) { o.customerID = &customerID }
}

// Cancel は予約をBookedからCancelledへ遷移させます
//
// 既にCancelledの予約に対してはなにもせず成功します。changedは今回の呼び出しで状態が変わったかを示します。
// Completedの予約はErrReservationNotCancellableです。
func (s *Service) Cancel(ctx context.Context, reservationID int64, opts ...CancelOption) (*model.Reservation, bool, error) {
	var o cancelOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		result  *model.Reservation
		changed bool
	)
	err := s.runTx(ctx, "cancel", func(ctx context.Context, tx repository.ReservationTx) error {
		result, changed = nil, false

		reservation, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrReservationNotFound
			}
			return err
		}
		if o.customerID != nil && reservation.CustomerID != *o.customerID {
			return ErrReservationNotFound
		}

		switch {
		case reservation.Status == model.ReservationStatusCancelled:
			result = reservation
			return nil
		case !reservation.Status.CanTransitionTo(model.ReservationStatusCancelled):
			return ErrReservationNotCancellable
		}

		now := s.now()
		if err := tx.UpdateReservationStatus(ctx, reservation.ID, model.ReservationStatusCancelled, now); err != nil {
			return err
		}
		reservation.Status = model.ReservationStatusCancelled
		reservation.CancelledAt = &now
		reservation.UpdatedAt = now

		result, changed = reservation, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.recorder.Cancellation(changed)
	if changed {
		s.logger.Info("reservation cancelled",
			slog.Int64("reservation_id", result.ID),
			slog.Int64("class_id", result.ClassID),
		)
	}
	return result, changed, nil
}

// SweepResult は完了処理の結果です
type SweepResult struct {
	Reservations     []model.Reservation
	ClassesCompleted int64
}

// CompleteDue は開催日時を過ぎたクラスのBookedの予約をCompletedにし、クラスもCompletedにします
// Completedの予約は引き続き予約数に数えられます
func (s *Service) CompleteDue(ctx context.Context) (*SweepResult, error) {
	var result SweepResult
	err := s.runTx(ctx, "complete", func(ctx context.Context, tx repository.ReservationTx) error {
		now := s.now()

		reservations, err := tx.CompleteDueReservations(ctx, now)
		if err != nil {
			return err
		}
		classes, err := tx.CompleteDueClasses(ctx, now)
		if err != nil {
			return err
		}

		result = SweepResult{Reservations: reservations, ClassesCompleted: classes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("completion sweep finished",
		slog.Int("reservations", len(result.Reservations)),
		slog.Int64("classes", result.ClassesCompleted),
	)
	return &result, nil
}
