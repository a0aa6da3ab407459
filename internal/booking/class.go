package booking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// lockOwnedClass はクラスをロックし、トレーナーが所有者であることを確認します
// 他のトレーナーのクラスはErrResourceNotFoundとして扱います
func lockOwnedClass(ctx context.Context, tx repository.ReservationTx, classID, trainerID int64) (*model.Class, error) {
	class, err := tx.LockClass(ctx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	if class.TrainerID != trainerID {
		return nil, ErrResourceNotFound
	}
	return class, nil
}

// UpdateClass はクラスを部分更新します
// 定員は現在の予約数より小さくできません。料金の変更は既存の予約の支払額に影響しません
func (s *Service) UpdateClass(ctx context.Context, classID, trainerID int64, update model.ClassUpdate) (*model.Class, error) {
	var updated *model.Class
	err := s.runTx(ctx, "update_class", func(ctx context.Context, tx repository.ReservationTx) error {
		class, err := lockOwnedClass(ctx, tx, classID, trainerID)
		if err != nil {
			return err
		}
		if !class.AcceptsReservations() {
			return ErrResourceUnavailable
		}

		if update.Capacity != nil {
			if *update.Capacity < 1 {
				return ErrInvalidCapacity
			}
			count, err := tx.CountActive(ctx, classID)
			if err != nil {
				return err
			}
			if *update.Capacity < count {
				return ErrCapacityBelowBooked
			}
		}

		next := update.Apply(*class)
		if err := tx.UpdateClass(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelClass はクラスをCancelledにし、Bookedの予約もすべてキャンセルします
// キャンセルされた予約を返します。既にCancelledのクラスに対してはなにもしません
func (s *Service) CancelClass(ctx context.Context, classID, trainerID int64) (*model.Class, []model.Reservation, error) {
	var (
		result    *model.Class
		cancelled []model.Reservation
	)
	err := s.runTx(ctx, "cancel_class", func(ctx context.Context, tx repository.ReservationTx) error {
		result, cancelled = nil, nil

		class, err := lockOwnedClass(ctx, tx, classID, trainerID)
		if err != nil {
			return err
		}
		switch class.Status {
		case model.ClassStatusCancelled:
			result = class
			return nil
		case model.ClassStatusCompleted:
			return ErrResourceUnavailable
		}

		now := s.now()
		reservations, err := tx.CancelBookedForClass(ctx, classID, now)
		if err != nil {
			return err
		}

		class.Status = model.ClassStatusCancelled
		if err := tx.UpdateClass(ctx, class); err != nil {
			return err
		}
		result, cancelled = class, reservations
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(cancelled) > 0 {
		s.logger.Info("class cancelled with bookings",
			slog.Int64("class_id", classID),
			slog.Int("reservations", len(cancelled)),
		)
	}
	return result, cancelled, nil
}

// DeleteClass は予約が一件もないクラスを削除します
func (s *Service) DeleteClass(ctx context.Context, classID, trainerID int64) error {
	return s.runTx(ctx, "delete_class", func(ctx context.Context, tx repository.ReservationTx) error {
		if _, err := lockOwnedClass(ctx, tx, classID, trainerID); err != nil {
			return err
		}

		count, err := tx.CountAll(ctx, classID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrResourceHasReservations
		}
		return tx.DeleteClass(ctx, classID)
	})
}
