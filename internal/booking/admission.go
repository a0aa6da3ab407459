package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// RequestReservation はクラスへの予約を受け付けます
//
// 判定はクラス行のロックを取得した後、同じトランザクション内で次の順に行います。
//  1. クラスが存在する (ErrResourceNotFound)
//  2. クラスが予約を受け付けている (ErrResourceUnavailable)
//  3. ペットが顧客のものである (ErrInvalidSubject)
//  4. 重複予約を拒否する設定なら、同じ主体の予約がない (ErrDuplicateReservation)
//  5. 有効な予約数が定員未満である (ErrResourceFull)
//
// 受け付けた予約はBookedで作成され、支払額は現在のクラス料金に固定されます。
func (s *Service) RequestReservation(ctx context.Context, classID int64, subject model.Subject) (*model.Reservation, error) {
	start := time.Now()

	var created *model.Reservation
	err := s.runTx(ctx, "admission", func(ctx context.Context, tx repository.ReservationTx) error {
		created = nil

		class, err := tx.LockClass(ctx, classID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrResourceNotFound
			}
			return err
		}
		if !class.AcceptsReservations() {
			return ErrResourceUnavailable
		}

		owned, err := tx.PetOwnedBy(ctx, subject)
		if err != nil {
			return err
		}
		if !owned {
			return ErrInvalidSubject
		}

		if s.rejectDuplicates {
			exists, err := tx.HasBookedReservation(ctx, classID, subject)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateReservation
			}
		}

		count, err := tx.CountActive(ctx, classID)
		if err != nil {
			return err
		}
		if count >= class.Capacity {
			return ErrResourceFull
		}

		now := s.now()
		reservation := &model.Reservation{
			ClassID:    classID,
			CustomerID: subject.CustomerID,
			PetID:      subject.PetID,
			Status:     model.ReservationStatusBooked,
			PricePaid:  class.Price,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		created = reservation
		return nil
	})

	s.recorder.Admission(outcome(err), time.Since(start))
	if err != nil {
		if IsRejection(err) {
			s.logger.Info("reservation rejected",
				slog.Int64("class_id", classID),
				slog.Int64("customer_id", subject.CustomerID),
				slog.String("code", string(Code(err))),
			)
		}
		return nil, err
	}

	s.logger.Info("reservation admitted",
		slog.Int64("reservation_id", created.ID),
		slog.Int64("class_id", classID),
		slog.Int64("customer_id", subject.CustomerID),
	)
	return created, nil
}
