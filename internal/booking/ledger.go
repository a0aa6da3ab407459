package booking

import (
	"context"
	"errors"

	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// CurrentCount はクラスの有効な予約数(Booked + Completed)を返します
// Cancelledは含みません。読み取りのみで副作用はありません
func (s *Service) CurrentCount(ctx context.Context, classID int64) (int, error) {
	var count int
	err := s.runTx(ctx, "ledger", func(ctx context.Context, tx repository.ReservationTx) error {
		if _, err := tx.FindClass(ctx, classID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrResourceNotFound
			}
			return err
		}

		n, err := tx.CountActive(ctx, classID)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
