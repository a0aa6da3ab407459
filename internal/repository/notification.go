package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// NotificationRepository は通知の永続化を担当するインターフェースです
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, records []model.NotificationRecord) error
	GetByCustomerID(ctx context.Context, customerID int64) ([]model.NotificationRecord, error)
	UpdateIsRead(ctx context.Context, customerID, id int64, isRead bool) error
}

// NotificationRepositoryImpl は通知の永続化を担当します
type NotificationRepositoryImpl struct {
	db *DB
}

// NewNotificationRepository は新しいNotificationRepositoryを作成します
func NewNotificationRepository(db *DB) *NotificationRepositoryImpl {
	return &NotificationRepositoryImpl{
		db: db,
	}
}

// CreateNotifications は複数の通知レコードを一つのトランザクションで作成します
func (r *NotificationRepositoryImpl) CreateNotifications(ctx context.Context, records []model.NotificationRecord) error {
	return r.db.withinTx(ctx, "NotificationRepository.CreateNotifications", func(ctx context.Context, tx *sqlx.Tx) error {
		for i := range records {
			if err := r.create(ctx, tx, &records[i]); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
		}
		return nil
	})
}

// create は単一の通知レコードを作成します
func (r *NotificationRepositoryImpl) create(ctx context.Context, tx *sqlx.Tx, record *model.NotificationRecord) error {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO notifications (
			customer_id, title, message, is_read, type, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING id`

	err := tx.QueryRowContext(ctx,
		query,
		record.CustomerID,
		record.Title,
		record.Message,
		record.IsRead,
		record.Type,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID)

	if err != nil {
		seg.Close(err)
		return err
	}

	return nil
}

// GetByCustomerID は指定された顧客の通知を新しい順に取得します
func (r *NotificationRepositoryImpl) GetByCustomerID(ctx context.Context, customerID int64) ([]model.NotificationRecord, error) {
	query := `
		SELECT id, customer_id, title, message, is_read, type, created_at, updated_at
		FROM notifications
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`

	records := []model.NotificationRecord{}
	if err := r.db.selectContext(ctx, "NotificationRepository.GetByCustomerID", &records, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return records, nil
}

// UpdateIsRead は通知の既読状態を更新します
func (r *NotificationRepositoryImpl) UpdateIsRead(ctx context.Context, customerID, id int64, isRead bool) error {
	query := `
		UPDATE notifications
		SET is_read = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND customer_id = $3`

	if err := r.db.execContext(ctx, "NotificationRepository.UpdateIsRead", true, query, isRead, id, customerID); err != nil {
		return fmt.Errorf("failed to update notification is_read: %w", err)
	}
	return nil
}
