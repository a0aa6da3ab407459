package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/config"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/database"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// PetNameReader は通知文面に使うペット名を取得します
type PetNameReader interface {
	GetNamesByIDs(ctx context.Context, petIDs []int64) (map[int64]string, error)
}

// ClassNameReader は通知文面に使うクラス名と開催日時を取得します
type ClassNameReader interface {
	GetNamesByIDs(ctx context.Context, classIDs []int64) (map[int64]model.ClassName, error)
}

// NotificationWriter は通知レコードを保存します
type NotificationWriter interface {
	CreateNotifications(ctx context.Context, records []model.NotificationRecord) error
}

// NotificationBatchService は通知バッチ処理を担当します
type NotificationBatchService struct {
	args             []model.Notification
	db               *database.DB
	notificationRepo NotificationWriter
	petRepo          PetNameReader
	classRepo        ClassNameReader
	cfg              *config.Config
}

// NewNotificationBatchService は新しいNotificationBatchServiceを作成します
func NewNotificationBatchService(cfg *config.Config) (*NotificationBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	repoDB := repository.NewDB(db.DB)

	return &NotificationBatchService{
		db:               db,
		notificationRepo: repository.NewNotificationRepository(repoDB),
		petRepo:          repository.NewPetRepository(repoDB),
		classRepo:        repository.NewClassRepository(repoDB),
		cfg:              cfg,
	}, nil
}

// Close は終了処理を行います
func (s *NotificationBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetArgs は通知バッチ処理の引数を設定します
func (s *NotificationBatchService) SetArgs(args []model.Notification) {
	s.args = args
}

// ParseNotifications は完了バッチのタスク出力(JSON)から通知を取り出します
func ParseNotifications(input string) ([]model.Notification, error) {
	var out CompletionOutput
	if err := json.Unmarshal([]byte(input), &out); err != nil {
		return nil, fmt.Errorf("failed to parse notification input: %w", err)
	}
	return out.Notifications, nil
}

// Run は通知バッチ処理を実行します
func (s *NotificationBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationBatchService.Run")
	defer seg.Close(nil)

	log.Printf("Starting notification batch process for %d notifications...", len(s.args))
	startTime := time.Now()

	if err := s.Process(ctx, s.args); err != nil {
		seg.Close(err)
		return err
	}

	duration := time.Since(startTime)
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}
	log.Printf("Notification batch process completed successfully. Duration: %v", duration)
	return nil
}

// HandleEvent はKafkaから受信した予約イベントを通知として保存します
func (s *NotificationBatchService) HandleEvent(ctx context.Context, e model.ReservationEvent) error {
	return s.Process(ctx, []model.Notification{model.NewReservationNotification(e)})
}

// Process は通知をレコードに変換して保存します
func (s *NotificationBatchService) Process(ctx context.Context, notifications []model.Notification) error {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationBatchService.Process")
	defer seg.Close(nil)

	if err := seg.AddMetadata("notification_count", len(notifications)); err != nil {
		log.Printf("Failed to add notification_count metadata: %v", err)
	}
	if len(notifications) == 0 {
		log.Printf("No notifications to process")
		return nil
	}

	names, err := s.lookupNames(ctx, notifications)
	if err != nil {
		seg.Close(err)
		return err
	}

	records := make([]model.NotificationRecord, len(notifications))
	for i, notification := range notifications {
		record, err := notification.ToNotificationRecord(names)
		if err != nil {
			seg.Close(err)
			return err
		}
		records[i] = *record
	}

	if err := s.notificationRepo.CreateNotifications(ctx, records); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create notifications: %w", err)
	}

	if err := seg.AddMetadata("pet_count", len(names.Pets)); err != nil {
		log.Printf("Failed to add pet_count metadata: %v", err)
	}
	return nil
}

// lookupNames は通知に含まれるペットとクラスの名前をまとめて取得します
// N+1とならないように重複のないIDを集めてから一度に取得する
func (s *NotificationBatchService) lookupNames(ctx context.Context, notifications []model.Notification) (model.NameLookup, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "NotificationBatchService.lookupNames")
	defer seg.Close(nil)

	petIDs := uniqueIDs{}
	classIDs := uniqueIDs{}
	for _, n := range notifications {
		if n.Type != model.NotificationTypeReservation {
			continue
		}
		if n.Event == nil {
			err := fmt.Errorf("reservation notification has no event")
			seg.Close(err)
			return model.NameLookup{}, err
		}
		petIDs.add(n.Event.PetID)
		classIDs.add(n.Event.ClassID)
	}

	if err := seg.AddMetadata("unique_pet_count", len(petIDs.ids)); err != nil {
		log.Printf("Failed to add unique_pet_count metadata: %v", err)
	}

	names := model.NameLookup{Pets: map[int64]string{}, Classes: map[int64]model.ClassName{}}
	if len(petIDs.ids) == 0 {
		return names, nil
	}

	pets, err := s.petRepo.GetNamesByIDs(ctx, petIDs.ids)
	if err != nil {
		seg.Close(err)
		return model.NameLookup{}, fmt.Errorf("failed to get pet names: %w", err)
	}
	classes, err := s.classRepo.GetNamesByIDs(ctx, classIDs.ids)
	if err != nil {
		seg.Close(err)
		return model.NameLookup{}, fmt.Errorf("failed to get class names: %w", err)
	}
	names.Pets = pets
	names.Classes = classes
	return names, nil
}

type uniqueIDs struct {
	ids  []int64
	seen map[int64]struct{}
}

func (u *uniqueIDs) add(id int64) {
	if u.seen == nil {
		u.seen = map[int64]struct{}{}
	}
	if _, ok := u.seen[id]; ok {
		return
	}
	u.seen[id] = struct{}{}
	u.ids = append(u.ids, id)
}
