package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/config"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/database"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/utils"
	"github.com/uma-arai/sbcntr-happypaws/internal/event"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// Completer は開催日時を過ぎたクラスと予約を完了にします
type Completer interface {
	CompleteDue(ctx context.Context) (*booking.SweepResult, error)
}

// TaskNotifier はStep Functionsへタスクの結果を通知します
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
}

// CompletionOutput は完了バッチのタスク出力です。通知バッチの入力になります
type CompletionOutput struct {
	Notifications []model.Notification `json:"notifications"`
}

// CompletionBatchService は予約完了バッチ処理を担当します
type CompletionBatchService struct {
	db        *database.DB
	completer Completer
	events    event.Publisher
	notifier  TaskNotifier
	cfg       *config.Config
}

// NewCompletionBatchService は新しいCompletionBatchServiceを作成します
// notifierがnilの場合はStep Functionsへの通知を行いません
func NewCompletionBatchService(cfg *config.Config, notifier TaskNotifier, events event.Publisher) (*CompletionBatchService, error) {
	db, err := database.NewDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	store := repository.NewReservationRepository(repository.NewDB(db.DB))
	completer := booking.NewService(store,
		booking.WithRetry(cfg.Booking.MaxRetries, cfg.Booking.RetryBackoff, 25*cfg.Booking.RetryBackoff),
	)

	return newCompletionBatchService(cfg, completer, notifier, events, db), nil
}

func newCompletionBatchService(cfg *config.Config, completer Completer, notifier TaskNotifier, events event.Publisher, db *database.DB) *CompletionBatchService {
	if events == nil {
		events = event.NopPublisher{}
	}
	return &CompletionBatchService{
		db:        db,
		completer: completer,
		events:    events,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Close は終了処理を行います
func (s *CompletionBatchService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run は予約完了バッチ処理を実行します
func (s *CompletionBatchService) Run(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "CompletionBatchService.Run")
	defer seg.Close(nil)

	startTime := time.Now()

	result, err := s.completer.CompleteDue(ctx)
	if err != nil {
		seg.Close(err)
		return utils.WithStack(fmt.Errorf("failed to complete due reservations: %w", err))
	}
	log.Printf("Completed %d classes and %d reservations", result.ClassesCompleted, len(result.Reservations))

	events := make([]model.ReservationEvent, 0, len(result.Reservations))
	for i := range result.Reservations {
		r := &result.Reservations[i]
		events = append(events, model.NewReservationEvent(model.ReservationEventCompleted, r, r.UpdatedAt))
	}

	// イベント発行に失敗してもバッチは失敗にしない
	if len(events) > 0 {
		if err := s.events.Publish(ctx, events...); err != nil {
			log.Printf("Failed to publish completion events: %v", err)
		}
	}

	if err := s.sendTaskSuccess(ctx, events); err != nil {
		seg.Close(err)
		return utils.WithStack(fmt.Errorf("failed to send task success: %w", err))
	}

	duration := time.Since(startTime)
	if err := seg.AddMetadata("completed_reservations", len(events)); err != nil {
		log.Printf("Failed to add completed_reservations metadata: %v", err)
	}
	if err := seg.AddMetadata("duration", duration.String()); err != nil {
		log.Printf("Failed to add duration metadata: %v", err)
	}

	log.Printf("Completion batch process completed successfully. Duration: %v", duration)
	return nil
}

// sendTaskSuccess は完了した予約の通知をタスク出力としてStep Functionsへ返却します
func (s *CompletionBatchService) sendTaskSuccess(ctx context.Context, events []model.ReservationEvent) error {
	if s.cfg.Local || s.notifier == nil {
		log.Printf("Local environment detected. Skipping Step Functions task success notification")
		return nil
	}

	taskToken := s.cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN task token is not set in config")
	}

	output, err := completionOutput(events)
	if err != nil {
		return err
	}

	_, err = s.notifier.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	log.Printf("Successfully sent task success with %d notifications", len(events))
	return nil
}

func completionOutput(events []model.ReservationEvent) ([]byte, error) {
	out := CompletionOutput{Notifications: make([]model.Notification, len(events))}
	for i, e := range events {
		out.Notifications[i] = model.NewReservationNotification(e)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notifications: %w", err)
	}
	return b, nil
}
