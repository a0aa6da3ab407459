package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/config"
	"github.com/uma-arai/sbcntr-happypaws/internal/event"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/service/batch"
)

const (
	projectName = "sbcntr-happypaws-notification-worker"
)

// 予約確定とキャンセルの通知を作成する常駐ワーカー
// 完了の通知はStep Functionsの通知バッチが作成するので、ここでは扱わない
func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalf("KAFKA_BROKERS is required")
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000",
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	service, err := batch.NewNotificationBatchService(cfg)
	if err != nil {
		log.Fatalf("Failed to create notification service: %v", err)
	}
	defer service.Close()

	handle := service.HandleEvent
	if cfg.EnableTracing {
		// イベントごとにセグメントを作成する
		handle = func(ctx context.Context, e model.ReservationEvent) (err error) {
			ctx, seg := xray.BeginSegment(ctx, projectName)
			defer func() { seg.Close(err) }()
			return service.HandleEvent(ctx, e)
		}
	}

	consumer, err := event.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.NotificationGroup, handle,
		event.WithEventTypes(model.ReservationEventBooked, model.ReservationEventCancelled),
	)
	if err != nil {
		log.Fatalf("Failed to create kafka consumer: %v", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Consuming %s as %s", cfg.Kafka.Topic, cfg.Kafka.NotificationGroup)
	if err := consumer.Run(ctx); err != nil {
		log.Printf("Notification worker stopped: %v", err)
		// 未コミットのメッセージは再起動後に再処理される
		os.Exit(1)
	}
	log.Println("Notification worker stopped")
}
