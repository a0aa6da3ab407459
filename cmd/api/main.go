package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/config"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/database"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/logger"
	"github.com/uma-arai/sbcntr-happypaws/internal/event"
	"github.com/uma-arai/sbcntr-happypaws/internal/handler"
	"github.com/uma-arai/sbcntr-happypaws/internal/idempotency"
	"github.com/uma-arai/sbcntr-happypaws/internal/monitoring"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

const (
	projectName = "sbcntr-happypaws"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.New(logger.Config{}).Fatal("failed to load config", slog.Any("error", err))
	}

	format := logger.FormatJSON
	if cfg.Local {
		format = logger.FormatText
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: format, Service: projectName})

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000",
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Warn("failed to configure X-Ray, using defaults", slog.Any("error", err))
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatal("failed to configure default X-Ray settings", slog.Any("error", configErr))
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := database.NewDB(cfg.DB)
	if err != nil {
		log.Fatal("failed to connect database", slog.Any("error", err))
	}
	defer conn.Close()

	db := repository.NewDB(conn.DB)
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate schema", slog.Any("error", err))
		}
		log.Info("schema migrated")
	}

	metrics := monitoring.NewMetrics()

	reservations := repository.NewReservationRepository(db)
	bookingService := booking.NewService(reservations,
		booking.WithDuplicateRejection(cfg.Booking.DuplicatePolicy == config.DuplicateReject),
		booking.WithRetry(cfg.Booking.MaxRetries, cfg.Booking.RetryBackoff, 25*cfg.Booking.RetryBackoff),
		booking.WithRecorder(metrics),
		booking.WithLogger(log),
	)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accounts := repository.NewAccountRepository(db)
	authService := auth.NewService(accounts, tokens)

	var idem idempotency.Store = idempotency.NopStore{}
	if cfg.Redis.URL != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal("failed to connect redis", slog.Any("error", err))
		}
		defer client.Close()
		idem = idempotency.NewRedisStore(client, cfg.Redis.IdempotencyTTL)
	} else {
		log.Warn("REDIS_URL is not set, Idempotency-Key is ignored")
	}

	var events event.Publisher = event.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := event.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, metrics.EventPublished)
		if err != nil {
			log.Fatal("failed to create kafka publisher", slog.Any("error", err))
		}
		events = publisher
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn("failed to close publisher", slog.Any("error", err))
		}
	}()

	h := handler.New(handler.Deps{
		Booking:       bookingService,
		Auth:          authService,
		Tokens:        tokens,
		Classes:       repository.NewClassRepository(db),
		Reservations:  reservations,
		Pets:          repository.NewPetRepository(db),
		Trainers:      accounts,
		Notifications: repository.NewNotificationRepository(db),
		Idempotency:   idem,
		Events:        events,
		Metrics:       metrics,
		DB:            db,
		Logger:        log,
	})

	var root http.Handler = handler.NewServer(h, cfg.HTTP.RequestTimeout)
	if cfg.EnableTracing {
		root = xray.Handler(xray.NewFixedSegmentNamer(projectName), root)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			log.Error("server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
	// 送信中のイベントを待ってからPublisherを閉じる
	h.Drain()
	log.Info("server stopped")
}
