// Package handler はHTTP APIのハンドラとルーティングです
package handler

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/logger"
	"github.com/uma-arai/sbcntr-happypaws/internal/event"
	"github.com/uma-arai/sbcntr-happypaws/internal/idempotency"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/monitoring"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// BookingService は予約の受付・キャンセルとクラスの状態変更です
type BookingService interface {
	RequestReservation(ctx context.Context, classID int64, subject model.Subject) (*model.Reservation, error)
	Cancel(ctx context.Context, reservationID int64, opts ...booking.CancelOption) (*model.Reservation, bool, error)
	CurrentCount(ctx context.Context, classID int64) (int, error)
	UpdateClass(ctx context.Context, classID, trainerID int64, update model.ClassUpdate) (*model.Class, error)
	CancelClass(ctx context.Context, classID, trainerID int64) (*model.Class, []model.Reservation, error)
	DeleteClass(ctx context.Context, classID, trainerID int64) error
}

type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Session, error)
	Login(ctx context.Context, role model.Role, email, password string) (*auth.Session, error)
	Profile(ctx context.Context, role model.Role, id int64) (interface{}, error)
	UpdateProfile(ctx context.Context, role model.Role, id int64, u model.ProfileUpdate) (interface{}, error)
}

type ReservationReader interface {
	List(ctx context.Context, filter model.ReservationFilter) ([]model.ReservationDetail, error)
	GetByID(ctx context.Context, reservationID int64) (*model.ReservationDetail, error)
}

// TrainerDirectory はトレーナーの一覧を返します
type TrainerDirectory interface {
	ListTrainers(ctx context.Context) ([]model.Trainer, error)
}

// Pinger はヘルスチェックで依存先の疎通を確認します
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps はHandlerの依存関係です
type Deps struct {
	Booking       BookingService
	Auth          AuthService
	Tokens        *auth.TokenIssuer
	Classes       repository.ClassRepository
	Reservations  ReservationReader
	Pets          repository.PetRepository
	Trainers      TrainerDirectory
	Notifications repository.NotificationRepository
	Idempotency   idempotency.Store
	Events        event.Publisher
	// PublishTimeout はレスポンス後に行うイベント送信の制限時間です。0なら既定値を使います
	PublishTimeout time.Duration
	Metrics        *monitoring.Metrics
	DB             Pinger
	Logger         *logger.Logger
}

type Handler struct {
	booking       BookingService
	auth          AuthService
	tokens        *auth.TokenIssuer
	classes       repository.ClassRepository
	reservations  ReservationReader
	pets          repository.PetRepository
	trainers      TrainerDirectory
	notifications repository.NotificationRepository
	idem          idempotency.Store
	events        event.Publisher
	publishWait   time.Duration
	inflight      sync.WaitGroup
	metrics       *monitoring.Metrics
	db            Pinger
	log           *logger.Logger
	validate      *validator.Validate
	now           func() time.Time
}

func New(d Deps) *Handler {
	h := &Handler{
		booking:       d.Booking,
		auth:          d.Auth,
		tokens:        d.Tokens,
		classes:       d.Classes,
		reservations:  d.Reservations,
		pets:          d.Pets,
		trainers:      d.Trainers,
		notifications: d.Notifications,
		idem:          d.Idempotency,
		events:        d.Events,
		publishWait:   d.PublishTimeout,
		metrics:       d.Metrics,
		db:            d.DB,
		log:           d.Logger,
		validate:      newValidator(),
		now:           time.Now,
	}
	if h.publishWait <= 0 {
		h.publishWait = defaultPublishTimeout
	}
	if h.idem == nil {
		h.idem = idempotency.NopStore{}
	}
	if h.events == nil {
		h.events = event.NopPublisher{}
	}
	if h.log == nil {
		h.log = logger.Nop()
	}
	return h
}

// Drain は送信中のイベントがすべて終わるまで待ちます
// Publisherを閉じる前に呼びます
func (h *Handler) Drain() {
	h.inflight.Wait()
}
