// Package booking は定員付きクラスの予約受付と予約のライフサイクルを扱います
//
// 予約数はreservationsテーブルから毎回導出し、キャッシュやカウンタは持ちません。
// 定員判定と予約の書き込みは、クラス行のロックを保持した一つのトランザクションで行います。
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uma-arai/sbcntr-happypaws/internal/common/logger"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// Recorder は予約処理の結果を記録します
type Recorder interface {
	Admission(outcome string, took time.Duration)
	Retry(op string)
	Cancellation(changed bool)
}

type nopRecorder struct{}

func (nopRecorder) Admission(string, time.Duration) {}
func (nopRecorder) Retry(string)                    {}
func (nopRecorder) Cancellation(bool)               {}

// Service は予約受付(Admission)、予約数の参照(Ledger)、状態遷移(Lifecycle)をまとめたものです
type Service struct {
	store            repository.ReservationStore
	now              func() time.Time
	rejectDuplicates bool
	maxRetries       int
	initialWait      time.Duration
	maxWait          time.Duration
	recorder         Recorder
	logger           *logger.Logger
}

type Option func(*Service)

// WithClock は時刻の取得方法を差し替えます
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDuplicateRejection は同じ顧客・ペットの有効な予約がある場合に新規予約を拒否します
func WithDuplicateRejection(reject bool) Option {
	return func(s *Service) { s.rejectDuplicates = reject }
}

// WithRetry は競合で中断されたトランザクションの再試行回数と待ち時間を設定します
// 待ち時間はinitialから指数的に伸び、maxで頭打ちになります。initialが0以下なら待ちません
func WithRetry(maxRetries int, initial, max time.Duration) Option {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.initialWait = initial
		s.maxWait = max
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store repository.ReservationStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		now:        time.Now,
		maxRetries:  3,
		initialWait: 20 * time.Millisecond,
		maxWait:     500 * time.Millisecond,
		recorder:    nopRecorder{},
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runTx はfnをトランザクションで実行し、結果を予約処理のエラーに変換します
// 直列化失敗などの競合はmaxRetries回まで再試行し、使い切った場合はErrTransientConflictを返します
func (s *Service) runTx(ctx context.Context, op string, fn func(ctx context.Context, tx repository.ReservationTx) error) error {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := s.store.WithinTx(ctx, fn)
		if err == nil || repository.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}, s.retryPolicy(ctx), func(err error, wait time.Duration) {
		s.recorder.Retry(op)
		s.logger.Debug("retrying booking transaction", slog.String("op", op), slog.Int("attempt", attempts), slog.Duration("wait", wait))
	})
	if err == nil {
		return nil
	}

	var bookingErr *Error
	if errors.As(err, &bookingErr) {
		return bookingErr
	}
	if repository.IsConflict(err) {
		s.logger.Warn("booking transaction retries exhausted", slog.String("op", op), slog.Int("attempts", attempts))
		return wrap(ErrTransientConflict, err)
	}
	s.logger.Error("booking transaction failed", slog.String("op", op), slog.Any("error", err))
	return wrap(ErrStorageFailure, err)
}

// retryPolicy は競合時の待ち時間と再試行回数の上限を組み立てます
func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if s.initialWait > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = s.initialWait
		exp.MaxInterval = s.maxWait
		if exp.MaxInterval < exp.InitialInterval {
			exp.MaxInterval = exp.InitialInterval
		}
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.maxRetries, 0))), ctx)
}

// outcome はメトリクスのラベルに使う結果名を返します
func outcome(err error) string {
	if err == nil {
		return "admitted"
	}
	if code := Code(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}
