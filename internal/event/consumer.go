package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// messageReader はkafka.Readerのうち購読に使う部分です
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler は受信した予約イベントを処理します
type EventHandler func(ctx context.Context, e model.ReservationEvent) error

// Consumer は予約イベントを購読し、処理できたものからオフセットをコミットします
type Consumer struct {
	reader      messageReader
	handler     EventHandler
	types       map[model.ReservationEventType]struct{}
	maxRetries  int
	initialWait time.Duration
}

type ConsumerOption func(*Consumer)

// WithEventTypes は処理するイベントの種類を絞り込みます。指定がなければすべて処理します
func WithEventTypes(types ...model.ReservationEventType) ConsumerOption {
	return func(c *Consumer) {
		c.types = make(map[model.ReservationEventType]struct{}, len(types))
		for _, t := range types {
			c.types[t] = struct{}{}
		}
	}
}

// WithHandlerRetry はハンドラが失敗した時の再試行回数と最初の待ち時間を設定します
func WithHandlerRetry(maxRetries int, initial time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetries = maxRetries
		c.initialWait = initial
	}
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler EventHandler, opts ...ConsumerOption) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler cannot be nil")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
		Logger:      kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger: kafka.LoggerFunc(log.Printf),
	})
	return newConsumer(reader, handler, opts...), nil
}

func newConsumer(reader messageReader, handler EventHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:      reader,
		handler:     handler,
		maxRetries:  3,
		initialWait: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run はctxが終了するまでイベントを処理します。ctxの終了による停止ではnilを返します
// 再試行しても処理できなかったメッセージはコミットせずにエラーを返すので、次の起動時に同じメッセージから再開します
// 解釈できないメッセージは読み飛ばしてコミットします
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to handle message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var e model.ReservationEvent
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		log.Printf("Skipping undecodable message at partition %d offset %d: %v", msg.Partition, msg.Offset, err)
		return nil
	}
	if c.types != nil {
		if _, ok := c.types[e.Type]; !ok {
			return nil
		}
	}

	return backoff.RetryNotify(func() error {
		return c.handler(ctx, e)
	}, c.retryPolicy(ctx), func(err error, wait time.Duration) {
		log.Printf("Retrying %s for reservation %d in %v: %v", e.Type, e.ReservationID, wait, err)
	})
}

func (c *Consumer) retryPolicy(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.initialWait > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.initialWait
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.maxRetries, 0))), ctx)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
