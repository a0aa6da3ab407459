// Package event は予約イベントをKafkaへ発行します
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// Publisher は予約イベントの発行先です
type Publisher interface {
	Publish(ctx context.Context, events ...model.ReservationEvent) error
	Close() error
}

// messageWriter はkafka.Writerのうち発行に使う部分です
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultFunc は発行結果をイベント種別ごとに受け取ります
type ResultFunc func(eventType string, err error)

// KafkaPublisher はクラスIDをキーにしてイベントを発行します
// 同じクラスのイベントは同じパーティションに入り、順序が保たれます
type KafkaPublisher struct {
	writer   messageWriter
	onResult ResultFunc
	closed   bool
	mu       sync.RWMutex
}

func NewKafkaPublisher(brokers []string, topic string, onResult ResultFunc) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger:  kafka.LoggerFunc(log.Printf),
	}
	return newKafkaPublisher(writer, onResult), nil
}

func newKafkaPublisher(writer messageWriter, onResult ResultFunc) *KafkaPublisher {
	if onResult == nil {
		onResult = func(string, error) {}
	}
	return &KafkaPublisher{writer: writer, onResult: onResult}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...model.ReservationEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(strconv.FormatInt(e.ClassID, 10)),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: HeaderEventID, Value: []byte(uuid.NewString())},
				{Key: HeaderEventType, Value: []byte(e.Type)},
			},
		})
	}

	err := p.writer.WriteMessages(ctx, messages...)
	for _, e := range events {
		p.onResult(string(e.Type), err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(events), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// NopPublisher はブローカーが設定されていない場合に使います
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...model.ReservationEvent) error { return nil }
func (NopPublisher) Close() error                                           { return nil }
