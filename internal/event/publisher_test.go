package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	results := map[string]int{}
	p := newKafkaPublisher(writer, func(eventType string, err error) {
		if err == nil {
			results[eventType]++
		}
	})

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r := &model.Reservation{ID: 7, ClassID: 3, CustomerID: 10, PetID: 100}
	events := []model.ReservationEvent{
		model.NewReservationEvent(model.ReservationEventBooked, r, at),
		model.NewReservationEvent(model.ReservationEventCancelled, r, at.Add(time.Minute)),
	}

	require.NoError(t, p.Publish(context.Background(), events...))
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	assert.Equal(t, "3", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "reservation.booked", header(msg, HeaderEventType))
	assert.NotEmpty(t, header(msg, HeaderEventID))
	assert.NotEqual(t, header(msg, HeaderEventID), header(writer.messages[1], HeaderEventID))

	var decoded model.ReservationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, events[0], decoded)

	assert.Equal(t, 1, results["reservation.booked"])
	assert.Equal(t, 1, results["reservation.cancelled"])
}

func TestKafkaPublisher_Errors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	failures := 0
	p := newKafkaPublisher(writer, func(eventType string, err error) {
		if err != nil {
			failures++
		}
	})
	event := model.ReservationEvent{Type: model.ReservationEventBooked, ClassID: 1}

	err := p.Publish(context.Background(), event)
	assert.ErrorIs(t, err, writer.err)
	assert.Equal(t, 1, failures)

	// イベントなしでは書き込まない
	assert.NoError(t, p.Publish(context.Background()))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, writer.closed)
	assert.Error(t, p.Publish(context.Background(), event))
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic", nil)
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}
