package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/booking"
	"github.com/uma-arai/sbcntr-happypaws/internal/idempotency"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

type fakeBooking struct {
	mu        sync.Mutex
	calls     int
	reserveFn func(classID int64, subject model.Subject) (*model.Reservation, error)
	cancelFn  func(id int64) (*model.Reservation, bool, error)
	count     int
}

func (f *fakeBooking) RequestReservation(ctx context.Context, classID int64, subject model.Subject) (*model.Reservation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.reserveFn(classID, subject)
}

func (f *fakeBooking) Cancel(ctx context.Context, id int64, opts ...booking.CancelOption) (*model.Reservation, bool, error) {
	return f.cancelFn(id)
}

func (f *fakeBooking) CurrentCount(ctx context.Context, classID int64) (int, error) {
	return f.count, nil
}

func (f *fakeBooking) UpdateClass(ctx context.Context, classID, trainerID int64, update model.ClassUpdate) (*model.Class, error) {
	return nil, booking.ErrResourceNotFound
}

func (f *fakeBooking) CancelClass(ctx context.Context, classID, trainerID int64) (*model.Class, []model.Reservation, error) {
	return nil, nil, booking.ErrResourceNotFound
}

func (f *fakeBooking) DeleteClass(ctx context.Context, classID, trainerID int64) error {
	return booking.ErrResourceHasReservations
}

type fakeClasses struct {
	classes []model.ClassSummary
}

func (f *fakeClasses) Create(ctx context.Context, class *model.Class) error {
	class.ID = 99
	return nil
}

func (f *fakeClasses) List(ctx context.Context, filter repository.ClassFilter) ([]model.ClassSummary, error) {
	return f.classes, nil
}

func (f *fakeClasses) GetByID(ctx context.Context, classID int64) (*model.ClassSummary, error) {
	for i := range f.classes {
		if f.classes[i].ID == classID {
			return &f.classes[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeClasses) GetNamesByIDs(ctx context.Context, classIDs []int64) (map[int64]model.ClassName, error) {
	return map[int64]model.ClassName{}, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.ReservationEvent
	err    error
	// blockがnilでなければ閉じられるかctxが終わるまで送信を待たせる
	block chan struct{}
}

func (f *fakeEvents) Publish(ctx context.Context, events ...model.ReservationEvent) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeEvents) published() []model.ReservationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ReservationEvent(nil), f.events...)
}

func (f *fakeEvents) Close() error { return nil }

type memIdempotency struct {
	mu       sync.Mutex
	entries  map[string]*idempotency.Response
	released int
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: map[string]*idempotency.Response{}}
}

func (m *memIdempotency) Begin(ctx context.Context, scope, key, fingerprint string) (*idempotency.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	resp, ok := m.entries[k]
	if !ok {
		m.entries[k] = nil
		return nil, nil
	}
	if resp == nil {
		return nil, idempotency.ErrInProgress
	}
	if resp.Fingerprint != fingerprint {
		return nil, idempotency.ErrKeyMismatch
	}
	return resp, nil
}

func (m *memIdempotency) Save(ctx context.Context, scope, key string, resp idempotency.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[scope+":"+key] = &resp
	return nil
}

func (m *memIdempotency) Release(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, scope+":"+key)
	m.released++
	return nil
}

type fakeTrainers struct {
	trainers []model.Trainer
	err      error
}

func (f *fakeTrainers) ListTrainers(ctx context.Context) ([]model.Trainer, error) {
	return f.trainers, f.err
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type testServer struct {
	t        *testing.T
	tokens   *auth.TokenIssuer
	booking  *fakeBooking
	classes  *fakeClasses
	events   *fakeEvents
	idem     *memIdempotency
	trainers *fakeTrainers
	handler  *Handler
	server   http.Handler
}

func newTestServer(t *testing.T, db Pinger) *testServer {
	t.Helper()
	ts := &testServer{
		t:      t,
		tokens: auth.NewTokenIssuer("test-secret", time.Hour),
		booking: &fakeBooking{
			reserveFn: func(classID int64, subject model.Subject) (*model.Reservation, error) {
				return &model.Reservation{
					ID:         1,
					ClassID:    classID,
					CustomerID: subject.CustomerID,
					PetID:      subject.PetID,
					Status:     model.ReservationStatusBooked,
					PricePaid:  decimal.RequireFromString("35.00"),
					CreatedAt:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
				}, nil
			},
		},
		classes:  &fakeClasses{},
		events:   &fakeEvents{},
		idem:     newMemIdempotency(),
		trainers: &fakeTrainers{},
	}
	ts.handler = New(Deps{
		Booking:        ts.booking,
		Tokens:         ts.tokens,
		Classes:        ts.classes,
		Trainers:       ts.trainers,
		Idempotency:    ts.idem,
		Events:         ts.events,
		PublishTimeout: 50 * time.Millisecond,
		DB:             db,
	})
	ts.server = NewServer(ts.handler, 0)
	return ts
}

func (ts *testServer) token(id int64, role model.Role) string {
	ts.t.Helper()
	token, err := ts.tokens.Issue(id, role)
	require.NoError(ts.t, err)
	return token
}

func (ts *testServer) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	// バックグラウンドのイベント送信を待ってから検証する
	ts.handler.Drain()
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t, nil)
	customer := ts.token(7, model.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got model.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.ClassID)
	assert.Equal(t, int64(7), got.CustomerID)
	assert.Equal(t, int64(11), got.PetID)
	assert.Equal(t, model.ReservationStatusBooked, got.Status)
	assert.True(t, got.PricePaid.Equal(decimal.RequireFromString("35")))

	require.Len(t, ts.events.events, 1)
	assert.Equal(t, model.ReservationEventBooked, ts.events.events[0].Type)
	assert.Equal(t, int64(1), ts.events.events[0].ReservationID)
}

func TestCreateBooking_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"full", booking.ErrResourceFull, http.StatusConflict, "RESOURCE_FULL"},
		{"not found", booking.ErrResourceNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"unavailable", booking.ErrResourceUnavailable, http.StatusConflict, "RESOURCE_UNAVAILABLE"},
		{"duplicate", booking.ErrDuplicateReservation, http.StatusConflict, "DUPLICATE_RESERVATION"},
		{"invalid subject", booking.ErrInvalidSubject, http.StatusUnprocessableEntity, "INVALID_SUBJECT"},
		{"transient", booking.ErrTransientConflict, http.StatusServiceUnavailable, "TRANSIENT_CONFLICT"},
		{"storage", booking.ErrStorageFailure, http.StatusInternalServerError, "STORAGE_FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.booking.reserveFn = func(int64, model.Subject) (*model.Reservation, error) {
				return nil, tt.err
			}

			rec := ts.do(http.MethodPost, "/api/bookings", ts.token(7, model.RoleCustomer), `{"class_id":3,"pet_id":11}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			assert.Empty(t, ts.events.events)
		})
	}
}

func TestCreateBooking_Auth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/bookings", "", `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

	rec = ts.do(http.MethodPost, "/api/bookings", "not-a-token", `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := auth.NewTokenIssuer("other-secret", time.Hour)
	forged, err := other.Issue(7, model.RoleCustomer)
	require.NoError(t, err)
	rec = ts.do(http.MethodPost, "/api/bookings", forged, `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/bookings", ts.token(2, model.RoleTrainer), `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	assert.Zero(t, ts.booking.calls)
}

func TestCreateBooking_Validation(t *testing.T) {
	ts := newTestServer(t, nil)
	customer := ts.token(7, model.RoleCustomer)

	rec := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	assert.Contains(t, apiErr.Message, "PetID")

	rec = ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)

	assert.Zero(t, ts.booking.calls)
}

func TestCreateBooking_Idempotency(t *testing.T) {
	t.Run("replays the first success", func(t *testing.T) {
		ts := newTestServer(t, nil)
		customer := ts.token(7, model.RoleCustomer)

		first := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-1")
		require.Equal(t, http.StatusCreated, first.Code)

		second := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-1")
		require.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get(headerReplayed))
		assert.JSONEq(t, first.Body.String(), second.Body.String())

		assert.Equal(t, 1, ts.booking.calls)
		assert.Len(t, ts.events.events, 1)
	})

	t.Run("keys are scoped per customer", func(t *testing.T) {
		ts := newTestServer(t, nil)

		ts.do(http.MethodPost, "/api/bookings", ts.token(7, model.RoleCustomer), `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-1")
		rec := ts.do(http.MethodPost, "/api/bookings", ts.token(8, model.RoleCustomer), `{"class_id":3,"pet_id":12}`, headerIdempotencyKey, "k-1")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, rec.Header().Get(headerReplayed))
		assert.Equal(t, 2, ts.booking.calls)
	})

	t.Run("replays a rejection", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.booking.reserveFn = func(int64, model.Subject) (*model.Reservation, error) {
			return nil, booking.ErrResourceFull
		}
		customer := ts.token(7, model.RoleCustomer)

		ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-2")
		rec := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-2")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "true", rec.Header().Get(headerReplayed))
		assert.Equal(t, "RESOURCE_FULL", decodeError(t, rec).Code)
		assert.Equal(t, 1, ts.booking.calls)
	})

	t.Run("releases the key on transient failure", func(t *testing.T) {
		ts := newTestServer(t, nil)
		failures := 1
		reserve := ts.booking.reserveFn
		ts.booking.reserveFn = func(classID int64, subject model.Subject) (*model.Reservation, error) {
			if failures > 0 {
				failures--
				return nil, booking.ErrTransientConflict
			}
			return reserve(classID, subject)
		}
		customer := ts.token(7, model.RoleCustomer)

		rec := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-3")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, 1, ts.idem.released)

		rec = ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-3")
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, rec.Header().Get(headerReplayed))
		assert.Equal(t, 2, ts.booking.calls)
	})

	t.Run("in progress", func(t *testing.T) {
		ts := newTestServer(t, nil)
		_, err := ts.idem.Begin(context.Background(), "booking:7", "k-4", "")
		require.NoError(t, err)

		rec := ts.do(http.MethodPost, "/api/bookings", ts.token(7, model.RoleCustomer), `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-4")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_KEY_IN_USE", decodeError(t, rec).Code)
		assert.Zero(t, ts.booking.calls)
	})

	t.Run("rejects the key reused for another booking", func(t *testing.T) {
		ts := newTestServer(t, nil)
		customer := ts.token(7, model.RoleCustomer)

		first := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":3,"pet_id":11}`, headerIdempotencyKey, "k-5")
		require.Equal(t, http.StatusCreated, first.Code)

		rec := ts.do(http.MethodPost, "/api/bookings", customer, `{"class_id":4,"pet_id":11}`, headerIdempotencyKey, "k-5")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_KEY_MISMATCH", decodeError(t, rec).Code)
		assert.Empty(t, rec.Header().Get(headerReplayed))
		assert.Equal(t, 1, ts.booking.calls)
	})
}

func TestCreateBooking_PublishFailureDoesNotFailRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.events.err = errors.New("broker down")

	rec := ts.do(http.MethodPost, "/api/bookings", ts.token(7, model.RoleCustomer), `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBooking_SlowBrokerDoesNotDelayResponse(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.events.block = make(chan struct{})
	ts.handler.publishWait = 5 * time.Second

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"class_id":3,"pet_id":11}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.token(7, model.RoleCustomer))
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		ts.server.ServeHTTP(rec, req)
		done <- rec
	}()

	select {
	case rec := <-done:
		assert.Equal(t, http.StatusCreated, rec.Code)
	case <-time.After(time.Second):
		t.Fatal("response waited for the broker")
	}

	// クライアントが切断しても送信は続く
	cancel()
	close(ts.events.block)
	ts.handler.Drain()
	require.Len(t, ts.events.published(), 1)
	assert.Equal(t, model.ReservationEventBooked, ts.events.published()[0].Type)
}

func TestCreateBooking_PublishTimeout(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.events.block = make(chan struct{})

	rec := ts.do(http.MethodPost, "/api/bookings", ts.token(7, model.RoleCustomer), `{"class_id":3,"pet_id":11}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	// 制限時間で送信を諦めるのでDrainが戻る
	assert.Empty(t, ts.events.published())
}

func TestCancelBooking(t *testing.T) {
	cancelledAt := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		changed    bool
		err        error
		wantStatus int
		wantEvents int
	}{
		{name: "cancelled", changed: true, wantStatus: http.StatusOK, wantEvents: 1},
		{name: "already cancelled", changed: false, wantStatus: http.StatusOK, wantEvents: 0},
		{name: "completed", err: booking.ErrReservationNotCancellable, wantStatus: http.StatusConflict},
		{name: "not found", err: booking.ErrReservationNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.booking.cancelFn = func(id int64) (*model.Reservation, bool, error) {
				if tt.err != nil {
					return nil, false, tt.err
				}
				return &model.Reservation{
					ID:          id,
					ClassID:     3,
					CustomerID:  7,
					PetID:       11,
					Status:      model.ReservationStatusCancelled,
					CancelledAt: &cancelledAt,
				}, tt.changed, nil
			}

			rec := ts.do(http.MethodPost, "/api/bookings/5/cancel", ts.token(7, model.RoleCustomer), "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Len(t, ts.events.events, tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, model.ReservationEventCancelled, ts.events.events[0].Type)
				assert.True(t, ts.events.events[0].OccurredAt.Equal(cancelledAt))
			}
		})
	}
}

func TestCancelBooking_InvalidID(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPost, "/api/bookings/abc/cancel", ts.token(7, model.RoleCustomer), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListClasses_EffectiveStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.classes.classes = []model.ClassSummary{
		{Class: model.Class{ID: 1, Capacity: 2, Status: model.ClassStatusScheduled}, BookedCount: 2},
		{Class: model.Class{ID: 2, Capacity: 5, Status: model.ClassStatusScheduled}, BookedCount: 1},
		{Class: model.Class{ID: 3, Capacity: 5, Status: model.ClassStatusCancelled}, BookedCount: 5},
	}

	rec := ts.do(http.MethodGet, "/api/classes", ts.token(7, model.RoleCustomer), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		ID        int64  `json:"id"`
		Status    string `json:"status"`
		Remaining int    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "Full", got[0].Status)
	assert.Equal(t, 0, got[0].Remaining)
	assert.Equal(t, "Scheduled", got[1].Status)
	assert.Equal(t, 4, got[1].Remaining)
	assert.Equal(t, "Cancelled", got[2].Status)
}

func TestListClasses_InvalidQuery(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.token(7, model.RoleCustomer)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/classes?trainer_id=x", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/classes?from=yesterday", token, "").Code)
}

func TestClassCount(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.booking.count = 4

	rec := ts.do(http.MethodGet, "/api/classes/3/count", ts.token(2, model.RoleTrainer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"class_id":3,"count":4}`, rec.Body.String())
}

func TestCreateClass(t *testing.T) {
	ts := newTestServer(t, nil)
	trainer := ts.token(2, model.RoleTrainer)

	body := `{"name":"Puppy basics","type":"obedience","schedule_at":"2026-06-01T10:00:00Z","capacity":6,"price":"40.005"}`
	rec := ts.do(http.MethodPost, "/api/classes", trainer, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got model.Class
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(2), got.TrainerID)
	assert.Equal(t, model.ClassStatusScheduled, got.Status)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("40.01")))

	rec = ts.do(http.MethodPost, "/api/classes", trainer, strings.Replace(body, `"capacity":6`, `"capacity":0`, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/classes", trainer, strings.Replace(body, `"40.005"`, `"-1"`, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/classes", ts.token(7, model.RoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteClass_HasReservations(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodDelete, "/api/classes/3", ts.token(2, model.RoleTrainer), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RESOURCE_HAS_RESERVATIONS", decodeError(t, rec).Code)
}

func TestClassRoster_OtherTrainer(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.classes.classes = []model.ClassSummary{{Class: model.Class{ID: 3, TrainerID: 2}}}

	rec := ts.do(http.MethodGet, "/api/classes/3/roster", ts.token(9, model.RoleTrainer), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := newTestServer(t, fakePinger{}).do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = newTestServer(t, fakePinger{err: errors.New("connection refused")}).do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = ts.do(http.MethodGet, "/api/nothing-here", ts.token(7, model.RoleCustomer), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 既知のルートは引き続き認証が必要
	rec = ts.do(http.MethodGet, "/api/classes", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
}

func TestListTrainers(t *testing.T) {
	ts := newTestServer(t, nil)
	specialization := "agility"
	ts.trainers.trainers = []model.Trainer{
		{ID: 2, FirstName: "Aki", LastName: "Sato", Email: "aki@example.com", Specialization: &specialization, YearsOfExperience: 4, PasswordHash: "secret-hash"},
		{ID: 1, FirstName: "Ren", LastName: "Ito", Email: "ren@example.com"},
	}

	rec := ts.do(http.MethodGet, "/api/trainers", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, role := range []model.Role{model.RoleCustomer, model.RoleTrainer} {
		rec = ts.do(http.MethodGet, "/api/trainers", ts.token(7, role), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-hash")

		var got []model.Trainer
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Equal(t, "agility", *got[0].Specialization)
	}

	ts.trainers.err = errors.New("db down")
	rec = ts.do(http.MethodGet, "/api/trainers", ts.token(7, model.RoleCustomer), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSignup_PasswordByteLimit(t *testing.T) {
	ts := newTestServer(t, nil)

	// 25文字だが75バイト
	password := strings.Repeat("犬", 25)
	body := fmt.Sprintf(`{"role":"customer","first_name":"A","last_name":"B","email":"a@example.com","password":%q}`, password)

	rec := ts.do(http.MethodPost, "/api/auth/signup", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Code)
	assert.Contains(t, apiErr.Message, "maxbytes")
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrapped booking error", fmt.Errorf("handler: %w", booking.ErrCapacityBelowBooked), http.StatusConflict, "CAPACITY_BELOW_BOOKED"},
		{"invalid capacity", booking.ErrInvalidCapacity, http.StatusUnprocessableEntity, "INVALID_CAPACITY"},
		{"email taken", auth.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"repository not found", fmt.Errorf("failed to get pet: %w", repository.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"in use", repository.ErrInUse, http.StatusConflict, "IN_USE"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "TIMEOUT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAPIError(tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestToAPIError_HidesStorageDetails(t *testing.T) {
	err := &booking.Error{Code: booking.CodeStorageFailure, Message: "storage failure", Err: errors.New("pq: password authentication failed")}
	got := toAPIError(err)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.NotContains(t, got.Message, "pq")
}
