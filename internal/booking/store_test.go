package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
	"github.com/uma-arai/sbcntr-happypaws/internal/repository"
)

// memStore はテスト用のReservationStoreです
// LockClass/LockReservationはキーごとのミューテックスでSELECT ... FOR UPDATEを再現し、
// 書き込みはコミットまでトランザクション内に保持します
type memStore struct {
	mu           sync.Mutex
	locks        map[string]*sync.Mutex
	classes      map[int64]model.Class
	petOwners    map[int64]int64
	reservations map[int64]model.Reservation
	nextID       int64

	conflicts int
	insertErr error
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{
		locks:        map[string]*sync.Mutex{},
		classes:      map[int64]model.Class{},
		petOwners:    map[int64]int64{},
		reservations: map[int64]model.Reservation{},
		nextID:       1000,
	}
}

func (s *memStore) addClass(id int64, capacity int, price string, status model.ClassStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[id] = model.Class{
		ID:         id,
		TrainerID:  1,
		Name:       fmt.Sprintf("class-%d", id),
		Type:       "obedience",
		ScheduleAt: time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC),
		Capacity:   capacity,
		Price:      decimal.RequireFromString(price),
		Status:     status,
	}
}

func (s *memStore) addPet(petID, customerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.petOwners[petID] = customerID
}

func (s *memStore) reservation(id int64) model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id]
}

func (s *memStore) class(id int64) model.Class {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes[id]
}

func (s *memStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.ReservationTx) error) error {
	s.mu.Lock()
	s.txCount++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return fmt.Errorf("%w: could not serialize access", repository.ErrConflict)
	}
	s.mu.Unlock()

	tx := &memTx{
		store:        s,
		held:         map[string]*sync.Mutex{},
		resUpdates:   map[int64]model.Reservation{},
		classUpdates: map[int64]model.Class{},
		classDeletes: map[int64]bool{},
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	store        *memStore
	held         map[string]*sync.Mutex
	inserts      []model.Reservation
	resUpdates   map[int64]model.Reservation
	classUpdates map[int64]model.Class
	classDeletes map[int64]bool
}

func (t *memTx) acquire(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	l := t.store.lockFor(key)
	l.Lock()
	t.held[key] = l
}

func (t *memTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range t.inserts {
		s.reservations[r.ID] = r
	}
	for id, r := range t.resUpdates {
		s.reservations[id] = r
	}
	for id, c := range t.classUpdates {
		s.classes[id] = c
	}
	for id := range t.classDeletes {
		delete(s.classes, id)
	}
}

// visibleReservations はこのトランザクションから見える予約を返します
func (t *memTx) visibleReservations() []model.Reservation {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reservation, 0, len(s.reservations)+len(t.inserts))
	for id, r := range s.reservations {
		if u, ok := t.resUpdates[id]; ok {
			r = u
		}
		out = append(out, r)
	}
	for _, r := range t.inserts {
		if u, ok := t.resUpdates[r.ID]; ok {
			r = u
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) FindClass(ctx context.Context, classID int64) (*model.Class, error) {
	if t.classDeletes[classID] {
		return nil, repository.ErrNotFound
	}
	if c, ok := t.classUpdates[classID]; ok {
		return &c, nil
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (t *memTx) LockClass(ctx context.Context, classID int64) (*model.Class, error) {
	t.acquire(fmt.Sprintf("class:%d", classID))
	return t.FindClass(ctx, classID)
}

func (t *memTx) UpdateClass(ctx context.Context, class *model.Class) error {
	t.classUpdates[class.ID] = *class
	return nil
}

func (t *memTx) DeleteClass(ctx context.Context, classID int64) error {
	t.classDeletes[classID] = true
	return nil
}

func (t *memTx) CompleteDueClasses(ctx context.Context, now time.Time) (int64, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.classes {
		if c.Status == model.ClassStatusScheduled && !c.ScheduleAt.After(now) {
			c.Status = model.ClassStatusCompleted
			t.classUpdates[id] = c
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountActive(ctx context.Context, classID int64) (int, error) {
	n := 0
	for _, r := range t.visibleReservations() {
		if r.ClassID == classID && r.Status.CountsTowardCapacity() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountAll(ctx context.Context, classID int64) (int, error) {
	n := 0
	for _, r := range t.visibleReservations() {
		if r.ClassID == classID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) HasBookedReservation(ctx context.Context, classID int64, subject model.Subject) (bool, error) {
	for _, r := range t.visibleReservations() {
		if r.ClassID == classID && r.Subject() == subject && r.Status == model.ReservationStatusBooked {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) PetOwnedBy(ctx context.Context, subject model.Subject) (bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.petOwners[subject.PetID]
	return ok && owner == subject.CustomerID, nil
}

func (t *memTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	s := t.store
	s.mu.Lock()
	if s.insertErr != nil {
		err := s.insertErr
		s.mu.Unlock()
		return err
	}
	s.nextID++
	r.ID = s.nextID
	s.mu.Unlock()

	t.inserts = append(t.inserts, *r)
	return nil
}

func (t *memTx) LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	t.acquire(fmt.Sprintf("reservation:%d", reservationID))
	for _, r := range t.visibleReservations() {
		if r.ID == reservationID {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error {
	r, err := t.LockReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	r.Status = status
	if status == model.ReservationStatusCancelled {
		r.CancelledAt = &at
	}
	r.UpdatedAt = at
	t.resUpdates[reservationID] = *r
	return nil
}

func (t *memTx) CancelBookedForClass(ctx context.Context, classID int64, at time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.visibleReservations() {
		if r.ClassID == classID && r.Status == model.ReservationStatusBooked {
			r.Status = model.ReservationStatusCancelled
			r.CancelledAt = &at
			r.UpdatedAt = at
			t.resUpdates[r.ID] = r
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) CompleteDueReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	classes := map[int64]model.Class{}
	t.store.mu.Lock()
	for id, c := range t.store.classes {
		classes[id] = c
	}
	t.store.mu.Unlock()

	var out []model.Reservation
	for _, r := range t.visibleReservations() {
		c, ok := classes[r.ClassID]
		if !ok || r.Status != model.ReservationStatusBooked || c.ScheduleAt.After(now) {
			continue
		}
		r.Status = model.ReservationStatusCompleted
		r.UpdatedAt = now
		t.resUpdates[r.ID] = r
		out = append(out, r)
	}
	return out, nil
}

// countingRecorder はRecorderの呼び出し回数を記録します
type countingRecorder struct {
	mu            sync.Mutex
	outcomes      map[string]int
	retries       int
	cancellations int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}}
}

func (r *countingRecorder) Admission(outcome string, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *countingRecorder) Retry(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *countingRecorder) Cancellation(changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if changed {
		r.cancellations++
	}
}
