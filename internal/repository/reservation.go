package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// ReservationStore は予約の書き込みに使うトランザクション境界を提供します
type ReservationStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReservationTx) error) error
}

// ReservationTx は一つのトランザクション内で行う予約・クラスの操作です
// Lock系のメソッドは行ロック(SELECT ... FOR UPDATE)を取得し、コミットまで保持します
type ReservationTx interface {
	FindClass(ctx context.Context, classID int64) (*model.Class, error)
	LockClass(ctx context.Context, classID int64) (*model.Class, error)
	UpdateClass(ctx context.Context, class *model.Class) error
	DeleteClass(ctx context.Context, classID int64) error
	CompleteDueClasses(ctx context.Context, now time.Time) (int64, error)

	// CountActive はBooked/Completedの予約数を返します
	CountActive(ctx context.Context, classID int64) (int, error)
	CountAll(ctx context.Context, classID int64) (int, error)
	HasBookedReservation(ctx context.Context, classID int64, subject model.Subject) (bool, error)
	PetOwnedBy(ctx context.Context, subject model.Subject) (bool, error)

	InsertReservation(ctx context.Context, r *model.Reservation) error
	LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error
	CancelBookedForClass(ctx context.Context, classID int64, at time.Time) ([]model.Reservation, error)
	CompleteDueReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// ReservationRepository は予約の参照系を担当するインターフェースです
type ReservationRepository interface {
	ReservationStore
	List(ctx context.Context, filter model.ReservationFilter) ([]model.ReservationDetail, error)
	GetByID(ctx context.Context, reservationID int64) (*model.ReservationDetail, error)
}

type ReservationRepositoryImpl struct {
	db *DB
}

func NewReservationRepository(db *DB) *ReservationRepositoryImpl {
	return &ReservationRepositoryImpl{db: db}
}

// WithinTx はfnをREAD COMMITTEDのトランザクションで実行します
// 定員判定の直列化はLockClassの行ロックで行います
func (r *ReservationRepositoryImpl) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ReservationTx) error) error {
	return r.db.withinTx(ctx, "ReservationRepository.WithinTx", func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &reservationTx{tx: tx})
	})
}

const reservationDetailQuery = `
	SELECT
		r.id, r.class_id, r.customer_id, r.pet_id, r.status, r.price_paid,
		r.created_at, r.cancelled_at, r.updated_at,
		c.name AS class_name,
		c.schedule_at,
		c.trainer_id,
		p.name AS pet_name,
		cu.first_name || ' ' || cu.last_name AS customer_name
	FROM reservations r
	JOIN classes c ON c.id = r.class_id
	JOIN pets p ON p.id = r.pet_id
	JOIN customers cu ON cu.id = r.customer_id`

// List は条件に一致する予約を開催日時の新しい順に取得します
func (r *ReservationRepositoryImpl) List(ctx context.Context, filter model.ReservationFilter) ([]model.ReservationDetail, error) {
	var where []string
	var args []interface{}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("r.customer_id = $%d", len(args)))
	}
	if filter.TrainerID != nil {
		args = append(args, *filter.TrainerID)
		where = append(where, fmt.Sprintf("c.trainer_id = $%d", len(args)))
	}
	if filter.ClassID != nil {
		args = append(args, *filter.ClassID)
		where = append(where, fmt.Sprintf("r.class_id = $%d", len(args)))
	}

	query := reservationDetailQuery
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\tORDER BY c.schedule_at DESC, r.id ASC"

	reservations := []model.ReservationDetail{}
	if err := r.db.selectContext(ctx, "ReservationRepository.List", &reservations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// GetByID は予約を1件取得します
func (r *ReservationRepositoryImpl) GetByID(ctx context.Context, reservationID int64) (*model.ReservationDetail, error) {
	var reservation model.ReservationDetail
	if err := r.db.getContext(ctx, "ReservationRepository.GetByID", &reservation, reservationDetailQuery+"\n\tWHERE r.id = $1", reservationID); err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
	}
	return &reservation, nil
}

type reservationTx struct {
	tx *sqlx.Tx
}

const classColumns = `id, trainer_id, name, description, type, schedule_at, capacity, price, status, created_at, updated_at`

const reservationColumns = `id, class_id, customer_id, pet_id, status, price_paid, created_at, cancelled_at, updated_at`

func (t *reservationTx) get(ctx context.Context, name string, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer seg.Close(nil)

	if err := t.tx.GetContext(ctx, dest, query, args...); err != nil {
		seg.Close(err)
		return classify(err)
	}
	return nil
}

func (t *reservationTx) exec(ctx context.Context, name string, query string, args ...interface{}) (int64, error) {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer seg.Close(nil)

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		seg.Close(err)
		return 0, classify(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// FindClass はロックを取らずにクラスを取得します
func (t *reservationTx) FindClass(ctx context.Context, classID int64) (*model.Class, error) {
	var class model.Class
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	if err := t.get(ctx, "ReservationTx.FindClass", &class, query, classID); err != nil {
		return nil, err
	}
	return &class, nil
}

// LockClass はクラスの行ロックを取得します
// 同じクラスに対する予約受付はここで直列化されます
func (t *reservationTx) LockClass(ctx context.Context, classID int64) (*model.Class, error) {
	var class model.Class
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1 FOR UPDATE`
	if err := t.get(ctx, "ReservationTx.LockClass", &class, query, classID); err != nil {
		return nil, err
	}
	return &class, nil
}

// UpdateClass はクラスの編集可能な項目とステータスを更新します
func (t *reservationTx) UpdateClass(ctx context.Context, class *model.Class) error {
	query := `
		UPDATE classes
		SET name = $1,
			description = $2,
			type = $3,
			schedule_at = $4,
			capacity = $5,
			price = $6,
			status = $7,
			updated_at = $8
		WHERE id = $9
		RETURNING updated_at`

	ctx, seg := xray.BeginSubsegment(ctx, "ReservationTx.UpdateClass")
	defer seg.Close(nil)

	err := t.tx.QueryRowxContext(ctx, query,
		class.Name,
		class.Description,
		class.Type,
		class.ScheduleAt,
		class.Capacity,
		class.Price,
		class.Status,
		time.Now(),
		class.ID,
	).Scan(&class.UpdatedAt)
	if err != nil {
		seg.Close(err)
		return classify(err)
	}
	return nil
}

func (t *reservationTx) DeleteClass(ctx context.Context, classID int64) error {
	n, err := t.exec(ctx, "ReservationTx.DeleteClass", `DELETE FROM classes WHERE id = $1`, classID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteDueClasses は開催日時を過ぎたScheduledのクラスをCompletedにします
func (t *reservationTx) CompleteDueClasses(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE classes
		SET status = $1, updated_at = $2
		WHERE status = $3
		AND schedule_at <= $2`
	return t.exec(ctx, "ReservationTx.CompleteDueClasses", query, model.ClassStatusCompleted, now, model.ClassStatusScheduled)
}

func (t *reservationTx) CountActive(ctx context.Context, classID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM reservations
		WHERE class_id = $1
		AND status IN ($2, $3)`
	err := t.get(ctx, "ReservationTx.CountActive", &count, query, classID, model.ReservationStatusBooked, model.ReservationStatusCompleted)
	return count, err
}

func (t *reservationTx) CountAll(ctx context.Context, classID int64) (int, error) {
	var count int
	err := t.get(ctx, "ReservationTx.CountAll", &count, `SELECT COUNT(*) FROM reservations WHERE class_id = $1`, classID)
	return count, err
}

func (t *reservationTx) HasBookedReservation(ctx context.Context, classID int64, subject model.Subject) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM reservations
			WHERE class_id = $1
			AND customer_id = $2
			AND pet_id = $3
			AND status = $4
		)`
	var exists bool
	err := t.get(ctx, "ReservationTx.HasBookedReservation", &exists, query, classID, subject.CustomerID, subject.PetID, model.ReservationStatusBooked)
	return exists, err
}

func (t *reservationTx) PetOwnedBy(ctx context.Context, subject model.Subject) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM pets WHERE id = $1 AND customer_id = $2)`
	err := t.get(ctx, "ReservationTx.PetOwnedBy", &exists, query, subject.PetID, subject.CustomerID)
	return exists, err
}

// InsertReservation は予約を作成し、採番されたIDを設定します
func (t *reservationTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationTx.InsertReservation")
	defer seg.Close(nil)

	query := `
		INSERT INTO reservations (
			class_id, customer_id, pet_id, status, price_paid, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $6
		)
		RETURNING id, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		r.ClassID,
		r.CustomerID,
		r.PetID,
		r.Status,
		r.PricePaid,
		r.CreatedAt,
	).Scan(&r.ID, &r.UpdatedAt)
	if err != nil {
		seg.Close(err)
		return classify(err)
	}
	return nil
}

func (t *reservationTx) LockReservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	var reservation model.Reservation
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	if err := t.get(ctx, "ReservationTx.LockReservation", &reservation, query, reservationID); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// UpdateReservationStatus は予約のステータスを更新します
// Cancelledへの遷移ではキャンセル日時も記録します
func (t *reservationTx) UpdateReservationStatus(ctx context.Context, reservationID int64, status model.ReservationStatus, at time.Time) error {
	query := `
		UPDATE reservations
		SET status = $1,
			cancelled_at = CASE WHEN $1 = 'Cancelled' THEN $2 ELSE cancelled_at END,
			updated_at = $2
		WHERE id = $3`

	n, err := t.exec(ctx, "ReservationTx.UpdateReservationStatus", query, status, at, reservationID)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelBookedForClass はクラスのBookedの予約をすべてCancelledにし、更新した予約を返します
func (t *reservationTx) CancelBookedForClass(ctx context.Context, classID int64, at time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationTx.CancelBookedForClass")
	defer seg.Close(nil)

	query := `
		UPDATE reservations
		SET status = $1, cancelled_at = $2, updated_at = $2
		WHERE class_id = $3
		AND status = $4
		RETURNING ` + reservationColumns

	reservations := []model.Reservation{}
	if err := t.tx.SelectContext(ctx, &reservations, query, model.ReservationStatusCancelled, at, classID, model.ReservationStatusBooked); err != nil {
		seg.Close(err)
		return nil, classify(err)
	}
	return reservations, nil
}

// CompleteDueReservations は開催日時を過ぎたBookedの予約をCompletedにし、更新した予約を返します
func (t *reservationTx) CompleteDueReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	ctx, seg := xray.BeginSubsegment(ctx, "ReservationTx.CompleteDueReservations")
	defer seg.Close(nil)

	query := `
		UPDATE reservations r
		SET status = $1, updated_at = $2
		FROM classes c
		WHERE r.class_id = c.id
		AND r.status = $3
		AND c.schedule_at <= $2
		RETURNING r.id, r.class_id, r.customer_id, r.pet_id, r.status, r.price_paid,
			r.created_at, r.cancelled_at, r.updated_at`

	reservations := []model.Reservation{}
	if err := t.tx.SelectContext(ctx, &reservations, query, model.ReservationStatusCompleted, now, model.ReservationStatusBooked); err != nil {
		seg.Close(err)
		return nil, classify(err)
	}
	return reservations, nil
}
