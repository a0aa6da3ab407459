package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

// ClassRepository はクラスの参照と作成を担当するインターフェースです
// 定員に影響する更新はReservationTxで行います
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	List(ctx context.Context, filter ClassFilter) ([]model.ClassSummary, error)
	GetByID(ctx context.Context, classID int64) (*model.ClassSummary, error)
	GetNamesByIDs(ctx context.Context, classIDs []int64) (map[int64]model.ClassName, error)
}

// ClassFilter はクラス一覧の絞り込み条件です
type ClassFilter struct {
	TrainerID *int64
	From      *time.Time
}

type ClassRepositoryImpl struct {
	db *DB
}

func NewClassRepository(db *DB) *ClassRepositoryImpl {
	return &ClassRepositoryImpl{db: db}
}

// Create はクラスを作成し、採番されたIDを設定します
func (r *ClassRepositoryImpl) Create(ctx context.Context, class *model.Class) error {
	ctx, seg := xray.BeginSubsegment(ctx, "ClassRepository.Create")
	defer seg.Close(nil)

	query := `
		INSERT INTO classes (
			trainer_id, name, description, type, schedule_at, capacity, price, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $9
		)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		class.TrainerID,
		class.Name,
		class.Description,
		class.Type,
		class.ScheduleAt,
		class.Capacity,
		class.Price,
		class.Status,
		time.Now(),
	).Scan(&class.ID, &class.CreatedAt, &class.UpdatedAt)
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to create class: %w", classify(err))
	}
	return nil
}

const classSummaryQuery = `
	SELECT
		c.id, c.trainer_id, c.name, c.description, c.type, c.schedule_at,
		c.capacity, c.price, c.status, c.created_at, c.updated_at,
		t.first_name || ' ' || t.last_name AS trainer_name,
		(
			SELECT COUNT(*)
			FROM reservations r
			WHERE r.class_id = c.id
			AND r.status IN ('Booked', 'Completed')
		) AS booked_count
	FROM classes c
	JOIN trainers t ON t.id = c.trainer_id`

// List はクラスを開催日時の昇順で取得します
func (r *ClassRepositoryImpl) List(ctx context.Context, filter ClassFilter) ([]model.ClassSummary, error) {
	query := classSummaryQuery + `
	WHERE ($1::BIGINT IS NULL OR c.trainer_id = $1)
	AND ($2::TIMESTAMPTZ IS NULL OR c.schedule_at >= $2)
	ORDER BY c.schedule_at ASC, c.id ASC`

	classes := []model.ClassSummary{}
	if err := r.db.selectContext(ctx, "ClassRepository.List", &classes, query, filter.TrainerID, filter.From); err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

// GetByID はクラスを1件取得します
func (r *ClassRepositoryImpl) GetByID(ctx context.Context, classID int64) (*model.ClassSummary, error) {
	var class model.ClassSummary
	if err := r.db.getContext(ctx, "ClassRepository.GetByID", &class, classSummaryQuery+"\n\tWHERE c.id = $1", classID); err != nil {
		return nil, fmt.Errorf("failed to get class %d: %w", classID, err)
	}
	return &class, nil
}

// GetNamesByIDs は通知文面用にクラス名と開催日時をまとめて取得します
func (r *ClassRepositoryImpl) GetNamesByIDs(ctx context.Context, classIDs []int64) (map[int64]model.ClassName, error) {
	names := make(map[int64]model.ClassName, len(classIDs))
	if len(classIDs) == 0 {
		return names, nil
	}

	var rows []struct {
		ID         int64     `db:"id"`
		Name       string    `db:"name"`
		ScheduleAt time.Time `db:"schedule_at"`
	}
	query := `SELECT id, name, schedule_at FROM classes WHERE id = ANY($1)`
	if err := r.db.selectContext(ctx, "ClassRepository.GetNamesByIDs", &rows, query, pq64(classIDs)); err != nil {
		return nil, fmt.Errorf("failed to get class names: %w", err)
	}

	for _, row := range rows {
		names[row.ID] = model.ClassName{Name: row.Name, ScheduleAt: row.ScheduleAt}
	}
	return names, nil
}
