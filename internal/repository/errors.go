package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	// ErrNotFound は対象の行が存在しない場合に返します
	ErrNotFound = errors.New("record not found")
	// ErrConflict は直列化失敗やデッドロックでトランザクションが中断された場合に返します
	// 呼び出し側でリトライ可能です
	ErrConflict = errors.New("transaction conflict")
	// ErrDuplicate は一意制約違反の場合に返します
	ErrDuplicate = errors.New("duplicate record")
	// ErrInUse は他のレコードから参照されているため削除できない場合に返します
	ErrInUse = errors.New("record is referenced")
)

// classify はドライバのエラーをリポジトリのエラーに変換します
// 変換対象でないエラーはそのまま返します
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInUse, pqErr.Constraint)
		}
	}
	return err
}

// IsConflict はリトライ可能な競合エラーかどうかを返します
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
