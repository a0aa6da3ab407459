package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// DB はX-Rayのサブセグメントを付与するsqlx.DBのラッパーです
// 接続はcommon/databaseで生成したものを受け取り、このパッケージでは生成も破棄もしません
type DB struct {
	*sqlx.DB
}

// NewDB は既存の接続からDBを作成します
func NewDB(conn *sqlx.DB) *DB {
	return &DB{DB: conn}
}

// Migrate はスキーマを適用します。既存のテーブルは変更しません
func (db *DB) Migrate(ctx context.Context) error {
	ctx, seg := xray.BeginSubsegment(ctx, "DB.Migrate")
	defer seg.Close(nil)

	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping はヘルスチェック用に接続を確認します
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// withinTx はfnを一つのトランザクションで実行します
// fnがエラーを返した場合はロールバックし、それ以外はコミットします
func (db *DB) withinTx(ctx context.Context, name string, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer func() { seg.Close(err) }()

	tx, err := db.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	// トランザクションのロールバックを遅延実行
	// エラーが発生した場合のみロールバックを実行
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Printf("rollback failed: %v, original error: %v", rbErr, err)
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return classify(err)
	}

	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// getContext wraps sqlx.DB.GetContext with X-Ray tracing
func (db *DB) getContext(ctx context.Context, name string, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer seg.Close(nil)

	if err := db.DB.GetContext(ctx, dest, query, args...); err != nil {
		seg.Close(err)
		return classify(err)
	}
	return nil
}

// selectContext wraps sqlx.DB.SelectContext with X-Ray tracing
func (db *DB) selectContext(ctx context.Context, name string, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer seg.Close(nil)

	if err := db.DB.SelectContext(ctx, dest, query, args...); err != nil {
		seg.Close(err)
		return classify(err)
	}
	return nil
}

// execContext wraps sqlx.DB.ExecContext with X-Ray tracing
// affectedが必要な場合は更新件数0をErrNotFoundとして返します
func (db *DB) execContext(ctx context.Context, name string, requireRow bool, query string, args ...interface{}) error {
	ctx, seg := xray.BeginSubsegment(ctx, name)
	defer seg.Close(nil)

	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		seg.Close(err)
		return classify(err)
	}
	if !requireRow {
		return nil
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		seg.Close(err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
