package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout はRunWithTimeoutが制限時間を超えた場合に返すエラーです
var ErrTimeout = errors.New("process timed out")

// RunWithTimeout は指定されたタイムアウト時間内で処理を実行する
// タイムアウトを超えた場合は、コンテキストをキャンセルしてErrTimeoutを返す
// 親コンテキストがキャンセルされた場合はその理由を返す
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// fnが戻らなくてもゴルーチンが詰まらないようにバッファを持たせる
	errChan := make(chan error, 1)

	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return ctx.Err()
	}
}
