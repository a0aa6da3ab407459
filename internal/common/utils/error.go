package utils

import (
	"errors"
	"runtime/debug"
)

// StackError は発生箇所のスタックトレースを保持するエラーです
// Error()は元のメッセージのみを返すため、Step Functionsへ返す原因にはスタックが混ざりません
type StackError struct {
	Err   error
	stack []byte
}

func (e *StackError) Error() string { return e.Err.Error() }

func (e *StackError) Unwrap() error { return e.Err }

// Stack は記録したスタックトレースを返します
func (e *StackError) Stack() string { return string(e.stack) }

// WithStack はerrに現在のスタックトレースを添えます
// 既にスタックトレースを持つエラーはそのまま返します
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var se *StackError
	if errors.As(err, &se) {
		return err
	}
	return &StackError{Err: err, stack: debug.Stack()}
}

// StackOf はエラーの連鎖からスタックトレースを取り出します。見つからなければ空文字です
func StackOf(err error) string {
	var se *StackError
	if errors.As(err, &se) {
		return se.Stack()
	}
	return ""
}
