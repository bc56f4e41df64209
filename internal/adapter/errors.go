package adapter

import (
	"github.com/go-faster/errors"
)

// ErrCancelled 操作在表或列之间被取消
var ErrCancelled = errors.New("operation cancelled")

type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	return ErrCancelled.Error() + ": " + e.cause.Error()
}

func (e *cancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *cancelledError) Unwrap() error {
	return e.cause
}

// Cancelled 包装上下文错误，使其同时匹配 ErrCancelled 和原始的 context 错误
func Cancelled(cause error) error {
	if cause == nil {
		return nil
	}
	return &cancelledError{cause: cause}
}
