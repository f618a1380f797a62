package cache

import (
	"errors"
	"fmt"
)

// Kind 对操作边界捕获的错误分类。
type Kind string

const (
	KindInvalidKey             Kind = "InvalidKey"
	KindSizeLimitExceeded      Kind = "SizeLimitExceeded"
	KindSerializationFailure   Kind = "SerializationFailure"
	KindDeserializationFailure Kind = "DeserializationFailure"
	KindIOFailure              Kind = "IOFailure"
	KindInitializationFailure  Kind = "InitializationFailure"
)

var (
	// ErrInvalidKey 表示 key 未通过 ValidateKey。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrSizeLimit 表示编码后的值超过 MaxFileSize。
	ErrSizeLimit = errors.New("payload exceeds max file size")
)

// Error 携带操作名与 key，是错误事件与日志的统一载体。
type Error struct {
	Op   string
	Key  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, key string, kind Kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// IsKind 判断 err 链上是否存在指定分类的 *Error。
func IsKind(err error, kind Kind) bool {
	var cacheErr *Error
	return errors.As(err, &cacheErr) && cacheErr.Kind == kind
}
