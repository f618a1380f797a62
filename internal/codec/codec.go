// Package codec 定义缓存值与磁盘字节之间的转换。Engine 只依赖 Codec 接口，
// 默认的 Graph 编码能够还原共享引用与环形结构，JSON 编码保留给只需树形数据的场景。
package codec

import (
	"encoding/json"
	"errors"
)

// Codec 负责把缓存值编码为字节并还原。
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// ErrUnsupported 表示值中包含无法持久化的类型（chan、func、complex 等）。
var ErrUnsupported = errors.New("codec: unsupported value")

// ErrCorrupt 表示待解码的数据结构不完整或引用越界。
var ErrCorrupt = errors.New("codec: corrupt payload")

// JSON 直接使用 encoding/json，遇到环形引用会失败。
type JSON[T any] struct{}

func (JSON[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

func (JSON[T]) Decode(data []byte) (T, error) {
	var out T
	err := json.Unmarshal(data, &out)
	return out, err
}

var (
	_ Codec[any] = JSON[any]{}
	_ Codec[any] = Graph[any]{}
)
