package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// serializer 负责编码结果的体积校验与压缩策略，不关心值的具体类型。
type serializer struct {
	compress    bool
	threshold   int
	level       int
	maxFileSize int64
}

type packed struct {
	data       []byte
	compressed bool
	rawSize    int
}

func newSerializer(opts Options) serializer {
	return serializer{
		compress:    opts.EnableCompression,
		threshold:   opts.CompressionThreshold,
		level:       opts.CompressionLevel,
		maxFileSize: opts.MaxFileSize,
	}
}

// pack 在超过阈值时尝试 gzip，只有压缩结果严格更小才采用。
func (s serializer) pack(raw []byte) (packed, error) {
	if int64(len(raw)) > s.maxFileSize {
		return packed{}, fmt.Errorf("%w: %d > %d bytes", ErrSizeLimit, len(raw), s.maxFileSize)
	}
	out := packed{data: raw, rawSize: len(raw)}
	if !s.compress || len(raw) <= s.threshold {
		return out, nil
	}

	zipped, err := s.gzip(raw)
	if err != nil {
		return packed{}, err
	}
	if len(zipped) < len(raw) {
		out.data = zipped
		out.compressed = true
	}
	return out, nil
}

func (s serializer) unpack(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (s serializer) gzip(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
