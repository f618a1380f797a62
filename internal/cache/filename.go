package cache

import (
	"regexp"
	"strconv"
)

const compressedSuffix = "_c"

// filenamePattern 贪婪匹配 key，元数据始终是最后一段 _<digits>[_c]。
var filenamePattern = regexp.MustCompile(`^(.+)_(\d+)(_c)?$`)

// FileMeta 是文件名中携带的全部元数据。
type FileMeta struct {
	Key        string
	ExpiresAt  int64
	Compressed bool
}

// EncodeFilename 生成 "<key>_<expiresAt>" 或压缩时的 "<key>_<expiresAt>_c"。
func EncodeFilename(key string, expiresAt int64, compressed bool) string {
	name := key + "_" + strconv.FormatInt(expiresAt, 10)
	if compressed {
		name += compressedSuffix
	}
	return name
}

// DecodeFilename 解析文件名，不符合格式的文件返回 false。
func DecodeFilename(name string) (FileMeta, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return FileMeta{}, false
	}
	expiresAt, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return FileMeta{}, false
	}
	return FileMeta{
		Key:        m[1],
		ExpiresAt:  expiresAt,
		Compressed: m[3] != "",
	}, true
}
