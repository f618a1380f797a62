package cache

import (
	"fmt"
	"strings"
)

const (
	// MaxKeyLength 是 key 的最大字节数。
	MaxKeyLength = 255

	// maxFilenameLength 是常见文件系统单个文件名的字节上限。
	maxFilenameLength = 255
	// maxFilenameSuffix 是 "_<expiresAt>_c" 的最长形式，expiresAt 最多 19 位。
	maxFilenameSuffix = 1 + 19 + len(compressedSuffix)

	// MaxStorableKeyLength 保证任意过期时间与压缩标记下文件名都不超过上限。
	MaxStorableKeyLength = maxFilenameLength - maxFilenameSuffix
)

const forbiddenKeyChars = `<>:"/\|?*`

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// ValidateKey 拒绝空串、超长、路径穿越、文件系统保留字符以及设备名，
// 返回的错误包裹 ErrInvalidKey 并说明原因。
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	case len(key) > MaxStorableKeyLength:
		return fmt.Errorf("%w: longer than %d bytes, filename would exceed %d", ErrInvalidKey, MaxStorableKeyLength, maxFilenameLength)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: contains \"..\"", ErrInvalidKey)
	}

	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x20 {
			return fmt.Errorf("%w: control character 0x%02x", ErrInvalidKey, c)
		}
		if strings.IndexByte(forbiddenKeyChars, c) >= 0 {
			return fmt.Errorf("%w: forbidden character %q", ErrInvalidKey, c)
		}
	}

	if _, reserved := reservedNames[strings.ToUpper(key)]; reserved {
		return fmt.Errorf("%w: reserved device name", ErrInvalidKey)
	}
	return nil
}

// ValidKey 是 ValidateKey 的布尔形式。
func ValidKey(key string) bool {
	return ValidateKey(key) == nil
}
