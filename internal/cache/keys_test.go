package cache

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	valid := []string{
		"user",
		"session-abc",
		"a_1",
		"report_2024_c",
		"日本語",
		"con.txt",
		strings.Repeat("k", MaxStorableKeyLength),
	}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Fatalf("key %q 应合法: %v", key, err)
		}
	}

	invalid := map[string]string{
		"empty":                 "",
		"too long":              strings.Repeat("k", MaxKeyLength+1),
		"too long for filename": strings.Repeat("k", MaxStorableKeyLength+1),
		"traversal":             "a..b",
		"slash":                 "a/b",
		"backslash":             `a\b`,
		"colon":                 "a:b",
		"star":                  "a*",
		"question":              "a?",
		"pipe":                  "a|b",
		"quote":                 `a"b`,
		"angle":                 "<a>",
		"newline":               "a\nb",
		"nul":                   "a\x00",
		"device":                "con",
		"device2":               "LPT1",
	}
	for name, key := range invalid {
		err := ValidateKey(key)
		if err == nil {
			t.Fatalf("%s: key %q 应被拒绝", name, key)
		}
		if !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("%s: 错误应包裹 ErrInvalidKey: %v", name, err)
		}
	}
}

func TestMaxKeyLengthCountsBytes(t *testing.T) {
	// "é" 占两个字节
	key := strings.Repeat("é", MaxStorableKeyLength/2+1)
	if ValidKey(key) {
		t.Fatalf("按字节计算的超长 key 应被拒绝")
	}
}

func TestLongestKeyFitsFilename(t *testing.T) {
	key := strings.Repeat("k", MaxStorableKeyLength)
	name := EncodeFilename(key, math.MaxInt64, true)
	if len(name) > maxFilenameLength {
		t.Fatalf("最长合法 key 的文件名超过上限: %d", len(name))
	}
	meta, ok := DecodeFilename(name)
	if !ok || meta.Key != key || meta.ExpiresAt != math.MaxInt64 || !meta.Compressed {
		t.Fatalf("文件名应能还原: %+v ok=%v", meta, ok)
	}
}
