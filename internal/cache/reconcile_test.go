package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestPersistenceAcrossRestart(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)

	first, err := Open[string](opts)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	first.Set("keep", "v1")
	first.Set("short", "v2", WithTTL(time.Second))
	first.Set("long", "v3", WithTTL(time.Hour))
	_ = first.Close()

	clock.Advance(2 * time.Second)
	second := openEngine[string](t, opts)

	if got, ok := second.Get("keep"); !ok || got != "v1" {
		t.Fatalf("重启后应能读取永久条目, got %q %v", got, ok)
	}
	if got, ok := second.Get("long"); !ok || got != "v3" {
		t.Fatalf("重启后应能读取未过期条目")
	}
	if second.Has("short") {
		t.Fatalf("重启前已过期的条目不应被加载")
	}
	for _, name := range listFiles(t, second.Dir()) {
		if meta, _ := DecodeFilename(name); meta.Key == "short" {
			t.Fatalf("过期文件应在启动时删除: %s", name)
		}
	}
}

func TestReconcileRestoresTimestampsAndOrder(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.MaxSize = 3

	first, err := Open[string](opts)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	first.Set("old", "1")
	clock.Advance(time.Second)
	first.Set("mid", "2")
	clock.Advance(time.Second)
	first.Set("new", "3")
	_ = first.Close()

	second := openEngine[string](t, opts)
	entry, _ := second.Entry("old")
	if !entry.CreatedAt.Equal(newFakeClock().Now()) {
		t.Fatalf("createdAt 应从 mtime 恢复, got %v", entry.CreatedAt)
	}

	second.Set("extra", "4")
	if keys := second.Keys(); !reflect.DeepEqual(keys, []string{"extra", "mid", "new"}) {
		t.Fatalf("重启后应按 mtime 恢复 LRU 顺序, got %v", keys)
	}
}

func TestReconcileSkipsForeignAndTempFiles(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	dir := opts.Dir

	payload := encodeString(t, "v")
	files := map[string][]byte{
		"README":         []byte("hello"),
		"k_007":          payload,
		"bad:key_0":      payload,
		".write-123.tmp": payload,
		"good_0":         payload,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("准备文件失败: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested_0"), 0o755); err != nil {
		t.Fatalf("准备目录失败: %v", err)
	}

	e := openEngine[string](t, opts)
	if keys := e.Keys(); !reflect.DeepEqual(keys, []string{"good"}) {
		t.Fatalf("只应加载合法条目, got %v", keys)
	}
	if _, err := os.Stat(filepath.Join(dir, ".write-123.tmp")); !os.IsNotExist(err) {
		t.Fatalf("残留的临时文件应被删除")
	}
	if _, err := os.Stat(filepath.Join(dir, "README")); err != nil {
		t.Fatalf("无关文件应原样保留: %v", err)
	}
}

func TestReconcileKeepsNewestDuplicate(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	dir := opts.Dir

	older := clock.Now().Add(-time.Minute)
	newer := clock.Now().Add(-time.Second)
	far := clock.Now().Add(time.Hour).UnixMilli()

	if err := writeFileAtomic(dir, EncodeFilename("dup", 0, false), encodeString(t, "stale"), older); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := writeFileAtomic(dir, EncodeFilename("dup", far, false), encodeString(t, "fresh"), newer); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	e := openEngine[string](t, opts)
	if got, ok := e.Get("dup"); !ok || got != "fresh" {
		t.Fatalf("应保留 mtime 最新的文件, got %q", got)
	}
	if files := listFiles(t, dir); len(files) != 1 {
		t.Fatalf("旧的重复文件应被删除: %v", files)
	}
}
