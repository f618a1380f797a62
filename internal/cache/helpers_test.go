package cache

import (
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/any-hub/any-cache/internal/codec"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type profile struct {
	Name  string            `json:"name"`
	Age   int               `json:"age"`
	Tags  []string          `json:"tags"`
	Attrs map[string]string `json:"attrs"`
}

// testOptions 关闭定时清理并注入假时钟，测试按需再修改。
func testOptions(t *testing.T, clock *fakeClock) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Dir = t.TempDir()
	opts.EnableAutoCleanup = false
	opts.Now = clock.Now
	return opts
}

func openEngine[T any](t *testing.T, opts Options) *Engine[T] {
	t.Helper()
	e, err := Open[T](opts)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, de := range entries {
		names = append(names, de.Name())
	}
	sort.Strings(names)
	return names
}

func encodeString(t *testing.T, v string) []byte {
	t.Helper()
	data, err := codec.Graph[string]{}.Encode(v)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	return data
}
