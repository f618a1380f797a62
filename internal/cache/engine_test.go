package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/any-hub/any-cache/internal/events"
)

func TestSetGetRoundTrip(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[profile](t, testOptions(t, clock))

	want := profile{
		Name:  "alice",
		Age:   31,
		Tags:  []string{"admin", "ops"},
		Attrs: map[string]string{"team": "infra"},
	}
	if !e.Set("user-1", want) {
		t.Fatalf("Set 应成功")
	}
	got, ok := e.Get("user-1")
	if !ok {
		t.Fatalf("Get 应命中")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("读取结果不一致: %+v", got)
	}
	if !e.Has("user-1") || e.Size() != 1 {
		t.Fatalf("Has/Size 状态异常")
	}
	if files := listFiles(t, e.Dir()); len(files) != 1 || files[0] != "user-1_0" {
		t.Fatalf("unexpected files %v", files)
	}
}

type node struct {
	Name string
	Next *node
}

func TestCyclicValueRoundTrip(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[*node](t, testOptions(t, clock))

	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b
	if !e.Set("ring", a) {
		t.Fatalf("环形结构应能写入")
	}
	got, ok := e.Get("ring")
	if !ok {
		t.Fatalf("Get 应命中")
	}
	if got.Name != "a" || got.Next.Name != "b" || got.Next.Next != got {
		t.Fatalf("环形结构未被还原")
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	if !e.Set("token", "v", WithTTL(time.Second)) {
		t.Fatalf("Set 应成功")
	}
	entry, _ := e.Entry("token")
	if entry.ExpiresAt != clock.Now().UnixMilli()+1000 {
		t.Fatalf("expiresAt 计算错误: %d", entry.ExpiresAt)
	}

	clock.Advance(time.Second)
	if !e.Has("token") {
		t.Fatalf("恰好到达过期时间时仍应存在")
	}
	clock.Advance(time.Millisecond)
	if e.Has("token") {
		t.Fatalf("过期后 Has 应返回 false")
	}
	if _, ok := e.Get("token"); ok {
		t.Fatalf("过期后 Get 应未命中")
	}
	if files := listFiles(t, e.Dir()); len(files) != 0 {
		t.Fatalf("过期文件应被删除: %v", files)
	}
	st := e.Stats()
	if st.Expirations != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.DefaultTTL = time.Minute
	e := openEngine[int](t, opts)

	e.Set("a", 1)
	e.Set("b", 2, WithTTL(0))

	a, _ := e.Entry("a")
	if a.ExpiresAt != clock.Now().UnixMilli()+60_000 {
		t.Fatalf("未指定 TTL 时应使用 DefaultTTL")
	}
	b, _ := e.Entry("b")
	if b.ExpiresAt != 0 {
		t.Fatalf("WithTTL(0) 应永不过期")
	}
}

func TestSetReplacesPreviousFile(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	e.Set("k", "v1", WithTTL(time.Hour))
	e.Set("k", "v2")
	e.Set("k", "v3")

	if files := listFiles(t, e.Dir()); len(files) != 1 || files[0] != "k_0" {
		t.Fatalf("旧文件应被替换: %v", files)
	}
	if got, _ := e.Get("k"); got != "v3" {
		t.Fatalf("应读到最新值, got %q", got)
	}
	if e.Stats().Sets != 3 {
		t.Fatalf("sets 计数错误")
	}
}

func TestInvalidKeys(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	var reported []events.Error
	events.On(e.Events(), func(ev events.Error) { reported = append(reported, ev) })

	if e.Set("a/b", "x") {
		t.Fatalf("非法 key 的 Set 应失败")
	}
	if _, ok := e.Get(""); ok {
		t.Fatalf("非法 key 的 Get 应未命中")
	}
	if e.Has("..") || e.Delete("con") {
		t.Fatalf("非法 key 的 Has/Delete 应返回 false")
	}
	if len(reported) != 4 {
		t.Fatalf("每次非法 key 都应报告错误, got %d", len(reported))
	}
	if !errors.Is(reported[0].Cause, ErrInvalidKey) {
		t.Fatalf("错误原因应为 ErrInvalidKey: %v", reported[0].Cause)
	}
	st := e.Stats()
	if st.Errors != 4 || st.Misses != 0 {
		t.Fatalf("非法 key 只计入 errors: %+v", st)
	}
	if files := listFiles(t, e.Dir()); len(files) != 0 {
		t.Fatalf("不应产生文件: %v", files)
	}
}

func TestLongestKeyStoredWithTTL(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.EnableCompression = true
	opts.CompressionThreshold = 16
	e := openEngine[string](t, opts)

	key := strings.Repeat("k", MaxStorableKeyLength)
	value := strings.Repeat("payload ", 64)
	if !e.Set(key, value, WithTTL(100*365*24*time.Hour)) {
		t.Fatalf("最长合法 key 带 TTL 写入应成功, errors=%d", e.Stats().Errors)
	}
	entry, _ := e.Entry(key)
	if !entry.Compressed || entry.ExpiresAt == 0 {
		t.Fatalf("应同时携带过期时间与压缩标记: %+v", entry)
	}
	if got, ok := e.Get(key); !ok || got != value {
		t.Fatalf("最长合法 key 应能读回")
	}
	if e.Set(key+"k", value, WithTTL(time.Hour)) {
		t.Fatalf("超出文件名预算的 key 应被拒绝")
	}
}

func TestSizeLimitLeavesNothing(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.MaxFileSize = 32
	e := openEngine[string](t, opts)

	var cause error
	events.On(e.Events(), func(ev events.Error) { cause = ev.Cause })

	if e.Set("big", strings.Repeat("x", 64)) {
		t.Fatalf("超过 MaxFileSize 的 Set 应失败")
	}
	if !errors.Is(cause, ErrSizeLimit) {
		t.Fatalf("应报告 ErrSizeLimit, got %v", cause)
	}
	if e.Size() != 0 || len(listFiles(t, e.Dir())) != 0 {
		t.Fatalf("失败的写入不应留下索引或文件")
	}
}

func TestCompressionPolicy(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.EnableCompression = true
	opts.CompressionThreshold = 128
	e := openEngine[string](t, opts)

	large := strings.Repeat("compressible ", 200)
	e.Set("large", large)
	e.Set("small", "tiny")

	entry, _ := e.Entry("large")
	if !entry.Compressed || !strings.HasSuffix(entry.Filename(), "_c") {
		t.Fatalf("大值应被压缩: %+v", entry)
	}
	if got, _ := e.Get("large"); got != large {
		t.Fatalf("压缩值读取不一致")
	}
	if small, _ := e.Entry("small"); small.Compressed {
		t.Fatalf("小值不应压缩")
	}

	cs := e.CompressionStats()
	if !cs.Enabled || cs.CompressedEntries != 1 || cs.TotalEntries != 2 || cs.Ratio != 0.5 {
		t.Fatalf("unexpected compression stats %+v", cs)
	}
}

func TestDelete(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	if !e.Delete("absent") {
		t.Fatalf("删除不存在的 key 应视为成功")
	}
	e.Set("k", "v")

	var changes []events.Change
	events.On(e.Events(), func(ev events.Change) { changes = append(changes, ev) })

	if !e.Delete("k") {
		t.Fatalf("删除应成功")
	}
	if e.Has("k") || len(listFiles(t, e.Dir())) != 0 {
		t.Fatalf("删除后文件与索引都应移除")
	}
	if e.Stats().Deletes != 1 {
		t.Fatalf("deletes 计数错误")
	}
	if len(changes) != 1 || changes[0].Operation != "delete" || changes[0].Key != "k" {
		t.Fatalf("unexpected change events %+v", changes)
	}
}

func TestClear(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[int](t, testOptions(t, clock))

	for i, key := range []string{"a", "b", "c"} {
		e.Set(key, i)
	}
	cleared := -1
	events.On(e.Events(), func(ev events.Clear) { cleared = ev.EntriesRemoved })

	if !e.Clear() {
		t.Fatalf("Clear 应成功")
	}
	if e.Size() != 0 || len(e.Keys()) != 0 {
		t.Fatalf("Clear 后索引应为空")
	}
	if files := listFiles(t, e.Dir()); len(files) != 0 {
		t.Fatalf("Clear 后目录应为空: %v", files)
	}
	if cleared != 3 {
		t.Fatalf("clear 事件应携带原条目数, got %d", cleared)
	}
}

func TestClearKeepsIndexWhenDirUnreadable(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[int](t, testOptions(t, clock))
	for i, key := range []string{"a", "b", "c"} {
		e.Set(key, i)
	}

	dir := e.Dir()
	moved := dir + ".moved"
	if err := os.Rename(dir, moved); err != nil {
		t.Fatalf("移动目录失败: %v", err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatalf("占位文件失败: %v", err)
	}

	if e.Clear() {
		t.Fatalf("目录不可读时 Clear 应失败")
	}
	if e.Size() != 3 {
		t.Fatalf("Clear 失败时索引应保持不变, size=%d", e.Size())
	}

	if err := os.Remove(dir); err != nil {
		t.Fatalf("删除占位文件失败: %v", err)
	}
	if err := os.Rename(moved, dir); err != nil {
		t.Fatalf("还原目录失败: %v", err)
	}
	if got, ok := e.Get("b"); !ok || got != 1 {
		t.Fatalf("目录还原后条目应仍可读取, got %d ok=%v", got, ok)
	}
}

func TestGetSelfHealsMissingFile(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	e.Set("k", "v")
	entry, _ := e.Entry("k")
	if err := os.Remove(filepath.Join(e.Dir(), entry.Filename())); err != nil {
		t.Fatalf("删除文件失败: %v", err)
	}

	if _, ok := e.Get("k"); ok {
		t.Fatalf("文件丢失时应未命中")
	}
	if e.Size() != 0 {
		t.Fatalf("索引应自愈")
	}
	st := e.Stats()
	if st.Misses != 1 || st.Errors != 0 {
		t.Fatalf("文件丢失只计 miss: %+v", st)
	}
}

func TestGetCorruptPayload(t *testing.T) {
	clock := newFakeClock()
	e := openEngine[string](t, testOptions(t, clock))

	e.Set("k", "v")
	entry, _ := e.Entry("k")
	if err := os.WriteFile(filepath.Join(e.Dir(), entry.Filename()), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("写入损坏数据失败: %v", err)
	}

	var kinds []string
	events.On(e.Events(), func(ev events.Error) { kinds = append(kinds, ev.Operation) })

	if _, ok := e.Get("k"); ok {
		t.Fatalf("损坏数据应未命中")
	}
	if e.Size() != 1 {
		t.Fatalf("解码失败时保留索引条目")
	}
	if len(kinds) != 1 || kinds[0] != "get" {
		t.Fatalf("应报告一次 get 错误: %v", kinds)
	}
}

func TestLRUEviction(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.MaxSize = 2
	e := openEngine[string](t, opts)

	e.Set("a", "1")
	e.Set("b", "2")
	// 同一毫秒内的访问也必须区分先后
	if _, ok := e.Get("a"); !ok {
		t.Fatalf("a 应命中")
	}
	e.Set("c", "3")

	if keys := e.Keys(); !reflect.DeepEqual(keys, []string{"a", "c"}) {
		t.Fatalf("应淘汰最久未访问的 b, got %v", keys)
	}
	if files := listFiles(t, e.Dir()); len(files) != 2 {
		t.Fatalf("被淘汰条目的文件应删除: %v", files)
	}
	if e.Stats().Evictions != 1 {
		t.Fatalf("evictions 计数错误")
	}
}

func TestOpenFailsOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("准备文件失败: %v", err)
	}
	opts := DefaultOptions()
	opts.Dir = path
	_, err := Open[string](opts)
	if !IsKind(err, KindInitializationFailure) {
		t.Fatalf("目录不可用时应返回 InitializationFailure, got %v", err)
	}
}

func TestReadyEvent(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	if err := os.WriteFile(filepath.Join(opts.Dir, "seed_0"), encodeString(t, "v"), 0o644); err != nil {
		t.Fatalf("准备文件失败: %v", err)
	}
	opts.Bus = events.NewBus()
	var ready events.Ready
	events.On(opts.Bus, func(ev events.Ready) { ready = ev })

	e := openEngine[string](t, opts)
	if ready.EntriesLoaded != 1 || ready.CacheDir != e.Dir() {
		t.Fatalf("unexpected ready event %+v", ready)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(t, clock)
	opts.EnableAutoCleanup = true
	e, err := Open[string](opts)
	if err != nil {
		t.Fatalf("打开缓存失败: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close 失败: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("重复 Close 不应失败: %v", err)
	}
}
