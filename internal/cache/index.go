package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry 是索引中保存的条目元数据，本身从不单独落盘。
type Entry struct {
	Key        string    `json:"key"`
	ExpiresAt  int64     `json:"expires_at"`
	Compressed bool      `json:"compressed"`
	Size       int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Filename 返回该条目在缓存目录中的文件名。
func (e Entry) Filename() string {
	return EncodeFilename(e.Key, e.ExpiresAt, e.Compressed)
}

// Expired 报告在 nowMillis 时刻条目是否已过期；ExpiresAt=0 永不过期。
func (e Entry) Expired(nowMillis int64) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt < nowMillis
}

type indexEntry struct {
	Entry
	// recency 是逻辑访问时钟，插入与读取都会推进，LRU 按其升序淘汰。
	recency uint64
}

// index 是 key → 元数据的内存视图。锁只保护 map 本身，不跨越文件 I/O。
type index struct {
	mu      sync.Mutex
	entries map[string]*indexEntry
	clock   uint64
}

func newIndex() *index {
	return &index{entries: make(map[string]*indexEntry)}
}

func (ix *index) lookup(key string) (Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e, ok := ix.entries[key]; ok {
		return e.Entry, true
	}
	return Entry{}, false
}

// insert 新增或替换条目，并视为一次最新访问。
func (ix *index) insert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clock++
	ix.entries[e.Key] = &indexEntry{Entry: e, recency: ix.clock}
}

// touch 更新 accessedAt，仅当索引仍指向同一个文件时生效。
func (ix *index) touch(e Entry, at time.Time) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cur, ok := ix.entries[e.Key]
	if !ok || !sameFile(cur.Entry, e) {
		return false
	}
	ix.clock++
	cur.AccessedAt = at
	cur.recency = ix.clock
	return true
}

// removeIf 仅在索引仍指向 e 对应的文件时删除，避免误删并发写入的新条目。
func (ix *index) removeIf(e Entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cur, ok := ix.entries[e.Key]
	if !ok || !sameFile(cur.Entry, e) {
		return false
	}
	delete(ix.entries, e.Key)
	return true
}

func (ix *index) len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

func (ix *index) keys() []string {
	ix.mu.Lock()
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	ix.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (ix *index) snapshot() []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e.Entry)
	}
	return out
}

func (ix *index) expired(nowMillis int64) []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []Entry
	for _, e := range ix.entries {
		if e.Expired(nowMillis) {
			out = append(out, e.Entry)
		}
	}
	return out
}

// oldest 返回最久未访问的 n 个条目。
func (ix *index) oldest(n int) []Entry {
	if n <= 0 {
		return nil
	}
	ix.mu.Lock()
	ordered := make([]indexEntry, 0, len(ix.entries))
	for _, e := range ix.entries {
		ordered = append(ordered, *e)
	}
	ix.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].recency < ordered[j].recency
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = ordered[i].Entry
	}
	return out
}

// reset 清空索引并返回清空前的条目数。
func (ix *index) reset() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := len(ix.entries)
	ix.entries = make(map[string]*indexEntry)
	return n
}

// sameFile 判断两份元数据是否描述同一次写入。
func sameFile(a, b Entry) bool {
	return a.ExpiresAt == b.ExpiresAt && a.Compressed == b.Compressed && a.CreatedAt.Equal(b.CreatedAt)
}
