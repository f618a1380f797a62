package cache

import "sync/atomic"

// statsCollector 保存累计计数器，可与索引快照组合出 Stats。
type statsCollector struct {
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	errors      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

func (s *statsCollector) reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.errors.Store(0)
	s.evictions.Store(0)
	s.expirations.Store(0)
}

// Stats 是累计计数器与当前索引状态的快照。
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Errors      int64   `json:"errors"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`

	Entries           int     `json:"entries"`
	TotalSize         int64   `json:"total_size_bytes"`
	AverageSize       float64 `json:"average_size_bytes"`
	CompressedEntries int     `json:"compressed_entries"`
	// CompressionRatio 是压缩条目占全部条目的比例。
	CompressionRatio float64 `json:"compression_ratio"`
}

// CompressionStats 描述压缩配置及当前条目的压缩分布。
type CompressionStats struct {
	Enabled             bool    `json:"enabled"`
	Threshold           int     `json:"threshold"`
	Level               int     `json:"level"`
	CompressedEntries   int     `json:"compressed_entries"`
	UncompressedEntries int     `json:"uncompressed_entries"`
	TotalEntries        int     `json:"total_entries"`
	CompressedBytes     int64   `json:"compressed_bytes"`
	StoredBytes         int64   `json:"stored_bytes"`
	Ratio               float64 `json:"ratio"`
}

type footprint struct {
	entries         int
	compressed      int
	storedBytes     int64
	compressedBytes int64
}

func (e *Engine[T]) footprint() footprint {
	var fp footprint
	for _, entry := range e.index.snapshot() {
		fp.entries++
		fp.storedBytes += entry.Size
		if entry.Compressed {
			fp.compressed++
			fp.compressedBytes += entry.Size
		}
	}
	return fp
}

// Stats 返回当前统计快照。没有任何访问时 HitRate 为 0。
func (e *Engine[T]) Stats() Stats {
	st := Stats{
		Hits:        e.stats.hits.Load(),
		Misses:      e.stats.misses.Load(),
		Sets:        e.stats.sets.Load(),
		Deletes:     e.stats.deletes.Load(),
		Errors:      e.stats.errors.Load(),
		Evictions:   e.stats.evictions.Load(),
		Expirations: e.stats.expirations.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}

	fp := e.footprint()
	st.Entries = fp.entries
	st.TotalSize = fp.storedBytes
	st.CompressedEntries = fp.compressed
	if fp.entries > 0 {
		st.AverageSize = float64(fp.storedBytes) / float64(fp.entries)
		st.CompressionRatio = float64(fp.compressed) / float64(fp.entries)
	}
	return st
}

// CompressionStats 返回压缩配置与当前条目的压缩情况。
func (e *Engine[T]) CompressionStats() CompressionStats {
	fp := e.footprint()
	cs := CompressionStats{
		Enabled:             e.opts.EnableCompression,
		Threshold:           e.opts.CompressionThreshold,
		Level:               e.opts.CompressionLevel,
		CompressedEntries:   fp.compressed,
		UncompressedEntries: fp.entries - fp.compressed,
		TotalEntries:        fp.entries,
		CompressedBytes:     fp.compressedBytes,
		StoredBytes:         fp.storedBytes,
	}
	if fp.entries > 0 {
		cs.Ratio = float64(fp.compressed) / float64(fp.entries)
	}
	return cs
}

// ResetStats 清零累计计数器，不影响缓存数据。
func (e *Engine[T]) ResetStats() {
	e.stats.reset()
}
