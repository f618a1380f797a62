// Package metrics 将缓存统计以 Prometheus 指标暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/events"
)

const namespace = "any_cache"

// StatsSource 是采集所需的最小接口，*cache.Engine 满足该接口。
type StatsSource interface {
	Stats() cache.Stats
	CompressionStats() cache.CompressionStats
}

// Collector 在每次抓取时读取一次统计快照并生成常量指标，不在内部缓存任何数值。
type Collector struct {
	source StatsSource

	hits              *prometheus.Desc
	misses            *prometheus.Desc
	sets              *prometheus.Desc
	deletes           *prometheus.Desc
	errors            *prometheus.Desc
	evictions         *prometheus.Desc
	expirations       *prometheus.Desc
	hitRate           *prometheus.Desc
	entries           *prometheus.Desc
	storedBytes       *prometheus.Desc
	compressedEntries *prometheus.Desc
	compressedBytes   *prometheus.Desc
}

func NewCollector(source StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		source:            source,
		hits:              desc("hits_total", "Number of cache hits."),
		misses:            desc("misses_total", "Number of cache misses."),
		sets:              desc("sets_total", "Number of successful writes."),
		deletes:           desc("deletes_total", "Number of successful deletes of existing keys."),
		errors:            desc("errors_total", "Number of errors reported at operation boundaries."),
		evictions:         desc("evictions_total", "Number of entries evicted by the LRU pass."),
		expirations:       desc("expirations_total", "Number of entries removed after their TTL elapsed."),
		hitRate:           desc("hit_ratio", "Hits divided by hits plus misses."),
		entries:           desc("entries", "Number of entries in the index."),
		storedBytes:       desc("stored_bytes", "Total on-disk size of all entries."),
		compressedEntries: desc("compressed_entries", "Number of entries stored compressed."),
		compressedBytes:   desc("compressed_bytes", "On-disk size of compressed entries."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()
	cs := c.source.CompressionStats()

	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.hits, st.Hits)
	counter(c.misses, st.Misses)
	counter(c.sets, st.Sets)
	counter(c.deletes, st.Deletes)
	counter(c.errors, st.Errors)
	counter(c.evictions, st.Evictions)
	counter(c.expirations, st.Expirations)
	gauge(c.hitRate, st.HitRate)
	gauge(c.entries, float64(st.Entries))
	gauge(c.storedBytes, float64(st.TotalSize))
	gauge(c.compressedEntries, float64(cs.CompressedEntries))
	gauge(c.compressedBytes, float64(cs.CompressedBytes))
}

func (c *Collector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.hits, c.misses, c.sets, c.deletes, c.errors, c.evictions, c.expirations,
		c.hitRate, c.entries, c.storedBytes, c.compressedEntries, c.compressedBytes,
	}
}

// EventCounter 按事件类型统计引擎发布的通知。
type EventCounter struct {
	events *prometheus.CounterVec
}

// NewEventCounter 注册 any_cache_events_total{kind=...}。
func NewEventCounter(reg prometheus.Registerer) *EventCounter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Number of notifications published by the cache engine, by kind.",
	}, []string{"kind"})
	reg.MustRegister(vec)
	return &EventCounter{events: vec}
}

// Attach 订阅 bus 上的全部事件类型，返回取消订阅的函数。
func (c *EventCounter) Attach(bus *events.Bus) func() {
	kinds := []events.Kind{
		events.KindReady, events.KindChange, events.KindError,
		events.KindExpire, events.KindClear, events.KindCleanup,
	}
	ids := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		counter := c.events.WithLabelValues(string(kind))
		ids = append(ids, bus.Subscribe(kind, func(events.Event) { counter.Inc() }))
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}

// Register 把 Collector 注册到 reg。
func Register(reg prometheus.Registerer, source StatsSource) (*Collector, error) {
	c := NewCollector(source)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
