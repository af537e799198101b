// Package stats implements the metrics surface the `stats` and
// `dump-status` admin commands report (spec.md §6): per-operation latency
// histograms and point-in-time gauges/counters for the depot, dedupe
// index, and I/O pipeline.
//
// Grounded on _examples/cockroachdb-pebble/cmd/pebble/test.go's
// namedHistogram/histogramRegistry (HdrHistogram-backed latency
// tracking with periodic Tick/Merge), generalized from pebble's
// benchmark-harness latency tracking to VDO's always-on admin-visible
// metrics, and wired to prometheus/client_golang so the gauges/counters
// are also scrapable rather than only readable through dump-status.
package stats

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	minLatency = 1 * time.Microsecond
	maxLatency = 30 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 3)
}

// Operation names a latency series tracked by stats (mirrors the
// namedHistogram-per-benchmark-op pattern, applied to VDO's data-vio
// pipeline phases instead of benchmark operations).
type Operation string

const (
	OpWrite        Operation = "write"
	OpRead         Operation = "read"
	OpDedupeQuery  Operation = "dedupe-query"
	OpJournalFlush Operation = "journal-flush"
	OpSlabScrub    Operation = "slab-scrub"
)

// LatencyRegistry tracks per-operation latency histograms, letting the
// stats admin command report both the current interval's distribution
// and the lifetime cumulative one, matching histogramRegistry.Tick()'s
// current/cumulative split.
type LatencyRegistry struct {
	mu struct {
		sync.Mutex
		current    map[Operation]*hdrhistogram.Histogram
		cumulative map[Operation]*hdrhistogram.Histogram
	}
}

// NewLatencyRegistry creates an empty registry.
func NewLatencyRegistry() *LatencyRegistry {
	r := &LatencyRegistry{}
	r.mu.current = make(map[Operation]*hdrhistogram.Histogram)
	r.mu.cumulative = make(map[Operation]*hdrhistogram.Histogram)
	return r
}

// Record adds one observed latency sample for op, clamping to the
// tracked range the way cmd/pebble/test.go's namedHistogram.Record() does
// so an out-of-range sample is never silently dropped.
func (r *LatencyRegistry) Record(op Operation, elapsed time.Duration) {
	if elapsed < minLatency {
		elapsed = minLatency
	} else if elapsed > maxLatency {
		elapsed = maxLatency
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.mu.current[op]
	if !ok {
		h = newHistogram()
		r.mu.current[op] = h
	}
	_ = h.RecordValue(elapsed.Nanoseconds())
}

// Snapshot is one operation's latency distribution at a point in time.
type Snapshot struct {
	Operation  Operation
	Count      int64
	P50, P99   time.Duration
	Cumulative int64
}

// Tick rolls every operation's current histogram into its cumulative
// total and returns a snapshot of each, resetting the current interval -
// the Go analogue of histogramRegistry.Tick().
func (r *LatencyRegistry) Tick() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Snapshot
	for op, h := range r.mu.current {
		cum, ok := r.mu.cumulative[op]
		if !ok {
			cum = newHistogram()
			r.mu.cumulative[op] = cum
		}
		cum.Merge(h)
		out = append(out, Snapshot{
			Operation:  op,
			Count:      h.TotalCount(),
			P50:        time.Duration(h.ValueAtQuantile(50)),
			P99:        time.Duration(h.ValueAtQuantile(99)),
			Cumulative: cum.TotalCount(),
		})
		r.mu.current[op] = newHistogram()
	}
	return out
}

// DeviceGauges are the point-in-time prometheus gauges/counters the
// dump-status and stats admin commands read, one set per VDO instance.
type DeviceGauges struct {
	RefCountSaturatedBlocks prometheus.Gauge
	SlabFreeBlocks          prometheus.Gauge
	SlabsUnrecovered        prometheus.Gauge
	DedupeQueries           prometheus.Counter
	DedupeHits              prometheus.Counter
	BlockMapCacheHits       prometheus.Counter
	BlockMapCacheMisses     prometheus.Counter
	PackerBinsInUse         prometheus.Gauge
	ReadOnly                prometheus.Gauge
}

// NewDeviceGauges constructs and registers a device's gauges/counters
// under reg, labeling every metric with deviceName.
func NewDeviceGauges(reg prometheus.Registerer, deviceName string) *DeviceGauges {
	labels := prometheus.Labels{"device": deviceName}
	g := &DeviceGauges{
		RefCountSaturatedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "refcount_saturated_blocks",
			Help: "Number of physical blocks whose reference count has saturated to shared.",
			ConstLabels: labels,
		}),
		SlabFreeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "slab_free_blocks",
			Help: "Total free physical blocks across all slabs.", ConstLabels: labels,
		}),
		SlabsUnrecovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "slabs_unrecovered",
			Help: "Number of slabs still awaiting scrubbing.", ConstLabels: labels,
		}),
		DedupeQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "dedupe_queries_total",
			Help: "Total dedupe index queries issued.", ConstLabels: labels,
		}),
		DedupeHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "dedupe_hits_total",
			Help: "Total dedupe index queries that found advice.", ConstLabels: labels,
		}),
		BlockMapCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "block_map_cache_hits_total",
			Help: "Total block map page cache hits.", ConstLabels: labels,
		}),
		BlockMapCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdo", Name: "block_map_cache_misses_total",
			Help: "Total block map page cache misses.", ConstLabels: labels,
		}),
		PackerBinsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "packer_bins_in_use",
			Help: "Number of packer input bins currently holding fragments.", ConstLabels: labels,
		}),
		ReadOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vdo", Name: "read_only",
			Help: "1 if the device has entered read-only mode, 0 otherwise.", ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			g.RefCountSaturatedBlocks, g.SlabFreeBlocks, g.SlabsUnrecovered,
			g.DedupeQueries, g.DedupeHits, g.BlockMapCacheHits, g.BlockMapCacheMisses,
			g.PackerBinsInUse, g.ReadOnly,
		)
	}
	return g
}

// DedupeHitRate returns the fraction of dedupe queries that found
// advice, for the stats command's summary line.
func DedupeHitRate(queries, hits float64) float64 {
	if queries == 0 {
		return 0
	}
	return hits / queries
}
