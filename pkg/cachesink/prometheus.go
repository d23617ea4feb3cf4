package cachesink

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
)

// PrometheusSink remembers the last published snapshot and serves it as
// const metrics labeled by table. Register it with a prometheus.Registerer.
type PrometheusSink struct {
	mu   sync.Mutex
	last *bucketcache.StoreStats

	records    *prometheus.Desc
	capacity   *prometheus.Desc
	loadFactor *prometheus.Desc
	hits       *prometheus.Desc
	misses     *prometheus.Desc
	puts       *prometheus.Desc
	collisions *prometheus.Desc
	blocked    *prometheus.Desc
	evicted    *prometheus.Desc
	faults     *prometheus.Desc
}

// NewPrometheusSink creates a collector whose metric names start with
// namespace ("bucketcache" when empty).
func NewPrometheusSink(namespace string) *PrometheusSink {
	if namespace == "" {
		namespace = "bucketcache"
	}

	table := []string{"table"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &PrometheusSink{
		records:    desc("records", "Live records as of the last sweep.", table),
		capacity:   desc("capacity", "Record slots in the table.", table),
		loadFactor: desc("load_factor", "Records divided by capacity.", table),
		hits:       desc("hits_total", "Lookups that found a live record.", table),
		misses:     desc("misses_total", "Lookups that found nothing or an expired record.", table),
		puts:       desc("puts_total", "Put calls.", table),
		collisions: desc("collisions_total", "Puts that evicted a lower priority record.", table),
		blocked:    desc("priority_blocked_total", "Puts rejected on priority.", table),
		evicted:    desc("sweep_removed_total", "Records removed by the sweeper.", table),
		faults:     desc("scheduler_faults_total", "Failed sweep cycles.", nil),
	}
}

// Publish implements [bucketcache.Sink].
func (p *PrometheusSink) Publish(_ context.Context, stats bucketcache.StoreStats) error {
	p.mu.Lock()
	p.last = &stats
	p.mu.Unlock()

	return nil
}

// Describe implements prometheus.Collector.
func (p *PrometheusSink) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		p.records, p.capacity, p.loadFactor, p.hits, p.misses,
		p.puts, p.collisions, p.blocked, p.evicted, p.faults,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Nothing is emitted before the
// first publish.
func (p *PrometheusSink) Collect(ch chan<- prometheus.Metric) {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()

	if last == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(p.faults, prometheus.CounterValue, float64(last.SchedulerFaults))

	for _, ts := range last.Tables {
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, ts.Name)
		}

		counter := func(d *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), ts.Name)
		}

		gauge(p.records, float64(ts.Records))
		gauge(p.capacity, float64(ts.Capacity))
		gauge(p.loadFactor, ts.LoadFactor)
		counter(p.hits, ts.Hits)
		counter(p.misses, ts.Misses)
		counter(p.puts, ts.Puts)
		counter(p.collisions, ts.Collisions)
		counter(p.blocked, ts.PriorityBlocked)
		counter(p.evicted, ts.SweepRemoved)
	}
}
