package prometrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry and serves instruments by key.
// Keys that were never registered resolve to no-op instruments.
type Registry struct {
	mu         sync.RWMutex
	reg        *prometheus.Registry
	namespace  string
	counters   map[observability.MetricKey]*counter
	histograms map[observability.MetricKey]*histogram
}

func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[observability.MetricKey]*counter),
		histograms: make(map[observability.MetricKey]*histogram),
	}
}

// NewStandard registers every instrument the service records.
func NewStandard(namespace string) (*Registry, error) {
	r := New(namespace)
	counters := []struct {
		key    observability.MetricKey
		help   string
		labels []string
	}{
		{observability.MUsecaseRequests, "Total number of use case invocations.", []string{"use_case", "outcome"}},
		{observability.MHTTPRequests, "Total number of HTTP requests.", []string{"method", "route", "status"}},
		{observability.MExternalRequests, "Calls made to external systems.", []string{"peer", "endpoint", "outcome"}},
		{observability.MLedgerMutations, "Stock and balance check-and-set attempts.", []string{"ledger", "outcome"}},
		{observability.MOutboxRelay, "Outbox messages handled by the relay.", []string{"outcome"}},
	}
	for _, c := range counters {
		if err := r.RegisterCounter(c.key, c.help, c.labels...); err != nil {
			return nil, err
		}
	}
	histograms := []struct {
		key    observability.MetricKey
		help   string
		labels []string
	}{
		{observability.MUsecaseDuration, "Duration of use case execution in seconds.", []string{"use_case"}},
		{observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", []string{"method", "route", "status"}},
		{observability.MExternalRequestDuration, "Duration of external calls in seconds.", []string{"peer", "endpoint"}},
	}
	for _, h := range histograms {
		if err := r.RegisterHistogram(h.key, h.help, prometheus.DefBuckets, h.labels...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) RegisterCounter(name observability.MetricKey, help string, labelKeys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[name]; ok {
		return nil
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Name: string(name), Help: help,
	}, labelKeys)
	if err := r.reg.Register(cv); err != nil {
		return fmt.Errorf("prometrics: register %s: %w", name, err)
	}
	r.counters[name] = &counter{v: cv}
	return nil
}

func (r *Registry) RegisterHistogram(name observability.MetricKey, help string, buckets []float64, labelKeys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.histograms[name]; ok {
		return nil
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Name: string(name), Help: help, Buckets: buckets,
	}, labelKeys)
	if err := r.reg.Register(hv); err != nil {
		return fmt.Errorf("prometrics: register %s: %w", name, err)
	}
	r.histograms[name] = &histogram{v: hv}
	return nil
}

func (r *Registry) Counter(name observability.MetricKey) observability.Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (r *Registry) Histogram(name observability.MetricKey) observability.Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer is used by tests to inspect collected samples.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return &boundCounter{c: c.v.With(labelMap(labels))}
}

type boundCounter struct{ c prometheus.Counter }

func (b *boundCounter) Add(d float64) { b.c.Add(d) }

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return &boundHistogram{o: h.v.With(labelMap(labels))}
}

type boundHistogram struct{ o prometheus.Observer }

func (b *boundHistogram) Observe(v float64) { b.o.Observe(v) }

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
