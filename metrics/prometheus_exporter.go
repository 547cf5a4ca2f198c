package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter serves the node's Registry, plus Go runtime and process
// collectors, at an HTTP endpoint using the real Prometheus client library.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "vanguard" produces "vanguard_chain_height").
	Namespace string
	// EnableRuntime controls whether Go runtime and process collectors
	// (goroutines, memory, GC, open fds) are included in the output.
	EnableRuntime bool
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace:     "vanguard",
		EnableRuntime: true,
		Path:          "/metrics",
	}
}

// PrometheusExporter adapts a Registry to a prometheus.Registerer and
// serves it over HTTP via promhttp.
type PrometheusExporter struct {
	config  PrometheusConfig
	promReg *prometheus.Registry
	handler http.Handler
}

// NewPrometheusExporter creates a new exporter that reads from registry.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(&registryCollector{registry: registry, namespace: config.Namespace})
	if config.EnableRuntime {
		promReg.MustRegister(collectors.NewGoCollector())
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &PrometheusExporter{
		config:  config,
		promReg: promReg,
		handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	}
}

// RegisterCollector adds a custom prometheus.Collector to the exporter's
// registry, e.g. one sourced from another of the example pack's components.
func (pe *PrometheusExporter) RegisterCollector(c prometheus.Collector) error {
	return pe.promReg.Register(c)
}

// Handler returns an http.Handler that serves the configured path.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, pe.handler)
	return mux
}

// registryCollector bridges a Registry's counters, gauges, and histograms
// into the prometheus.Collector interface so they can be scraped alongside
// client_golang's own built-in collectors.
type registryCollector struct {
	registry  *Registry
	namespace string
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	// Descriptors are generated dynamically per-metric in Collect; the
	// registry's metric set grows at runtime (get-or-create), so a static
	// Describe would need to track the same set anyway. Declaring the
	// collector unchecked avoids duplicating that bookkeeping.
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Snapshot()
	for name, v := range snap {
		promName := c.promName(name)
		switch val := v.(type) {
		case int64:
			ch <- prometheus.MustNewConstMetric(
				prometheus.NewDesc(promName, name, nil, nil),
				prometheus.GaugeValue,
				float64(val),
			)
		case map[string]interface{}:
			c.collectHistogram(ch, promName, name, val)
		}
	}
}

func (c *registryCollector) collectHistogram(ch chan<- prometheus.Metric, promName, help string, fields map[string]interface{}) {
	count, _ := fields["count"].(int64)
	sum, _ := fields["sum"].(float64)
	ch <- prometheus.MustNewConstSummary(
		prometheus.NewDesc(promName, help, nil, nil),
		uint64(count), sum, nil,
	)
	if count == 0 {
		return
	}
	for _, suffix := range []string{"min", "max", "mean"} {
		v, _ := fields[suffix].(float64)
		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(promName+"_"+suffix, help+" "+suffix, nil, nil),
			prometheus.GaugeValue,
			v,
		)
	}
}

// promName converts a dot-separated metric name to Prometheus format: dots
// become underscores, and the namespace prefix is prepended.
func (c *registryCollector) promName(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	if c.namespace != "" {
		return c.namespace + "_" + sanitized
	}
	return sanitized
}
