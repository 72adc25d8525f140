package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/daemon"
	"github.com/Chichichkin/LogShipper/internal/logging/exporter"
)

const namespace = "logshipper"

type ExporterSource interface {
	Exporters() []*exporter.Exporter
}

type CaptureSource interface {
	Snapshot() daemon.CaptureStats
}

// Collector reads exporter and capture counters at scrape time.
type Collector struct {
	exporters ExporterSource
	capture   CaptureSource

	queueEntries        *prometheus.Desc
	queueCapacity       *prometheus.Desc
	shipped             *prometheus.Desc
	failed              *prometheus.Desc
	consecutiveFailures *prometheus.Desc
	running             *prometheus.Desc

	filesDiscovered  *prometheus.Desc
	linesRead        *prometheus.Desc
	decodeFailures   *prometheus.Desc
	entriesDelivered *prometheus.Desc
	workersActive    *prometheus.Desc
}

func NewCollector(exporters ExporterSource, capture CaptureSource) *Collector {
	label := []string{"exporter"}
	return &Collector{
		exporters: exporters,
		capture:   capture,

		queueEntries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "queue_entries"),
			"Entries waiting for the next flush", label, nil),
		queueCapacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "queue_capacity"),
			"Maximum number of queued entries", label, nil),
		shipped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "entries_shipped_total"),
			"Entries accepted by the backend since the exporter started", label, nil),
		failed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "entries_failed_total"),
			"Entries dropped on overflow or counted after a failed flush", label, nil),
		consecutiveFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "consecutive_failures"),
			"Failed flush cycles since the last success", label, nil),
		running: prometheus.NewDesc(prometheus.BuildFQName(namespace, "exporter", "running"),
			"1 if the exporter is running", label, nil),

		filesDiscovered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "capture", "files_discovered_total"),
			"Capture files found under the root path", nil, nil),
		linesRead: prometheus.NewDesc(prometheus.BuildFQName(namespace, "capture", "lines_read_total"),
			"Non-empty lines read from capture files", nil, nil),
		decodeFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "capture", "decode_failures_total"),
			"Lines that could not be decoded", nil, nil),
		entriesDelivered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "capture", "entries_delivered_total"),
			"Entries handed to the exporters", nil, nil),
		workersActive: prometheus.NewDesc(prometheus.BuildFQName(namespace, "capture", "workers_active"),
			"Tailing workers currently running", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueEntries
	ch <- c.queueCapacity
	ch <- c.shipped
	ch <- c.failed
	ch <- c.consecutiveFailures
	ch <- c.running
	ch <- c.filesDiscovered
	ch <- c.linesRead
	ch <- c.decodeFailures
	ch <- c.entriesDelivered
	ch <- c.workersActive
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.exporters != nil {
		for _, exp := range c.exporters.Exporters() {
			name := exp.Name()
			stats := exp.Stats()
			running := 0.0
			if exp.State() == exporter.StateRunning {
				running = 1
			}

			ch <- prometheus.MustNewConstMetric(c.queueEntries, prometheus.GaugeValue, float64(exp.QueueSize()), name)
			ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(exp.QueueCapacity()), name)
			ch <- prometheus.MustNewConstMetric(c.shipped, prometheus.CounterValue, float64(stats.Successful), name)
			ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(stats.Failed), name)
			ch <- prometheus.MustNewConstMetric(c.consecutiveFailures, prometheus.GaugeValue, float64(stats.ConsecutiveFailures), name)
			ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running, name)
		}
	}

	if c.capture != nil {
		stats := c.capture.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.filesDiscovered, prometheus.CounterValue, float64(stats.FilesDiscovered))
		ch <- prometheus.MustNewConstMetric(c.linesRead, prometheus.CounterValue, float64(stats.LinesRead))
		ch <- prometheus.MustNewConstMetric(c.decodeFailures, prometheus.CounterValue, float64(stats.DecodeFailures))
		ch <- prometheus.MustNewConstMetric(c.entriesDelivered, prometheus.CounterValue, float64(stats.EntriesDelivered))
		ch <- prometheus.MustNewConstMetric(c.workersActive, prometheus.GaugeValue, float64(stats.WorkersActive))
	}
}

// NewRegistry returns a registry holding the collector plus the Go runtime collector.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c, collectors.NewGoCollector())
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      Handler(reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
