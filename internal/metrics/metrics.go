// Package metrics exports ROM lifecycle events to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// Metrics implements rom.Metrics with Prometheus collectors.
type Metrics struct {
	BurnsStarted     prometheus.Counter       // brom_burns_started_total
	BurnsFinished    *prometheus.CounterVec   // brom_burns_finished_total{result}
	DownloadsTotal   *prometheus.CounterVec   // brom_downloads_total{result}
	MountsClosed     *prometheus.CounterVec   // brom_mounts_closed_total{reason}
	MountsDeleted    prometheus.Counter       // brom_mounts_deleted_total
	ScanPassDuration *prometheus.HistogramVec // brom_scan_pass_duration_seconds{kind}
}

var _ rom.Metrics = (*Metrics)(nil)

// New registers the collectors with registry. A nil registry uses the
// default registerer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		BurnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "brom_burns_started_total",
			Help: "Total burns started",
		}),
		BurnsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "brom_burns_finished_total",
			Help: "Total burns finished by result",
		}, []string{"result"}),
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "brom_downloads_total",
			Help: "Total ROM downloads by result",
		}, []string{"result"}),
		MountsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "brom_mounts_closed_total",
			Help: "Mounts closed by the cleanup pass, by reason",
		}, []string{"reason"}),
		MountsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "brom_mounts_deleted_total",
			Help: "Mounts whose files were reclaimed",
		}),
		ScanPassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brom_scan_pass_duration_seconds",
			Help:    "Duration of a scan pass over one entity kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// WatchPool exports the number of free storage node handles.
func WatchPool(registry prometheus.Registerer, pool *rom.NodePool) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "brom_nodes_available",
		Help: "Storage node handles not checked out",
	}, func() float64 {
		return float64(pool.Available())
	})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) BurnStarted() {
	m.BurnsStarted.Inc()
}

func (m *Metrics) BurnFinished(ok bool) {
	m.BurnsFinished.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) DownloadFinished(ok bool) {
	m.DownloadsTotal.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) MountClosed(reason string) {
	m.MountsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) MountDeleted() {
	m.MountsDeleted.Inc()
}

func (m *Metrics) ScanPass(kind string, d time.Duration) {
	m.ScanPassDuration.WithLabelValues(kind).Observe(d.Seconds())
}
