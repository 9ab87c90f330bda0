// Package metrics exposes the node's Prometheus collectors: discovery,
// transfer, and messaging counters on an isolated registry so they
// never collide with the process default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the node registers.
type Metrics struct {
	Registry *prometheus.Registry

	PeersDiscoveredTotal *prometheus.CounterVec
	PeersActive          *prometheus.GaugeVec

	DirectMessagesTotal *prometheus.CounterVec
	GroupMessagesTotal  *prometheus.CounterVec
	OfflineQueueDepth   *prometheus.GaugeVec

	SharesActive        *prometheus.GaugeVec
	ChunksServedTotal    *prometheus.CounterVec
	DownloadsActive      *prometheus.GaugeVec
	DownloadsTotal       *prometheus.CounterVec
	DownloadBytesTotal   *prometheus.CounterVec
	DownloadRateBytesSec *prometheus.GaugeVec

	BuildInfo *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered on an
// isolated registry. version and goVersion are recorded as labels on
// the gigi_info gauge.
func New(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		PeersDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_peers_discovered_total",
				Help: "Total discovery announcements accepted, by interface.",
			},
			[]string{"interface"},
		),
		PeersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_peers_active",
				Help: "Number of peers currently in the directory.",
			},
			[]string{},
		),

		DirectMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_direct_messages_total",
				Help: "Total direct messages sent or received, by direction.",
			},
			[]string{"direction"},
		),
		GroupMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_group_messages_total",
				Help: "Total group messages published or received, by direction.",
			},
			[]string{"direction", "topic"},
		),
		OfflineQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_offline_queue_depth",
				Help: "Number of messages currently queued for offline delivery.",
			},
			[]string{},
		),

		SharesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_shares_active",
				Help: "Number of non-revoked entries in the share index.",
			},
			[]string{},
		),
		ChunksServedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_chunks_served_total",
				Help: "Total file chunks served to peers.",
			},
			[]string{"result"},
		),
		DownloadsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_downloads_active",
				Help: "Number of downloads currently in progress.",
			},
			[]string{},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_downloads_total",
				Help: "Total downloads completed, by outcome.",
			},
			[]string{"result"},
		),
		DownloadBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigi_download_bytes_total",
				Help: "Total bytes received across all downloads.",
			},
			[]string{},
		),
		DownloadRateBytesSec: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_download_rate_bytes_per_second",
				Help: "Most recent trailing-window download rate, by download id.",
			},
			[]string{"download_id"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigi_info",
				Help: "Build information for the running node.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.PeersDiscoveredTotal,
		m.PeersActive,
		m.DirectMessagesTotal,
		m.GroupMessagesTotal,
		m.OfflineQueueDepth,
		m.SharesActive,
		m.ChunksServedTotal,
		m.DownloadsActive,
		m.DownloadsTotal,
		m.DownloadBytesTotal,
		m.DownloadRateBytesSec,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
