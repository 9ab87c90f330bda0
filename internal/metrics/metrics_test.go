package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New("0.1.0", "go1.26.0")
	require.NotNil(t, m)
	require.NotNil(t, m.Registry)
}

func TestIsolation(t *testing.T) {
	m1 := New("0.1.0", "go1.26.0")
	m2 := New("0.2.0", "go1.26.0")

	m1.DirectMessagesTotal.WithLabelValues("sent").Inc()

	families, err := m2.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "gigi_direct_messages_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			require.Zero(t, metric.GetCounter().GetValue(), "m2 registry saw m1's counter value")
		}
	}
}

func TestCounters(t *testing.T) {
	m := New("test", "go1.26.0")

	m.PeersDiscoveredTotal.WithLabelValues("eth0").Inc()
	m.DirectMessagesTotal.WithLabelValues("sent").Inc()
	m.GroupMessagesTotal.WithLabelValues("received", "general").Inc()
	m.ChunksServedTotal.WithLabelValues("ok").Inc()
	m.DownloadsTotal.WithLabelValues("completed").Inc()
	m.DownloadBytesTotal.WithLabelValues().Add(1024)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"gigi_peers_discovered_total": false,
		"gigi_direct_messages_total":  false,
		"gigi_group_messages_total":   false,
		"gigi_chunks_served_total":    false,
		"gigi_downloads_total":        false,
		"gigi_download_bytes_total":   false,
		"gigi_info":                   false,
	}
	for _, f := range families {
		if _, ok := expected[f.GetName()]; ok {
			expected[f.GetName()] = true
		}
	}
	for name, found := range expected {
		require.True(t, found, "metric family %q not found", name)
	}
}

func TestBuildInfo(t *testing.T) {
	m := New("1.2.3", "go1.26.0")

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != "gigi_info" {
			continue
		}
		for _, metric := range f.GetMetric() {
			require.Equal(t, float64(1), metric.GetGauge().GetValue())
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			require.Equal(t, "1.2.3", labels["version"])
			require.Equal(t, "go1.26.0", labels["go_version"])
		}
	}
}

func TestHandler(t *testing.T) {
	m := New("0.1.0", "go1.26.0")
	m.DirectMessagesTotal.WithLabelValues("sent").Inc()

	handler := m.Handler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	output := string(body)
	require.Contains(t, output, "gigi_direct_messages_total")
	require.Contains(t, output, "gigi_info")
	require.Contains(t, output, "go_goroutines")
}

func TestRegistryDoesNotUseGlobal(t *testing.T) {
	m := New("test", "go1.26.0")
	require.NotEqual(t, prometheus.DefaultRegisterer, m.Registry)
}
