package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Tyrowin/groupchat/internal/telemetry"
)

func TestMetricsCounters(t *testing.T) {
	m := telemetry.NewMetrics()

	m.ObserveDispatch("BROADCAST", time.Now())
	m.ObserveDispatch("BROADCAST", time.Now())
	m.Dropped("recipient_absent")
	m.Departed("timeout")
	m.SetMembers(3)
	m.HostChanged()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.MessagesRouted.WithLabelValues("BROADCAST")); got != 2 {
		t.Errorf("messages_routed_total{kind=BROADCAST} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesDropped.WithLabelValues("recipient_absent")); got != 1 {
		t.Errorf("messages_dropped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Members); got != 3 {
		t.Errorf("members = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Connections); got != 1 {
		t.Errorf("connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HostChanges); got != 1 {
		t.Errorf("host_changes_total = %v, want 1", got)
	}
}

// TestNilMetricsAreSafe verifies components can run without metrics.
func TestNilMetricsAreSafe(t *testing.T) {
	var m *telemetry.Metrics
	m.ObserveDispatch("JOIN", time.Now())
	m.Dropped("x")
	m.Departed("leave")
	m.SetMembers(1)
	m.HostChanged()
	m.ConnectionOpened()
	m.ConnectionClosed()
}

func TestMetricsHandler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.SetMembers(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	if !strings.Contains(string(body), "groupchat_members 2") {
		t.Errorf("Exposition missing members gauge:\n%s", body)
	}
}
