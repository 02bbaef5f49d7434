package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.RecordEnqueue("email", "queued")
	c.RecordEnqueue("email", "queued")
	c.RecordEnqueue("sms", "disabled")
	c.RecordOutcome("email", "sent")
	c.RecordSkippedRow()

	if got := testutil.ToFloat64(c.Enqueued.WithLabelValues("email", "queued")); got != 2 {
		t.Fatalf("enqueued{email,queued} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.RowsSkipped); got != 1 {
		t.Fatalf("rows skipped = %v, want 1", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordEnqueue("email", "queued")
	c.ObserveCycle(time.Second)
	c.ObserveSend("email", time.Second)
	c.RecordSignal("open", "api")
	if c.Registry() != nil {
		t.Fatal("nil collector should have no registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.ObserveCycle(150 * time.Millisecond)
	c.RecordOutcome("chat", "retried")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"notifier_dispatch_cycle_seconds", `notifier_dispatch_outcomes_total{channel="chat",outcome="retried"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
