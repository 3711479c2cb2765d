package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestConnectionOpenedClosed(t *testing.T) {
	c := New()

	c.ConnectionOpened()
	c.ConnectionOpened()
	if got := getGaugeValue(c.connectionsActive); got != 2 {
		t.Errorf("expected 2 active connections, got %v", got)
	}
	if got := getCounterValue(c.connectionsTotal); got != 2 {
		t.Errorf("expected 2 total connections, got %v", got)
	}

	c.ConnectionClosed()
	if got := getGaugeValue(c.connectionsActive); got != 1 {
		t.Errorf("expected 1 active connection after close, got %v", got)
	}
	if got := getCounterValue(c.connectionsTotal); got != 2 {
		t.Errorf("expected total connections to stay at 2, got %v", got)
	}
}

func TestQueryDurationObserves(t *testing.T) {
	c := New()

	c.QueryDuration(100 * time.Millisecond)
	c.QueryDuration(200 * time.Millisecond)

	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "eqlproxy_query_duration_seconds" {
			found = true
			if got := f.Metric[0].GetHistogram().GetSampleCount(); got != 2 {
				t.Errorf("expected 2 samples, got %d", got)
			}
		}
	}
	if !found {
		t.Error("expected eqlproxy_query_duration_seconds in gathered metrics")
	}
}

func TestFailureCounters(t *testing.T) {
	c := New()

	c.RewriteFailure()
	c.RewriteFailure()
	c.CryptorFailure()

	if got := getCounterValue(c.rewriteFailures); got != 2 {
		t.Errorf("expected 2 rewrite failures, got %v", got)
	}
	if got := getCounterValue(c.cryptorFailures); got != 1 {
		t.Errorf("expected 1 cryptor failure, got %v", got)
	}
}

func TestErrorSentByKind(t *testing.T) {
	c := New()

	c.ErrorSent("mapping")
	c.ErrorSent("mapping")
	c.ErrorSent("encryption")

	if got := getCounterValue(c.errorsByKind.WithLabelValues("mapping")); got != 2 {
		t.Errorf("expected 2 mapping errors, got %v", got)
	}
	if got := getCounterValue(c.errorsByKind.WithLabelValues("encryption")); got != 1 {
		t.Errorf("expected 1 encryption error, got %v", got)
	}
}

func TestSchemaReloaded(t *testing.T) {
	c := New()

	c.SchemaReloaded(true)
	c.SchemaReloaded(true)
	c.SchemaReloaded(false)

	if got := getCounterValue(c.schemaReloadsTotal); got != 2 {
		t.Errorf("expected 2 successful reloads, got %v", got)
	}
	if got := getCounterValue(c.schemaReloadErrors); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}
}

func TestUpstreamHealthyGauge(t *testing.T) {
	c := New()

	c.SetUpstreamHealthy(true)
	if got := getGaugeValue(c.upstreamHealthy); got != 1 {
		t.Errorf("expected healthy gauge 1, got %v", got)
	}
	c.SetUpstreamHealthy(false)
	if got := getGaugeValue(c.upstreamHealthy); got != 0 {
		t.Errorf("expected healthy gauge 0, got %v", got)
	}
}
