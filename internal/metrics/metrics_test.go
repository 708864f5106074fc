package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordBackendCall_CountsByEndpointAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBackendCall("profile", 200, 20*time.Millisecond)
	c.RecordBackendCall("profile", 200, 30*time.Millisecond)
	c.RecordBackendCall("profile", 0, time.Second)

	m := findMetric(t, reg, "feedbackflow_backend_calls_total", map[string]string{"endpoint": "profile", "status_code": "200"})
	if m == nil {
		t.Fatal("backend_calls_total{profile,200} not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("backend_calls_total = %v, want 2", got)
	}

	m = findMetric(t, reg, "feedbackflow_backend_calls_total", map[string]string{"endpoint": "profile", "status_code": "0"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("network failures should be recorded with status 0")
	}

	h := findMetric(t, reg, "feedbackflow_backend_latency_seconds", map[string]string{"endpoint": "profile"})
	if h == nil {
		t.Fatal("backend_latency_seconds not found")
	}
	if got := h.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("latency sample count = %d, want 3", got)
	}
}

func TestRecordAuthEvent_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("sign_in", "success")
	c.RecordAuthEvent("sign_in", "failure")
	c.RecordAuthEvent("sign_in", "failure")

	m := findMetric(t, reg, "feedbackflow_auth_events_total", map[string]string{"event": "sign_in", "outcome": "failure"})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("auth_events_total{sign_in,failure} = %v, want 2", m)
	}
}

func TestRecordGateDecision_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGateDecision("loading")
	c.RecordGateDecision("allow")

	for _, d := range []string{"loading", "allow"} {
		m := findMetric(t, reg, "feedbackflow_gate_decisions_total", map[string]string{"decision": d})
		if m == nil || m.GetCounter().GetValue() != 1 {
			t.Errorf("gate_decisions_total{%s} = %v, want 1", d, m)
		}
	}
}

func TestRecordHTTPStatus_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(429)

	m := findMetric(t, reg, "feedbackflow_http_status_total", map[string]string{"status_code": "429"})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("http_status_total{429} = %v, want 1", m)
	}
}

func TestRegisterSessionGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	live := 3
	RegisterSessionGauges(reg, SessionGauges{
		Live:       func() int { return live },
		Dashboards: func() int { return 2 },
	})

	live = 4
	tests := []struct {
		name string
		want float64
	}{
		{"feedbackflow_live_sessions", 4},
		{"feedbackflow_mounted_dashboards", 2},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, tt.name, nil)
		if m == nil {
			t.Fatalf("%s not registered", tt.name)
		}
		if got := m.GetGauge().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	// 取得元のない項目は登録しない
	if m := findMetric(t, reg, "feedbackflow_stored_sessions", nil); m != nil {
		t.Error("stored sessions gauge should not be registered without a source")
	}
}
