package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はカウンターとセッション数のゲージがテキスト形式で返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBackendCall("notifications", 200, 10*time.Millisecond)
	RegisterSessionGauges(reg, SessionGauges{Live: func() int { return 2 }})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `feedbackflow_backend_calls_total{endpoint="notifications",status_code="200"} 1`) {
		t.Errorf("expected backend_calls_total in response, got:\n%s", body)
	}
	if !strings.Contains(string(body), "feedbackflow_live_sessions 2") {
		t.Errorf("expected live_sessions gauge in response, got:\n%s", body)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain exposition format", got)
	}
}
