// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、認証サービス、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordBackendCall(endpoint string, statusCode int, duration time.Duration)
	RecordAuthEvent(event, outcome string)
	RecordGateDecision(decision string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	authEvents     *prometheus.CounterVec
	gateDecisions  *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackflow_backend_calls_total",
			Help: "バックエンド呼び出しの合計数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedbackflow_backend_latency_seconds",
			Help:    "バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackflow_auth_events_total",
			Help: "認証イベントの合計数（種別・結果別）",
		}, []string{"event", "outcome"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackflow_gate_decisions_total",
			Help: "セッションゲートの判定結果の合計数",
		}, []string{"decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedbackflow_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.backendCalls,
		c.backendLatency,
		c.authEvents,
		c.gateDecisions,
		c.httpStatus,
	)

	return c
}

// RecordBackendCall はバックエンド呼び出しの結果とレイテンシを記録する。
// 通信エラーの場合statusCodeは0とする。
func (c *Collector) RecordBackendCall(endpoint string, statusCode int, duration time.Duration) {
	c.backendCalls.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.backendLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordGateDecision はセッションゲートの判定を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SessionGauges はスクレイプ時に読み取るセッション数の取得元。nilの項目は登録しない。
type SessionGauges struct {
	Live       func() int // プロセス内のライブセッション数
	Dashboards func() int // マウント済みのダッシュボード数
	Stored     func() int // メモリ上のセッションストアの件数
}

// RegisterSessionGauges はセッション数のゲージをregに登録する。
func RegisterSessionGauges(reg prometheus.Registerer, g SessionGauges) {
	gauges := []struct {
		name string
		help string
		fn   func() int
	}{
		{"feedbackflow_live_sessions", "プロセス内のライブセッション数", g.Live},
		{"feedbackflow_mounted_dashboards", "マウント済みのダッシュボード数", g.Dashboards},
		{"feedbackflow_stored_sessions", "メモリ上のセッションストアの件数", g.Stored},
	}
	for _, gauge := range gauges {
		if gauge.fn == nil {
			continue
		}
		fn := gauge.fn
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: gauge.name,
			Help: gauge.help,
		}, func() float64 { return float64(fn()) }))
	}
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordBackendCall(string, int, time.Duration) {}
func (Nop) RecordAuthEvent(string, string)               {}
func (Nop) RecordGateDecision(string)                    {}
func (Nop) RecordHTTPStatus(int)                         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
