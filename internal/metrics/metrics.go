// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 認証イベントのカウンターとHTTPリクエストの計測を提供する。
type Collector struct {
	registrations   prometheus.Counter
	logins          *prometheus.CounterVec
	otpResults      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notebook_registrations_total",
			Help: "アカウント登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notebook_logins_total",
			Help: "ログイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		otpResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notebook_otp_verifications_total",
			Help: "確認コード検証の合計数（結果別）",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notebook_http_requests_total",
			Help: "HTTPリクエストの合計数",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notebook_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.otpResults,
		c.httpRequests,
		c.requestDuration,
	)

	return c
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン成功を認証方式（password/google）別に記録する。
func (c *Collector) RecordLogin(method string) {
	c.logins.WithLabelValues(method).Inc()
}

// RecordOTPVerification は確認コード検証を結果（success/invalid）別に記録する。
func (c *Collector) RecordOTPVerification(result string) {
	c.otpResults.WithLabelValues(result).Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
