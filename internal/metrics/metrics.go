// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 検索戦略の結果ラベル
const (
	OutcomeHit      = "hit"
	OutcomeEmpty    = "empty"
	OutcomeFiltered = "filtered_empty"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 外部アダプタやサービス層から利用する。
type MetricsCollector interface {
	RecordCacheLookup(hit bool)
	RecordStrategyOutcome(strategy, outcome string)
	RecordListingFetch(source string, duration time.Duration, err error)
	RecordIdentification(outcome string)
	RecordVerification(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheLookups    *prometheus.CounterVec
	strategyOutcome *prometheus.CounterVec
	listingLatency  *prometheus.HistogramVec
	listingFail     *prometheus.CounterVec
	identifications *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_cache_lookups_total",
			Help: "価格キャッシュ参照の合計数（result=hit|miss）",
		}, []string{"result"}),
		strategyOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_search_strategy_total",
			Help: "検索戦略ごとの結果数",
		}, []string{"strategy", "outcome"}),
		listingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farmappraiser_listing_fetch_latency_seconds",
			Help:    "出品一覧取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		listingFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_listing_fetch_fail_total",
			Help: "出品一覧取得失敗の合計数",
		}, []string{"source"}),
		identifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_identification_total",
			Help: "画像識別の結果数",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_verification_total",
			Help: "Web検証の結果数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmappraiser_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheLookups,
		c.strategyOutcome,
		c.listingLatency,
		c.listingFail,
		c.identifications,
		c.verifications,
		c.httpStatus,
	)

	return c
}

// RecordCacheLookup はキャッシュ参照結果を記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordStrategyOutcome は検索戦略の結果を記録する。
func (c *Collector) RecordStrategyOutcome(strategy, outcome string) {
	c.strategyOutcome.WithLabelValues(strategy, outcome).Inc()
}

// RecordListingFetch は出品一覧取得のレイテンシと失敗を記録する。
func (c *Collector) RecordListingFetch(source string, duration time.Duration, err error) {
	c.listingLatency.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		c.listingFail.WithLabelValues(source).Inc()
	}
}

// RecordIdentification は画像識別の結果を記録する。
func (c *Collector) RecordIdentification(outcome string) {
	c.identifications.WithLabelValues(outcome).Inc()
}

// RecordVerification はWeb検証の結果を記録する。
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordCacheLookup(bool)                          {}
func (Nop) RecordStrategyOutcome(string, string)            {}
func (Nop) RecordListingFetch(string, time.Duration, error) {}
func (Nop) RecordIdentification(string)                     {}
func (Nop) RecordVerification(string)                       {}
func (Nop) RecordHTTPStatus(int)                            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
