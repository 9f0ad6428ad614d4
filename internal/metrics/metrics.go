// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はチャットイベント処理のメトリクスを収集する。
type Collector struct {
	eventsSubmitted prometheus.Counter
	eventsProcessed prometheus.Counter
	eventsFailed    *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	queueDepth      prometheus.Gauge
	insertLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calendarbot_events_submitted_total",
			Help: "受け付けたチャットイベントの合計数",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calendarbot_events_processed_total",
			Help: "正常に処理されたチャットイベントの合計数",
		}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendarbot_events_failed_total",
			Help: "ステージ別の処理失敗イベントの合計数",
		}, []string{"stage"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calendarbot_events_dropped_total",
			Help: "シャットダウン時に破棄されたイベントの合計数",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "calendarbot_queue_depth",
			Help: "処理待ちイベントキューの現在の深さ",
		}),
		insertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calendarbot_calendar_insert_latency_seconds",
			Help:    "カレンダーバックエンドへのイベント挿入のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.eventsSubmitted,
		c.eventsProcessed,
		c.eventsFailed,
		c.eventsDropped,
		c.queueDepth,
		c.insertLatency,
	)

	return c
}

// RecordSubmitted はイベント受け付けを記録する。
func (c *Collector) RecordSubmitted() {
	c.eventsSubmitted.Inc()
}

// RecordProcessed はイベント処理成功を記録する。
func (c *Collector) RecordProcessed() {
	c.eventsProcessed.Inc()
}

// RecordFailed は指定ステージでの処理失敗を記録する。
func (c *Collector) RecordFailed(stage string) {
	c.eventsFailed.WithLabelValues(stage).Inc()
}

// RecordDropped はシャットダウン時のイベント破棄を記録する。
func (c *Collector) RecordDropped(count int) {
	c.eventsDropped.Add(float64(count))
}

// SetQueueDepth は処理待ちキューの深さを記録する。
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordInsertLatency はカレンダー挿入のレイテンシを記録する。
func (c *Collector) RecordInsertLatency(duration time.Duration) {
	c.insertLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
