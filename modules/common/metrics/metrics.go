package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Recorder - 릴레이 메트릭 모음
type Recorder struct {
	outcomes         *prometheus.CounterVec
	upstreamErrors   *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New - 주어진 registry 에 메트릭 등록
// 테스트는 prometheus.NewRegistry() 로 매번 새 registry 를 넘긴다
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generate_outcomes_total",
				Help:      "Normalized generation outcomes by type",
			},
			[]string{"outcome"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Upstream call failures by error kind",
			},
			[]string{"kind"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream calls by credential pool index",
			},
			[]string{"key_index"},
		),
		upstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream generation latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 180},
			},
		),
		gatherer: reg,
	}
}

// ObserveOutcome - 정규화된 결과 타입 카운트
func (r *Recorder) ObserveOutcome(outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveUpstream - 업스트림 호출 1회 기록 (키 인덱스, 소요 시간, 실패 시 kind)
func (r *Recorder) ObserveUpstream(keyIndex int, elapsed time.Duration, errKind string) {
	if r == nil {
		return
	}
	r.upstreamRequests.WithLabelValues(strconv.Itoa(keyIndex)).Inc()
	r.upstreamDuration.Observe(elapsed.Seconds())
	if errKind != "" {
		r.upstreamErrors.WithLabelValues(errKind).Inc()
	}
}

// Handler - /metrics 핸들러
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
