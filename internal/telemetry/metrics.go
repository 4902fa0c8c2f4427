package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName — имя job в Pushgateway.
const JobName = "cmltrain"

// Metrics — метрики одного запуска обучения.
//
// Используется отдельный registry, а не глобальный: в Pushgateway
// уходят только метрики job, без go_* и process_*.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	score         *prometheus.GaugeVec
	rows          *prometheus.GaugeVec
	runStatus     *prometheus.GaugeVec
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmltrain_stage_duration_seconds",
			Help:    "Duration of each training pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cmltrain_score_percent",
			Help: "Variance explained (R2 * 100) on the train and test partitions",
		}, []string{"split"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cmltrain_rows",
			Help: "Number of rows in each partition",
		}, []string{"split"}),
		runStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cmltrain_run_status",
			Help: "1 for the final status of the last run",
		}, []string{"status"}),
	}

	m.registry.MustRegister(m.stageDuration, m.score, m.rows, m.runStatus)
	return m
}

// ObserveStage записывает длительность стадии.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetScores записывает итоговые scores в процентах.
func (m *Metrics) SetScores(train, test float64) {
	m.score.WithLabelValues("train").Set(train)
	m.score.WithLabelValues("test").Set(test)
}

// SetRows записывает размеры train/test.
func (m *Metrics) SetRows(train, test int) {
	m.rows.WithLabelValues("train").Set(float64(train))
	m.rows.WithLabelValues("test").Set(float64(test))
}

// SetStatus выставляет 1 для финального статуса run.
func (m *Metrics) SetStatus(status string) {
	m.runStatus.Reset()
	m.runStatus.WithLabelValues(status).Set(1)
}

// Push отправляет метрики в Pushgateway.
// Пустой url — push отключён.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pusher := push.New(url, JobName).Gatherer(m.registry)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
