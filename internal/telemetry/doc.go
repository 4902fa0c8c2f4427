// Package telemetry обеспечивает наблюдаемость training job.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики одного запуска и их push в Pushgateway
//
// Job живёт несколько секунд, поэтому метрики не отдаются по /metrics,
// а отправляются один раз в конце запуска.
package telemetry
