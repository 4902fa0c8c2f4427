package domain

// RunStatus — статус training run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, стадии ещё не запускались.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — pipeline выполняется.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все стадии завершены, артефакты загружены.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — одна из стадий завершилась ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// TrackingStatus возвращает статус run в терминах tracking server.
func (s RunStatus) TrackingStatus() string {
	switch s {
	case RunStatusSucceeded:
		return "FINISHED"
	case RunStatusFailed:
		return "FAILED"
	case RunStatusRunning:
		return "RUNNING"
	default:
		return "SCHEDULED"
	}
}
