package pipeline

import "errors"

// Ошибки pipeline.
var (
	// ErrNoFetcher — не задан источник данных.
	ErrNoFetcher = errors.New("pipeline: fetcher is required")

	// ErrNoTracker — не задан tracking client.
	ErrNoTracker = errors.New("pipeline: tracker is required")

	// ErrStageFailed — стадия завершилась с ошибкой.
	ErrStageFailed = errors.New("stage failed")
)
