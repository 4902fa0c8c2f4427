// Package pipeline выполняет один запуск обучения.
//
// Запуск состоит из стадий, которые выполняются строго по порядку:
//
//	fetch  → чтение CSV из object storage, выделение целевой колонки
//	split  → train/test split с фиксированным seed
//	train  → обучение леса, логирование параметров, метрик и модели
//	report → metrics.txt, feature_importance.png, residuals.png
//
// Всё, что логируется, попадает в один run tracking server. Ошибка любой
// стадии завершает этот run со статусом FAILED и возвращается вызывающему.
//
// Пример использования:
//
//	p, err := pipeline.New(cfg, pipeline.Options{
//		Fetcher: storageClient,
//		Tracker: trackingClient,
//		Logger:  logger,
//	})
//	run, err := p.Run(ctx)
package pipeline
