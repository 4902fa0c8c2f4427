// Package cli реализует команды cmltrain.
//
// # Команды
//
//   - train (по умолчанию) — один запуск обучения: данные из object storage,
//     random forest, артефакты и метрики в tracking server
//   - runs list|show — история запусков из Postgres (DB_URL)
//   - runs watch — события run.completed из RabbitMQ (RABBITMQ_URL)
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения и логи — в stderr.
// Это позволяет использовать pipe: cmltrain runs list --json | jq .
//
// Зависимости команд (хранилище, история, очередь) передаются через
// фабричные функции, которые вызываются после парсинга флагов.
package cli
