// Package mq публикует и читает события о завершённых training runs.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchange, очередь и binding
//   - publisher.go  — публикация run.completed
//   - consumer.go   — чтение run.completed (команда runs watch)
//
// Топология:
//
//	cmltrain.runs (direct)
//	└── runs.completed [routing: completed]
package mq
