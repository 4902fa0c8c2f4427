package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

const (
	// ExchangeRuns — события training runs.
	ExchangeRuns Exchange = "cmltrain.runs"

	// QueueRunsCompleted — завершённые runs (успешные и с ошибкой).
	QueueRunsCompleted Queue = "runs.completed"

	// RoutingKeyCompleted — ключ события run.completed.
	RoutingKeyCompleted RoutingKey = "completed"
)

// SetupTopology объявляет exchange, очередь и binding.
// Операция идемпотентна: повторное объявление с теми же параметрами — no-op.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeRuns), // name
			amqp.ExchangeDirect,  // type
			true,                 // durable
			false,                // auto-deleted
			false,                // internal
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeRuns, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueRunsCompleted), // name
			true,                       // durable
			false,                      // delete when unused
			false,                      // exclusive
			false,                      // no-wait
			nil,                        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueRunsCompleted, err)
		}

		err = ch.QueueBind(
			string(QueueRunsCompleted),  // queue name
			string(RoutingKeyCompleted), // routing key
			string(ExchangeRuns),        // exchange
			false,                       // no-wait
			nil,                         // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueRunsCompleted, ExchangeRuns, err)
		}
		return nil
	})
}
