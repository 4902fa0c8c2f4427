package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/cmltrain/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeRunCompleted — run завершён (SUCCEEDED или FAILED).
const MessageTypeRunCompleted MessageType = "run.completed"

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedPayload — payload события run.completed.
type RunCompletedPayload struct {
	RunID         uuid.UUID        `json:"run_id"`
	Experiment    string           `json:"experiment"`
	TrackingRunID string           `json:"tracking_run_id,omitempty"`
	Status        domain.RunStatus `json:"status"`
	TrainRows     int              `json:"train_rows"`
	TestRows      int              `json:"test_rows"`
	TrainScore    float64          `json:"train_score"`
	TestScore     float64          `json:"test_score"`
	Artifacts     []string         `json:"artifacts,omitempty"`
	Error         string           `json:"error,omitempty"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// NewRunCompletedPayload собирает payload из завершённого run.
func NewRunCompletedPayload(run *domain.Run) RunCompletedPayload {
	return RunCompletedPayload{
		RunID:         run.ID,
		Experiment:    run.Experiment,
		TrackingRunID: run.TrackingRunID,
		Status:        run.Status,
		TrainRows:     run.TrainRows,
		TestRows:      run.TestRows,
		TrainScore:    run.TrainScore,
		TestScore:     run.TestScore,
		Artifacts:     run.Artifacts,
		Error:         run.Error,
		FinishedAt:    run.FinishedAt,
	}
}

// newMessage упаковывает payload в конверт.
func newMessage(msgType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunCompleted публикует событие о завершённом run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *domain.Run) error {
	msg, err := newMessage(MessageTypeRunCompleted, NewRunCompletedPayload(run))
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, ExchangeRuns, RoutingKeyCompleted, msg); err != nil {
		return err
	}

	p.logger.Info("run completed event published", "run_id", run.ID, "status", run.Status)
	return nil
}
