package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrUnexpectedType — сообщение другого типа.
var ErrUnexpectedType = errors.New("unexpected message type")

// RunCompletedHandler обрабатывает событие run.completed.
// Ошибка возвращает сообщение в очередь.
type RunCompletedHandler func(ctx context.Context, msg *Message, payload RunCompletedPayload) error

// Consumer читает события run.completed из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	prefetch int
}

// NewConsumer создаёт Consumer для очереди runs.completed.
func NewConsumer(conn *Connection, logger *slog.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    QueueRunsCompleted,
		prefetch: 1,
	}
}

// ConsumeRunCompleted читает события до отмены ctx.
// После разрыва соединения ждёт reconnect и продолжает.
func (c *Consumer) ConsumeRunCompleted(ctx context.Context, handler RunCompletedHandler) error {
	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Warn("subscribe failed, waiting for reconnect", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue)
			c.drain(ctx, deliveries, handler)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		}
	}
}

// subscribe настраивает prefetch и начинает потребление.
func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		var err error
		deliveries, err = ch.ConsumeWithContext(ctx,
			string(c.queue), // queue
			"",              // consumer tag (auto-generated)
			false,           // auto-ack
			false,           // exclusive
			false,           // no-local
			false,           // no-wait
			nil,             // args
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.queue, err)
		}
		return nil
	})
	return deliveries, err
}

// drain обрабатывает доставки, пока канал открыт и ctx не отменён.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery, handler RunCompletedHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed", "queue", c.queue)
				return
			}
			c.handle(ctx, d, handler)
		}
	}
}

// handle разбирает одно сообщение и подтверждает его.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler RunCompletedHandler) {
	msg, payload, err := DecodeRunCompleted(d.Body)
	if errors.Is(err, ErrUnexpectedType) {
		c.logger.Debug("skipping message", "queue", c.queue, "error", err)
		_ = d.Ack(false)
		return
	}
	if err != nil {
		c.logger.Error("failed to decode message", "queue", c.queue, "error", err, "body", string(d.Body))
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg, payload); err != nil {
		c.logger.Error("handler failed", "message_id", msg.ID, "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// DecodeRunCompleted разбирает конверт и payload события run.completed.
func DecodeRunCompleted(body []byte) (*Message, RunCompletedPayload, error) {
	var payload RunCompletedPayload

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, payload, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type != MessageTypeRunCompleted {
		return nil, payload, fmt.Errorf("%w: %q", ErrUnexpectedType, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &msg, payload, nil
}
