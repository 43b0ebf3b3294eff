// Package broker fans stored messages out to RabbitMQ for downstream consumers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// Noop drops every event. Used when the broker is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, Envelope) error { return nil }
func (Noop) Close() error                                    { return nil }

type rabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *zap.Logger
}

// NewRabbitPublisher dials url and declares a durable topic exchange.
func NewRabbitPublisher(url, exchange string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &rabbitPublisher{
		conn:     conn,
		exchange: exchange,
		log:      zap.L().Named("broker"),
	}, nil
}

func (r *rabbitPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msgID,
		Type:         env.Meta.Type,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	if confirm != nil {
		ok, err := confirm.WaitContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("broker nacked %s", msgID)
		}
	}
	r.log.Debug("published", zap.String("key", key), zap.String("exchange", r.exchange), zap.String("id", msgID))
	return nil
}

func (r *rabbitPublisher) Close() error {
	return r.conn.Close()
}
