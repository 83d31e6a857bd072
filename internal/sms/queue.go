package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OutboundQueue holds texts awaiting a provider send. A broker restart
// keeps queued messages because both queue and deliveries are durable.
const OutboundQueue = "sms.outbound"

// Message is the wire format on the outbound queue.
type Message struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// Publisher enqueues outbound texts. It satisfies the dispatcher's SMS port:
// a publish failure is reported to the caller, who logs and moves on.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the queue so publish never fails due to missing infra
	_, err = ch.QueueDeclare(OutboundQueue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare %s: %w", OutboundQueue, err)
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) Publish(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(Message{Phone: phone, Text: text})
	if err != nil {
		return fmt.Errorf("marshal sms message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",            // default exchange
		OutboundQueue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// StartConsumer drains the outbound queue through the configured provider.
// Provider failures are logged and the message acked anyway: texts are
// best-effort and must never wedge the queue.
func StartConsumer(ctx context.Context, conn *amqp.Connection, provider Provider, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		OutboundQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(
		OutboundQueue,
		"sms-sender", // consumer tag
		false,        // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Println("stopping sms consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Println("messages channel closed")
					return
				}

				if err := handleOutbound(ctx, provider, msg.Body); err != nil {
					logger.Printf("send sms: %v", err)
				}
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}

func handleOutbound(ctx context.Context, provider Provider, body []byte) error {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return provider.Send(ctx, m.Phone, m.Text)
}
