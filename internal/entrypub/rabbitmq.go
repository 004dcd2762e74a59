package entrypub

import (
	"context"
	"encoding/json"

	"github.com/go-petr/pet-ledger/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes EntryRecorded events to a topic exchange with the routing key
// "entry.<kind>".
type RabbitMQ struct {
	channel  amqpChannel
	exchange string
}

// NewRabbitMQ returns a RabbitMQ publisher on ch.
func NewRabbitMQ(ch amqpChannel, exchange string) *RabbitMQ {
	return &RabbitMQ{
		channel:  ch,
		exchange: exchange,
	}
}

// DeclareExchange declares the durable topic exchange events are published to.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish implements ledgerservice.Publisher.
func (p *RabbitMQ) Publish(ctx context.Context, e domain.Entry) error {
	ev := NewEntryRecorded(e)

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		ev.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         ev.Event,
			MessageId:    ev.EntryID.String(),
			Timestamp:    ev.Timestamp,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}
