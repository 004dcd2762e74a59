package entrypub

import (
	"context"
	"encoding/json"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes EntryRecorded events to a Kafka topic. Messages are keyed by the
// source account so events of one account stay on one partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka returns a Kafka publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish implements ledgerservice.Publisher.
func (p *Kafka) Publish(ctx context.Context, e domain.Entry) error {
	ev := NewEntryRecorded(e)

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SourceAccountID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Event)},
		},
	})
}

// Close flushes pending messages and closes the writer.
func (p *Kafka) Close() error {
	return p.writer.Close()
}
