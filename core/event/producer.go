package event

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Message struct {
	Topic string
	Key   string
	Value []byte
}

type Producer interface {
	Produce(ctx context.Context, msgs ...Message) error
	Close() error
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, log logrus.FieldLogger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(log.Debugf),
		ErrorLogger:  kafka.LoggerFunc(log.Errorf),
	}
	return &KafkaProducer{writer: w}
}

// Produce writes msgs synchronously. Messages with the same key land on the
// same partition, so events of one user stay ordered.
func (p *KafkaProducer) Produce(ctx context.Context, msgs ...Message) error {
	km := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km = append(km, kafka.Message{
			Topic: m.Topic,
			Key:   []byte(m.Key),
			Value: m.Value,
		})
	}

	if err := p.writer.WriteMessages(ctx, km...); err != nil {
		return fmt.Errorf("writing %d messages: %w", len(km), err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
