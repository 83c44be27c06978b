package kafka

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Producer streams check-in domain events. The external notification
// service consumes tourist registrations to send welcome emails; dashboards
// consume gate events.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes a single message to the given topic. Every message
// carries a unique message_id header so consumers can deduplicate
// redeliveries.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "message_id", Value: []byte(uuid.NewString())},
			},
		},
	)
}

// PublishJSON marshals payload and publishes it under the given key.
func (p *Producer) PublishJSON(topic string, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Publish(topic, key, msgBytes)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
