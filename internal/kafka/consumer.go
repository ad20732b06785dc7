package kafka

import (
	"context"
	"encoding/json"
	"log"

	"aaroh-orders/internal/models"

	"github.com/segmentio/kafka-go"
)

type AlertConsumer struct {
	reader *kafka.Reader
}

// NewAlertConsumer creates a consumer for the security-alerts topic.
func NewAlertConsumer(brokers []string, topic, groupID string) *AlertConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &AlertConsumer{reader: reader}
}

// Start consumes security alerts until ctx is cancelled, invoking handler
// for each. Malformed messages are logged and skipped.
func (c *AlertConsumer) Start(ctx context.Context, handler func(alert models.SecurityAlert)) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading security alert: %v", err)
			continue
		}

		var alert models.SecurityAlert
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			log.Printf("Failed to unmarshal security alert: %v", err)
			continue
		}

		handler(alert)
	}
}

func (c *AlertConsumer) Close() error {
	return c.reader.Close()
}
