package security

import (
	"context"
	"fmt"
	"time"

	"aaroh-orders/internal/logger"
	"aaroh-orders/internal/models"
)

// Monitor receives security alerts. Raising an alert must never block or
// fail the calling request.
type Monitor interface {
	Raise(kind models.AlertKind, alert models.SecurityAlert)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// AlertMonitor logs every alert and ships it to the security-alerts topic in
// the background.
type AlertMonitor struct {
	publisher Publisher
	topic     string
	logger    *logger.Logger
}

func NewAlertMonitor(publisher Publisher, topic string, log *logger.Logger) *AlertMonitor {
	return &AlertMonitor{publisher: publisher, topic: topic, logger: log}
}

func (m *AlertMonitor) Raise(kind models.AlertKind, alert models.SecurityAlert) {
	alert.Kind = kind
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	m.logger.LogSecurity(string(kind), fmt.Sprintf(
		"order=%s gateway_order=%s payment=%s actor=%s %s",
		alert.OrderID, alert.GatewayOrderID, alert.PaymentID, alert.ActorEmail, alert.Detail))

	if m.publisher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.publisher.Publish(ctx, m.topic, alert.OrderID, alert); err != nil {
			m.logger.Error("SECURITY", fmt.Sprintf("alert delivery failed for order %s: %v", alert.OrderID, err))
		}
	}()
}
