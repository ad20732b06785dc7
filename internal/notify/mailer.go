package notify

import (
	"fmt"

	"aaroh-orders/internal/config"
	"aaroh-orders/internal/logger"

	"gopkg.in/gomail.v2"
)

// Dispatcher sends buyer and operator messages. Delivery is best-effort;
// callers log failures and move on.
type Dispatcher interface {
	Send(to, subject, body string) error
}

type SMTPDispatcher struct {
	cfg    config.EmailConfig
	logger *logger.Logger
}

func NewSMTPDispatcher(cfg config.EmailConfig, log *logger.Logger) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg, logger: log}
}

func (d *SMTPDispatcher) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	dialer := gomail.NewDialer(d.cfg.SMTPHost, d.cfg.SMTPPort, d.cfg.SMTPUsername, d.cfg.SMTPPassword)
	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}
