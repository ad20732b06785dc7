package gateway

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// Client mints remote payment-intent orders with the external gateway.
// Passing the same receipt for the same local order lets the gateway dedupe
// retried mint calls on its side.
type Client interface {
	CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
}

type Config struct {
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

type RazorpayClient struct {
	api     *razorpay.Client
	timeout time.Duration
}

func NewRazorpayClient(cfg Config) *RazorpayClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RazorpayClient{
		api:     razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		timeout: timeout,
	}
}

// CreateRemoteOrder asks the gateway for a new order id for the given amount.
// The call is bounded by the configured timeout; retrying is the caller's
// responsibility.
func (c *RazorpayClient) CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		id  string
		err error
	}
	ch := make(chan result, 1)

	// The SDK has no context support, so the request runs in its own
	// goroutine and the caller is released on deadline.
	go func() {
		body, err := c.api.Order.Create(map[string]interface{}{
			"amount":   amountMinor,
			"currency": currency,
			"receipt":  receipt,
		}, nil)
		if err != nil {
			ch <- result{err: err}
			return
		}
		id, ok := body["id"].(string)
		if !ok || id == "" {
			ch <- result{err: fmt.Errorf("gateway response missing order id")}
			return
		}
		ch <- result{id: id}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.id, r.err
	}
}
