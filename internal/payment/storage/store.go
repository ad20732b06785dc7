package storage

import "time"

const (
	OutcomeAccepted           = "accepted"
	OutcomeReplayed           = "replayed"
	OutcomeOrderNotFound      = "order_not_found"
	OutcomeOwnershipRejected  = "ownership_rejected"
	OutcomeOrderIDMismatch    = "order_id_mismatch"
	OutcomeSignatureRejected  = "signature_rejected"
	OutcomeInvalidState       = "invalid_state"
	OutcomeError              = "error"
)

// Attempt is one verification submission, recorded whatever the outcome so
// security review can reconstruct what was claimed by whom.
type Attempt struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	PaymentID      string    `json:"payment_id"`
	ActorEmail     string    `json:"actor_email"`
	Outcome        string    `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Store interface {
	RecordAttempt(attempt *Attempt) error
	ListAttemptsByOrder(orderID string, limit int) ([]*Attempt, error)

	Close() error
	HealthCheck() error
}
