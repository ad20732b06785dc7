package models

import "time"

type AlertKind string

const (
	AlertInvalidSignature  AlertKind = "invalid_signature"
	AlertUnauthorizedClaim AlertKind = "unauthorized_claim"
	AlertCriticalFailure   AlertKind = "critical_verification_failure"
)

// SecurityAlert carries enough context for forensic review of a rejected or
// suspicious payment submission.
type SecurityAlert struct {
	Kind           AlertKind `json:"kind"`
	OrderID        string    `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	ActorEmail     string    `json:"actor_email,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
