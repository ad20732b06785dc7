package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderKind string

const (
	KindShop       OrderKind = "shop"
	KindCustomSong OrderKind = "custom_song"
	KindCourse     OrderKind = "course"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusInProgress OrderStatus = "in_progress"
	StatusReady      OrderStatus = "ready"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCOD    PaymentMethod = "cod"
)

type DeadlinePackage string

const (
	DeadlineStandard DeadlinePackage = "standard"
	DeadlineExpress  DeadlinePackage = "express"
)

// OrderItem is a purchased line item on a shop order. Stored as JSON on the
// order row, not as a separate table.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitMinor int64  `json:"unit_minor"`
}

// Order is the single source of truth for purchase state across all three
// product families. Amount and owner are immutable after creation; status
// only moves along the transitions the state machine allows.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string        `bun:"id,pk" json:"id"`
	Kind          OrderKind     `bun:"kind,notnull" json:"kind"`
	OwnerEmail    string        `bun:"owner_email,notnull" json:"owner_email"`
	OwnerID       string        `bun:"owner_id,nullzero" json:"owner_id,omitempty"`
	AmountMinor   int64         `bun:"amount_minor,notnull" json:"amount_minor"`
	Currency      string        `bun:"currency,notnull" json:"currency"`
	Status        OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentMethod PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`

	// GatewayPaymentID is set only after the signature verifier accepts a
	// submission for this order. OrderIDHistory keeps superseded gateway
	// order ids for repayment bookkeeping, append-only.
	GatewayOrderID   string   `bun:"gateway_order_id,nullzero" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string   `bun:"gateway_payment_id,nullzero" json:"gateway_payment_id,omitempty"`
	OrderIDHistory   []string `bun:"order_id_history,nullzero" json:"order_id_history,omitempty"`

	// Shop orders
	Items           []OrderItem `bun:"items,nullzero" json:"items,omitempty"`
	ShippingName    string      `bun:"shipping_name,nullzero" json:"shipping_name,omitempty"`
	ShippingAddress string      `bun:"shipping_address,nullzero" json:"shipping_address,omitempty"`
	ShippingPhone   string      `bun:"shipping_phone,nullzero" json:"shipping_phone,omitempty"`

	// Custom song orders
	RecipientName   string          `bun:"recipient_name,nullzero" json:"recipient_name,omitempty"`
	Occasion        string          `bun:"occasion,nullzero" json:"occasion,omitempty"`
	Style           string          `bun:"style,nullzero" json:"style,omitempty"`
	Mood            string          `bun:"mood,nullzero" json:"mood,omitempty"`
	DeadlinePackage DeadlinePackage `bun:"deadline_package,nullzero" json:"deadline_package,omitempty"`
	AwaitingPayment bool            `bun:"awaiting_payment,nullzero" json:"awaiting_payment,omitempty"`
	PosterURL       string          `bun:"poster_url,nullzero" json:"poster_url,omitempty"`
	PreviewURL      string          `bun:"preview_url,nullzero" json:"preview_url,omitempty"`
	FullAudioURL    string          `bun:"full_audio_url,nullzero" json:"full_audio_url,omitempty"`

	// Course enrollment purchases
	CourseID string `bun:"course_id,nullzero" json:"course_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Paid reports whether a verified payment has ever been applied to the order.
func (o *Order) Paid() bool {
	return o.GatewayPaymentID != ""
}

type ShopOrderRequest struct {
	Items           []OrderItem   `json:"items"`
	ShippingName    string        `json:"shipping_name"`
	ShippingAddress string        `json:"shipping_address"`
	ShippingPhone   string        `json:"shipping_phone"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
}

type SongOrderRequest struct {
	RecipientName   string          `json:"recipient_name"`
	Occasion        string          `json:"occasion"`
	Style           string          `json:"style"`
	Mood            string          `json:"mood"`
	DeadlinePackage DeadlinePackage `json:"deadline_package"`
}

type EnrollmentRequest struct {
	CourseID    string `json:"course_id"`
	AmountMinor int64  `json:"amount_minor"`
}

// VerificationRequest is the callback payload the client submits after
// completing payment with the gateway checkout.
type VerificationRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type OrderResponse struct {
	ID             string      `json:"id"`
	Kind           OrderKind   `json:"kind"`
	Status         OrderStatus `json:"status"`
	AmountMinor    int64       `json:"amount_minor"`
	Currency       string      `json:"currency"`
	GatewayOrderID string      `json:"gateway_order_id,omitempty"`
}

func NewOrderResponse(o *Order) OrderResponse {
	return OrderResponse{
		ID:             o.ID,
		Kind:           o.Kind,
		Status:         o.Status,
		AmountMinor:    o.AmountMinor,
		Currency:       o.Currency,
		GatewayOrderID: o.GatewayOrderID,
	}
}
