package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CartItem is a pending shop-cart entry. Items are cleared, not deleted one
// by one, once the order they fed into is confirmed.
type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ID         string    `bun:"id,pk" json:"id"`
	OwnerEmail string    `bun:"owner_email,notnull" json:"owner_email"`
	ProductID  string    `bun:"product_id,notnull" json:"product_id"`
	Title      string    `bun:"title,nullzero" json:"title,omitempty"`
	Quantity   int       `bun:"quantity,notnull" json:"quantity"`
	UnitMinor  int64     `bun:"unit_minor,notnull" json:"unit_minor"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
