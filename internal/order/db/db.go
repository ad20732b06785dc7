package db

import (
	"context"
	"database/sql"
	"time"

	"aaroh-orders/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// GetOrderByID fetches one order by its id. Returns sql.ErrNoRows when the
// order does not exist.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrdersByOwner(ctx context.Context, ownerEmail string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("owner_email = ?", ownerEmail).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder writes the mutable columns back. Amount and owner are never in
// the column list; they are immutable after creation.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewUpdate().
		Model(order).
		Column("status", "gateway_order_id", "gateway_payment_id", "order_id_history",
			"awaiting_payment", "poster_url", "preview_url", "full_audio_url", "updated_at").
		Where("id = ?", order.ID).
		Exec(ctx)
	return err
}

// ApplyPaidTransition re-reads the order under a row lock, re-checks that the
// transition still applies, and writes the paid state in one transaction.
// Returns the stored order and whether this call applied the transition;
// false means a concurrent caller got there first and the submission should
// be reported as an idempotent replay.
func (d *DB) ApplyPaidTransition(ctx context.Context, orderID, paymentID string, target models.OrderStatus, history []string) (*models.Order, bool, error) {
	var out *models.Order
	applied := false

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var o models.Order
		q := tx.NewSelect().Model(&o).Where("id = ?", orderID).Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}

		if o.GatewayPaymentID != "" && o.GatewayPaymentID == paymentID {
			// Lost the race; the payment is already applied.
			out = &o
			return nil
		}

		o.Status = target
		o.GatewayPaymentID = paymentID
		if history != nil {
			o.OrderIDHistory = history
		}
		if target == models.StatusCompleted {
			o.AwaitingPayment = false
		}
		o.UpdatedAt = time.Now().UTC()

		if _, err := tx.NewUpdate().
			Model(&o).
			Column("status", "gateway_payment_id", "order_id_history", "awaiting_payment", "updated_at").
			Where("id = ?", o.ID).
			Exec(ctx); err != nil {
			return err
		}

		out = &o
		applied = true
		return nil
	})

	return out, applied, err
}

// ---------------- CART ----------------

func (d *DB) AddCartItem(ctx context.Context, item *models.CartItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) GetCartItems(ctx context.Context, ownerEmail string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("owner_email = ?", ownerEmail).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClearCart removes every pending cart item for the buyer. Called after an
// order is confirmed; a failure here must not undo the payment.
func (d *DB) ClearCart(ctx context.Context, ownerEmail string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("owner_email = ?", ownerEmail).
		Exec(ctx)
	return err
}
