package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aaroh-orders/internal/config"
	"aaroh-orders/internal/logger"
	"aaroh-orders/internal/models"
	"aaroh-orders/internal/payment/storage"
	"aaroh-orders/internal/signature"
	"aaroh-orders/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByOwner(ctx context.Context, ownerEmail string) ([]models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	ApplyPaidTransition(ctx context.Context, orderID, paymentID string, target models.OrderStatus, history []string) (*models.Order, bool, error)
	ClearCart(ctx context.Context, ownerEmail string) error
}

type GatewayClient interface {
	CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
}

type Locker interface {
	LockOrder(ctx context.Context, orderID, token string) (bool, error)
	UnlockOrder(ctx context.Context, orderID, token string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Notifier interface {
	Send(to, subject, body string) error
}

type SecurityMonitor interface {
	Raise(kind models.AlertKind, alert models.SecurityAlert)
}

type AttemptLog interface {
	RecordAttempt(attempt *storage.Attempt) error
}

type Settings struct {
	SignatureSecret      string
	Currency             string
	OperatorEmail        string
	SongUnlockFeeMinor   int64
	SongStandardFeeMinor int64
	SongExpressFeeMinor  int64
	Topics               config.TopicConfig
}

// OrderService owns order creation, payment verification, and every status
// transition. All collaborators are injected so the verification logic is
// testable without a live gateway, broker, or mailbox.
type OrderService struct {
	DB        DBLayer
	Gateway   GatewayClient
	Locks     Locker
	Publisher Publisher
	Notifier  Notifier
	Monitor   SecurityMonitor
	Attempts  AttemptLog

	cfg    Settings
	logger *logger.Logger
}

func NewOrderService(db DBLayer, gw GatewayClient, locks Locker, pub Publisher,
	notifier Notifier, monitor SecurityMonitor, attempts AttemptLog,
	cfg Settings, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:        db,
		Gateway:   gw,
		Locks:     locks,
		Publisher: pub,
		Notifier:  notifier,
		Monitor:   monitor,
		Attempts:  attempts,
		cfg:       cfg,
		logger:    log,
	}
}

// ---------------- ORDER CREATION ----------------

// PlaceShopOrder persists a new gift-shop order. COD orders confirm
// immediately with their side effects; online orders get a gateway order
// minted and stored before returning.
func (s *OrderService) PlaceShopOrder(ctx context.Context, ownerEmail, ownerID string, req models.ShopOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, NewValidationError("order must contain at least one item")
	}
	var total int64
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitMinor <= 0 {
			return nil, NewValidationError("item quantity and price must be positive")
		}
		total += int64(item.Quantity) * item.UnitMinor
	}
	if req.ShippingName == "" || req.ShippingAddress == "" || req.ShippingPhone == "" {
		return nil, NewValidationError("shipping name, address and phone are required")
	}

	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentOnline
	}
	if method != models.PaymentOnline && method != models.PaymentCOD {
		return nil, NewValidationError("payment method must be online or cod")
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		Kind:            models.KindShop,
		OwnerEmail:      ownerEmail,
		OwnerID:         ownerID,
		AmountMinor:     total,
		Currency:        s.cfg.Currency,
		Status:          models.StatusPending,
		PaymentMethod:   method,
		Items:           req.Items,
		ShippingName:    req.ShippingName,
		ShippingAddress: req.ShippingAddress,
		ShippingPhone:   req.ShippingPhone,
		CreatedAt:       time.Now().UTC(),
	}

	if method == models.PaymentCOD {
		// No verification step follows, so the order confirms now and the
		// confirmed side effects run synchronously.
		order.Status = models.StatusConfirmed
		if err := s.DB.CreateOrder(ctx, order); err != nil {
			return nil, NewCriticalError(err)
		}
		s.logger.LogOrder("CREATE", order.ID, "cod shop order confirmed")
		s.runConfirmedSideEffects(ctx, order)
		s.publish(ctx, s.cfg.Topics.OrderCreated, order)
		return order, nil
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	if err := s.mintGatewayOrder(ctx, order, order.AmountMinor, utils.ReceiptForOrder(order.ID)); err != nil {
		return order, err
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("shop order pending, gateway order %s", order.GatewayOrderID))
	s.publish(ctx, s.cfg.Topics.OrderCreated, order)
	return order, nil
}

// PlaceSongOrder persists a custom-song order. The advance for the chosen
// deadline package is collected online; there is no COD path for songs.
func (s *OrderService) PlaceSongOrder(ctx context.Context, ownerEmail, ownerID string, req models.SongOrderRequest) (*models.Order, error) {
	if req.RecipientName == "" || req.Occasion == "" {
		return nil, NewValidationError("recipient name and occasion are required")
	}

	var amount int64
	switch req.DeadlinePackage {
	case models.DeadlineStandard:
		amount = s.cfg.SongStandardFeeMinor
	case models.DeadlineExpress:
		amount = s.cfg.SongExpressFeeMinor
	default:
		return nil, NewValidationError("deadline package must be standard or express")
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		Kind:            models.KindCustomSong,
		OwnerEmail:      ownerEmail,
		OwnerID:         ownerID,
		AmountMinor:     amount,
		Currency:        s.cfg.Currency,
		Status:          models.StatusPending,
		PaymentMethod:   models.PaymentOnline,
		RecipientName:   req.RecipientName,
		Occasion:        req.Occasion,
		Style:           req.Style,
		Mood:            req.Mood,
		DeadlinePackage: req.DeadlinePackage,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	if err := s.mintGatewayOrder(ctx, order, order.AmountMinor, utils.ReceiptForOrder(order.ID)); err != nil {
		return order, err
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("custom song order pending, gateway order %s", order.GatewayOrderID))
	s.publish(ctx, s.cfg.Topics.OrderCreated, order)
	return order, nil
}

// PlaceEnrollment persists a course enrollment purchase, online only.
func (s *OrderService) PlaceEnrollment(ctx context.Context, ownerEmail, ownerID string, req models.EnrollmentRequest) (*models.Order, error) {
	if req.CourseID == "" {
		return nil, NewValidationError("course id is required")
	}
	if req.AmountMinor <= 0 {
		return nil, NewValidationError("amount must be positive")
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		Kind:          models.KindCourse,
		OwnerEmail:    ownerEmail,
		OwnerID:       ownerID,
		AmountMinor:   req.AmountMinor,
		Currency:      s.cfg.Currency,
		Status:        models.StatusPending,
		PaymentMethod: models.PaymentOnline,
		CourseID:      req.CourseID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	if err := s.mintGatewayOrder(ctx, order, order.AmountMinor, utils.ReceiptForOrder(order.ID)); err != nil {
		return order, err
	}
	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("enrollment pending for course %s, gateway order %s", req.CourseID, order.GatewayOrderID))
	s.publish(ctx, s.cfg.Topics.OrderCreated, order)
	return order, nil
}

// RetryGatewayOrder re-runs the mint for a pending order whose first mint
// failed. The receipt is derived from the order id, so the gateway dedupes
// the retry instead of minting a duplicate.
func (s *OrderService) RetryGatewayOrder(ctx context.Context, callerEmail, orderID string) (*models.Order, error) {
	order, err := s.getOwnedOrder(ctx, callerEmail, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending || order.PaymentMethod != models.PaymentOnline {
		return nil, NewValidationError("order is not awaiting an online payment")
	}
	if err := s.mintGatewayOrder(ctx, order, order.AmountMinor, utils.ReceiptForOrder(order.ID)); err != nil {
		return order, err
	}
	return order, nil
}

// mintGatewayOrder asks the gateway for a remote order and stores the id on
// the local order. On failure the order stays pending and retryable.
func (s *OrderService) mintGatewayOrder(ctx context.Context, order *models.Order, amountMinor int64, receipt string) error {
	gatewayOrderID, err := s.Gateway.CreateRemoteOrder(ctx, amountMinor, order.Currency, receipt)
	if err != nil {
		s.logger.Error("GATEWAY", fmt.Sprintf("mint failed for order %s: %v", order.ID, err))
		return NewGatewayError(err)
	}
	order.GatewayOrderID = gatewayOrderID
	order.UpdatedAt = time.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return NewCriticalError(err)
	}
	return nil
}

// ---------------- QUERIES ----------------

func (s *OrderService) GetOrder(ctx context.Context, callerEmail, orderID string, admin bool) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}
	if !admin && order.OwnerEmail != callerEmail {
		return nil, NewAuthorizationError(fmt.Sprintf("order %s does not belong to %s", orderID, callerEmail))
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, ownerEmail string) ([]models.Order, error) {
	orders, err := s.DB.GetOrdersByOwner(ctx, ownerEmail)
	if err != nil {
		return nil, NewCriticalError(err)
	}
	return orders, nil
}

// ---------------- PAYMENT VERIFICATION ----------------

// VerifyPayment is the transition rule for a payment callback, applied the
// same way to every order family:
//
//  1. look up the order
//  2. enforce ownership (mismatch is escalated, not just rejected)
//  3. idempotent replay short-circuit
//  4. repayment bookkeeping when a terminal order sees a new payment id
//  5. gateway order id must match the stored one
//  6. HMAC signature check
//  7. atomic paid transition under a row lock
//  8. post-commit notifications
func (s *OrderService) VerifyPayment(ctx context.Context, callerEmail, orderID string, req models.VerificationRequest) (*models.Order, error) {
	// Advisory lock: duplicate in-flight submissions for the same order do
	// redundant work otherwise. The row lock in step 7 is the guarantee.
	if s.Locks != nil {
		token := uuid.NewString()
		if ok, err := s.Locks.LockOrder(ctx, orderID, token); err != nil {
			s.logger.Warn("REDIS", fmt.Sprintf("verification lock unavailable for order %s: %v", orderID, err))
		} else if !ok {
			s.logger.Warn("PAYMENT", fmt.Sprintf("concurrent verification in flight for order %s", orderID))
		} else {
			defer func() {
				if err := s.Locks.UnlockOrder(ctx, orderID, token); err != nil {
					s.logger.Warn("REDIS", fmt.Sprintf("failed to release verification lock for order %s: %v", orderID, err))
				}
			}()
		}
	}

	// Step 1: lookup.
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordAttempt(orderID, callerEmail, req, storage.OutcomeOrderNotFound, "")
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}

	// Step 2: ownership. A mismatch is an unauthorized claim attempt, not a
	// benign error, so it is escalated regardless of signature validity.
	if order.OwnerEmail != callerEmail {
		s.Monitor.Raise(models.AlertUnauthorizedClaim, models.SecurityAlert{
			OrderID:        order.ID,
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.GatewayPaymentID,
			ActorEmail:     callerEmail,
			Detail:         fmt.Sprintf("order belongs to %s", order.OwnerEmail),
		})
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeOwnershipRejected, "")
		return nil, NewAuthorizationError(fmt.Sprintf("order %s claimed by %s but belongs to %s", orderID, callerEmail, order.OwnerEmail))
	}

	// Step 3: idempotent replay. The payment id is only ever stored after a
	// submission passed verification, so equality means this exact payment
	// was already applied.
	if order.GatewayPaymentID != "" && order.GatewayPaymentID == req.GatewayPaymentID {
		s.logger.LogPayment("REPLAY", order.ID, fmt.Sprintf("payment %s already applied", req.GatewayPaymentID))
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeReplayed, "")
		return order, nil
	}

	// Step 4: repayment. A terminal paid order seeing a different payment id
	// is a deliberate second payment; the consumed gateway order id moves to
	// the history before the new payment is verified and re-applied.
	var target models.OrderStatus
	var history []string
	if TerminalPaid(order.Kind, order.Status) {
		target = order.Status
		history = append(append([]string{}, order.OrderIDHistory...), order.GatewayOrderID)
		s.logger.LogPayment("REPAYMENT", order.ID, fmt.Sprintf("new payment %s against terminal order", req.GatewayPaymentID))
	} else {
		var ok bool
		target, ok = PaidTarget(order.Kind, order.Status)
		if !ok {
			s.recordAttempt(orderID, callerEmail, req, storage.OutcomeInvalidState, string(order.Status))
			return nil, NewValidationError("order is not awaiting payment")
		}
	}

	// Step 5: the submission must reference the gateway order this order
	// currently points at. A mismatch is a client bug, logged but not
	// alerted.
	if order.GatewayOrderID == "" || order.GatewayOrderID != req.GatewayOrderID {
		s.logger.Warn("PAYMENT", fmt.Sprintf("gateway order mismatch for order %s: got %s, have %s",
			order.ID, req.GatewayOrderID, order.GatewayOrderID))
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeOrderIDMismatch, "")
		return nil, NewOrderIDMismatchError(fmt.Sprintf("submitted gateway order %s does not match stored %s", req.GatewayOrderID, order.GatewayOrderID))
	}

	// Step 6: signature.
	if !signature.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature, s.cfg.SignatureSecret) {
		if CanTransition(order.Kind, order.Status, models.StatusFailed) {
			order.Status = models.StatusFailed
			order.UpdatedAt = time.Now().UTC()
			if err := s.DB.UpdateOrder(ctx, order); err != nil {
				s.logger.Error("PAYMENT", fmt.Sprintf("failed to persist failed status for order %s: %v", order.ID, err))
			}
		}
		s.Monitor.Raise(models.AlertInvalidSignature, models.SecurityAlert{
			OrderID:        order.ID,
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.GatewayPaymentID,
			ActorEmail:     callerEmail,
			Detail:         "hmac signature mismatch",
		})
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeSignatureRejected, "")
		s.publish(ctx, s.cfg.Topics.PaymentFailed, order)
		return nil, NewSignatureError(fmt.Sprintf("signature mismatch for order %s payment %s", order.ID, req.GatewayPaymentID))
	}

	// Step 7: apply atomically. The row lock makes the loser of a race land
	// back in the replay path instead of double-crediting.
	updated, applied, err := s.DB.ApplyPaidTransition(ctx, order.ID, req.GatewayPaymentID, target, history)
	if err != nil {
		s.Monitor.Raise(models.AlertCriticalFailure, models.SecurityAlert{
			OrderID:        order.ID,
			GatewayOrderID: req.GatewayOrderID,
			PaymentID:      req.GatewayPaymentID,
			ActorEmail:     callerEmail,
			Detail:         err.Error(),
		})
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeError, err.Error())
		return nil, NewCriticalError(err)
	}
	if !applied {
		s.logger.LogPayment("REPLAY", order.ID, "concurrent submission already applied this payment")
		s.recordAttempt(orderID, callerEmail, req, storage.OutcomeReplayed, "")
		return updated, nil
	}

	s.logger.LogPayment("CONFIRM", updated.ID, fmt.Sprintf("payment %s verified, status %s", req.GatewayPaymentID, updated.Status))
	s.recordAttempt(orderID, callerEmail, req, storage.OutcomeAccepted, "")

	// Step 8: side effects outside the transaction. None of these may fail
	// the confirmation.
	s.runConfirmedSideEffects(ctx, updated)
	s.publish(ctx, s.cfg.Topics.PaymentConfirmed, updated)

	return updated, nil
}

// runConfirmedSideEffects clears the buyer's cart (shop only) and dispatches
// the buyer and operator notifications. Best-effort throughout.
func (s *OrderService) runConfirmedSideEffects(ctx context.Context, order *models.Order) {
	if order.Kind == models.KindShop {
		if err := s.DB.ClearCart(ctx, order.OwnerEmail); err != nil {
			s.logger.Warn("ORDER", fmt.Sprintf("cart clear failed for %s: %v", order.OwnerEmail, err))
		}
	}

	if s.Notifier == nil {
		return
	}
	subject, body := buyerNotification(order)
	if err := s.Notifier.Send(order.OwnerEmail, subject, body); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("buyer notification failed for order %s: %v", order.ID, err))
	}
	if err := s.Notifier.Send(s.cfg.OperatorEmail, fmt.Sprintf("Order %s paid", order.ID), operatorNotification(order)); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("operator notification failed for order %s: %v", order.ID, err))
	}
}

// ---------------- CANCELLATION & FULFILMENT ----------------

// CancelOrder cancels a shop order. Self-service cancellation is only legal
// from confirmed and only by the owner; admins may also cancel a pending
// order.
func (s *OrderService) CancelOrder(ctx context.Context, callerEmail, orderID string, admin bool) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}

	if !admin {
		if order.OwnerEmail != callerEmail {
			s.Monitor.Raise(models.AlertUnauthorizedClaim, models.SecurityAlert{
				OrderID:    order.ID,
				ActorEmail: callerEmail,
				Detail:     fmt.Sprintf("cancel attempt on order owned by %s", order.OwnerEmail),
			})
			return nil, NewAuthorizationError(fmt.Sprintf("order %s cancel attempted by %s", orderID, callerEmail))
		}
		if order.Status != models.StatusConfirmed {
			return nil, NewValidationError("only a confirmed order can be cancelled")
		}
	}
	if !CanTransition(order.Kind, order.Status, models.StatusCancelled) {
		return nil, NewValidationError(fmt.Sprintf("cannot cancel an order in status %s", order.Status))
	}

	order.Status = models.StatusCancelled
	order.UpdatedAt = time.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	s.logger.LogOrder("CANCEL", order.ID, "order cancelled")

	if s.Notifier != nil {
		if err := s.Notifier.Send(order.OwnerEmail, fmt.Sprintf("Order %s cancelled", order.ID),
			"Your order has been cancelled. If a payment was captured it will be refunded."); err != nil {
			s.logger.Warn("NOTIFY", fmt.Sprintf("cancel notification failed for order %s: %v", order.ID, err))
		}
	}
	return order, nil
}

// MarkShipped and MarkDelivered are operator moves; they bypass the
// ownership check but still require a valid predecessor state.
func (s *OrderService) MarkShipped(ctx context.Context, orderID string) (*models.Order, error) {
	return s.adminTransition(ctx, orderID, models.KindShop, models.StatusShipped)
}

func (s *OrderService) MarkDelivered(ctx context.Context, orderID string) (*models.Order, error) {
	return s.adminTransition(ctx, orderID, models.KindShop, models.StatusDelivered)
}

func (s *OrderService) adminTransition(ctx context.Context, orderID string, kind models.OrderKind, to models.OrderStatus) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}
	if order.Kind != kind {
		return nil, NewValidationError(fmt.Sprintf("operation does not apply to %s orders", order.Kind))
	}
	if !CanTransition(order.Kind, order.Status, to) {
		return nil, NewValidationError(fmt.Sprintf("cannot move order from %s to %s", order.Status, to))
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	s.logger.LogOrder("STATUS", order.ID, fmt.Sprintf("order moved to %s", to))
	return order, nil
}

// ---------------- CUSTOM SONG FULFILMENT ----------------

// UpdateSongAssets attaches produced content to a song order. Non-empty
// fields win; nothing else changes.
func (s *OrderService) UpdateSongAssets(ctx context.Context, orderID, posterURL, previewURL, fullAudioURL string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}
	if order.Kind != models.KindCustomSong {
		return nil, NewValidationError("assets can only be attached to custom song orders")
	}

	if posterURL != "" {
		order.PosterURL = posterURL
	}
	if previewURL != "" {
		order.PreviewURL = previewURL
	}
	if fullAudioURL != "" {
		order.FullAudioURL = fullAudioURL
	}
	order.UpdatedAt = time.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	return order, nil
}

// MarkSongReady moves a song from in_progress to ready and mints the unlock
// gateway order. The consumed advance gateway order id moves to the history;
// the order's amount is untouched since the unlock fee is a separate charge.
func (s *OrderService) MarkSongReady(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}
	if order.Kind != models.KindCustomSong {
		return nil, NewValidationError("only custom song orders can be marked ready")
	}
	if !CanTransition(order.Kind, order.Status, models.StatusReady) {
		return nil, NewValidationError(fmt.Sprintf("cannot mark a %s order ready", order.Status))
	}
	if order.PreviewURL == "" {
		return nil, NewValidationError("a preview must be attached before the song is marked ready")
	}

	unlockOrderID, err := s.Gateway.CreateRemoteOrder(ctx, s.cfg.SongUnlockFeeMinor, order.Currency, utils.UnlockReceiptForOrder(order.ID))
	if err != nil {
		s.logger.Error("GATEWAY", fmt.Sprintf("unlock mint failed for order %s: %v", order.ID, err))
		return nil, NewGatewayError(err)
	}

	order.OrderIDHistory = append(order.OrderIDHistory, order.GatewayOrderID)
	order.GatewayOrderID = unlockOrderID
	order.Status = models.StatusReady
	order.AwaitingPayment = true
	order.UpdatedAt = time.Now().UTC()
	if err := s.DB.UpdateOrder(ctx, order); err != nil {
		return nil, NewCriticalError(err)
	}
	s.logger.LogOrder("STATUS", order.ID, fmt.Sprintf("song ready, unlock gateway order %s", unlockOrderID))

	if s.Notifier != nil {
		if err := s.Notifier.Send(order.OwnerEmail, "Your song is ready",
			fmt.Sprintf("A preview of your song for %s is ready. Complete the unlock payment to download the full track.", order.RecipientName)); err != nil {
			s.logger.Warn("NOTIFY", fmt.Sprintf("ready notification failed for order %s: %v", order.ID, err))
		}
	}
	return order, nil
}

// ---------------- HELPERS ----------------

func (s *OrderService) getOwnedOrder(ctx context.Context, callerEmail, orderID string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(orderID)
		}
		return nil, NewCriticalError(err)
	}
	if order.OwnerEmail != callerEmail {
		return nil, NewAuthorizationError(fmt.Sprintf("order %s does not belong to %s", orderID, callerEmail))
	}
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, topic string, order *models.Order) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, order.ID, order); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("publish to %s failed for order %s: %v", topic, order.ID, err))
	}
}

func (s *OrderService) recordAttempt(orderID, actorEmail string, req models.VerificationRequest, outcome, detail string) {
	if s.Attempts == nil {
		return
	}
	attempt := &storage.Attempt{
		ID:             utils.GenerateAttemptID(),
		OrderID:        orderID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.GatewayPaymentID,
		ActorEmail:     actorEmail,
		Outcome:        outcome,
		Detail:         detail,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Attempts.RecordAttempt(attempt); err != nil {
		s.logger.Warn("DATABASE", fmt.Sprintf("failed to record payment attempt for order %s: %v", orderID, err))
	}
}

func buyerNotification(order *models.Order) (string, string) {
	switch order.Kind {
	case models.KindCustomSong:
		if order.Status == models.StatusCompleted {
			return "Your song is unlocked",
				fmt.Sprintf("Payment received. Download your full track here: %s", order.FullAudioURL)
		}
		return "Your song order is confirmed",
			fmt.Sprintf("We have started working on your song for %s. You will get a preview when it is ready.", order.RecipientName)
	case models.KindCourse:
		return "Enrollment confirmed",
			fmt.Sprintf("Your enrollment in course %s is confirmed. Happy learning!", order.CourseID)
	default:
		return fmt.Sprintf("Order %s confirmed", order.ID),
			fmt.Sprintf("Thanks for your purchase! We will ship to %s, %s.", order.ShippingName, order.ShippingAddress)
	}
}

func operatorNotification(order *models.Order) string {
	return fmt.Sprintf("Order %s (%s) for %s is paid: %d %s, payment %s.",
		order.ID, order.Kind, order.OwnerEmail, order.AmountMinor, order.Currency, order.GatewayPaymentID)
}
