package order_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"aaroh-orders/internal/config"
	"aaroh-orders/internal/logger"
	"aaroh-orders/internal/models"
	"aaroh-orders/internal/order"
	"aaroh-orders/internal/payment/storage"
	"aaroh-orders/internal/signature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testSecret = "test_secret_key"

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockDBLayer) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) GetOrdersByOwner(ctx context.Context, ownerEmail string) ([]models.Order, error) {
	args := m.Called(ctx, ownerEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockDBLayer) UpdateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockDBLayer) ApplyPaidTransition(ctx context.Context, orderID, paymentID string, target models.OrderStatus, history []string) (*models.Order, bool, error) {
	args := m.Called(ctx, orderID, paymentID, target, history)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Order), args.Bool(1), args.Error(2)
}

func (m *MockDBLayer) ClearCart(ctx context.Context, ownerEmail string) error {
	args := m.Called(ctx, ownerEmail)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	args := m.Called(ctx, amountMinor, currency, receipt)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) Raise(kind models.AlertKind, alert models.SecurityAlert) {
	m.Called(kind, alert)
}

type MockAttemptLog struct {
	mock.Mock
}

func (m *MockAttemptLog) RecordAttempt(attempt *storage.Attempt) error {
	args := m.Called(attempt)
	return args.Error(0)
}

func newTestService(db *MockDBLayer, gw *MockGateway, notifier *MockNotifier, monitor *MockMonitor) *order.OrderService {
	var n order.Notifier
	if notifier != nil {
		n = notifier
	}
	return order.NewOrderService(db, gw, nil, nil, n, monitor, nil, order.Settings{
		SignatureSecret:      testSecret,
		Currency:             "INR",
		OperatorEmail:        "ops@example.com",
		SongUnlockFeeMinor:   49900,
		SongStandardFeeMinor: 149900,
		SongExpressFeeMinor:  249900,
		Topics: config.TopicConfig{
			OrderCreated:     "order-created",
			PaymentConfirmed: "payment-confirmed",
			PaymentFailed:    "payment-failed",
			SecurityAlerts:   "security-alerts",
		},
	}, logger.NewLogger())
}

func shopRequest() models.ShopOrderRequest {
	return models.ShopOrderRequest{
		Items: []models.OrderItem{
			{ProductID: "prod-1", Title: "Mug", Quantity: 2, UnitMinor: 29900},
			{ProductID: "prod-2", Title: "Poster", Quantity: 1, UnitMinor: 49900},
		},
		ShippingName:    "Asha Rao",
		ShippingAddress: "12 MG Road, Bengaluru",
		ShippingPhone:   "+919800000000",
		PaymentMethod:   models.PaymentOnline,
	}
}

// ---------------- CREATION ----------------

func TestPlaceShopOrderOnline(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	monitor := new(MockMonitor)
	svc := newTestService(db, gw, nil, monitor)

	db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	gw.On("CreateRemoteOrder", mock.Anything, int64(109700), "INR", mock.Anything).Return("order_rzp1", nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.PlaceShopOrder(context.Background(), "asha@example.com", "", shopRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.KindShop, o.Kind)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, int64(109700), o.AmountMinor)
	assert.Equal(t, "order_rzp1", o.GatewayOrderID)
	db.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPlaceShopOrderCODConfirmsImmediately(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	notifier := new(MockNotifier)
	monitor := new(MockMonitor)
	svc := newTestService(db, gw, notifier, monitor)

	req := shopRequest()
	req.PaymentMethod = models.PaymentCOD

	db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	db.On("ClearCart", mock.Anything, "asha@example.com").Return(nil)
	notifier.On("Send", "asha@example.com", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Send", "ops@example.com", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.PlaceShopOrder(context.Background(), "asha@example.com", "", req)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	assert.Empty(t, o.GatewayOrderID)
	gw.AssertNotCalled(t, "CreateRemoteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestPlaceShopOrderValidation(t *testing.T) {
	svc := newTestService(new(MockDBLayer), new(MockGateway), nil, new(MockMonitor))

	_, err := svc.PlaceShopOrder(context.Background(), "asha@example.com", "", models.ShopOrderRequest{})
	assert.True(t, order.IsCode(err, order.CodeValidation))

	req := shopRequest()
	req.Items[0].Quantity = 0
	_, err = svc.PlaceShopOrder(context.Background(), "asha@example.com", "", req)
	assert.True(t, order.IsCode(err, order.CodeValidation))

	req = shopRequest()
	req.ShippingPhone = ""
	_, err = svc.PlaceShopOrder(context.Background(), "asha@example.com", "", req)
	assert.True(t, order.IsCode(err, order.CodeValidation))

	req = shopRequest()
	req.PaymentMethod = "bitcoin"
	_, err = svc.PlaceShopOrder(context.Background(), "asha@example.com", "", req)
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestPlaceShopOrderGatewayFailureLeavesPending(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	svc := newTestService(db, gw, nil, new(MockMonitor))

	db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	gw.On("CreateRemoteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("gateway down"))

	o, err := svc.PlaceShopOrder(context.Background(), "asha@example.com", "", shopRequest())

	assert.True(t, order.IsCode(err, order.CodeGateway))
	assert.NotNil(t, o)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Empty(t, o.GatewayOrderID)
	db.AssertNotCalled(t, "UpdateOrder", mock.Anything, mock.Anything)
}

func TestPlaceSongOrderPackagePricing(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	svc := newTestService(db, gw, nil, new(MockMonitor))

	db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)
	gw.On("CreateRemoteOrder", mock.Anything, int64(149900), "INR", mock.Anything).Return("order_std", nil).Once()
	gw.On("CreateRemoteOrder", mock.Anything, int64(249900), "INR", mock.Anything).Return("order_exp", nil).Once()

	req := models.SongOrderRequest{
		RecipientName:   "Ravi",
		Occasion:        "anniversary",
		Style:           "acoustic",
		Mood:            "romantic",
		DeadlinePackage: models.DeadlineStandard,
	}
	o, err := svc.PlaceSongOrder(context.Background(), "asha@example.com", "", req)
	assert.NoError(t, err)
	assert.Equal(t, int64(149900), o.AmountMinor)
	assert.Equal(t, models.KindCustomSong, o.Kind)

	req.DeadlinePackage = models.DeadlineExpress
	o, err = svc.PlaceSongOrder(context.Background(), "asha@example.com", "", req)
	assert.NoError(t, err)
	assert.Equal(t, int64(249900), o.AmountMinor)

	req.DeadlinePackage = "overnight"
	_, err = svc.PlaceSongOrder(context.Background(), "asha@example.com", "", req)
	assert.True(t, order.IsCode(err, order.CodeValidation))

	req.DeadlinePackage = models.DeadlineStandard
	req.RecipientName = ""
	_, err = svc.PlaceSongOrder(context.Background(), "asha@example.com", "", req)
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestPlaceEnrollment(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	svc := newTestService(db, gw, nil, new(MockMonitor))

	db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)
	gw.On("CreateRemoteOrder", mock.Anything, int64(99900), "INR", mock.Anything).Return("order_crs", nil)

	o, err := svc.PlaceEnrollment(context.Background(), "asha@example.com", "", models.EnrollmentRequest{
		CourseID:    "course-42",
		AmountMinor: 99900,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.KindCourse, o.Kind)
	assert.Equal(t, "course-42", o.CourseID)
	assert.Equal(t, "order_crs", o.GatewayOrderID)

	_, err = svc.PlaceEnrollment(context.Background(), "asha@example.com", "", models.EnrollmentRequest{CourseID: ""})
	assert.True(t, order.IsCode(err, order.CodeValidation))

	_, err = svc.PlaceEnrollment(context.Background(), "asha@example.com", "", models.EnrollmentRequest{CourseID: "c", AmountMinor: -5})
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

// ---------------- VERIFICATION ----------------

func pendingShopOrder() *models.Order {
	return &models.Order{
		ID:             "order-1",
		Kind:           models.KindShop,
		OwnerEmail:     "asha@example.com",
		AmountMinor:    109700,
		Currency:       "INR",
		Status:         models.StatusPending,
		PaymentMethod:  models.PaymentOnline,
		GatewayOrderID: "order_rzp1",
	}
}

func verification(gatewayOrderID, paymentID string) models.VerificationRequest {
	return models.VerificationRequest{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        signature.Compute(gatewayOrderID, paymentID, testSecret),
	}
}

func TestVerifyPaymentHappyPath(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	stored := pendingShopOrder()
	confirmed := *stored
	confirmed.Status = models.StatusConfirmed
	confirmed.GatewayPaymentID = "pay_1"

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	db.On("ApplyPaidTransition", mock.Anything, "order-1", "pay_1", models.StatusConfirmed, []string(nil)).
		Return(&confirmed, true, nil)
	db.On("ClearCart", mock.Anything, "asha@example.com").Return(nil)

	o, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_1"))

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	assert.Equal(t, "pay_1", o.GatewayPaymentID)
	monitor.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
	db.AssertExpectations(t)
}

func TestVerifyPaymentNotFound(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "missing", verification("order_x", "pay_x"))
	assert.True(t, order.IsCode(err, order.CodeNotFound))
}

func TestVerifyPaymentOwnershipMismatchRaisesAlert(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)
	monitor.On("Raise", models.AlertUnauthorizedClaim, mock.Anything).Return()

	_, err := svc.VerifyPayment(context.Background(), "mallory@example.com", "order-1", verification("order_rzp1", "pay_1"))

	assert.True(t, order.IsCode(err, order.CodeAuthorization))
	monitor.AssertExpectations(t)
	db.AssertNotCalled(t, "ApplyPaidTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentIdempotentReplay(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	stored := pendingShopOrder()
	stored.Status = models.StatusConfirmed
	stored.GatewayPaymentID = "pay_1"

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)

	o, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_1"))

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	db.AssertNotCalled(t, "ApplyPaidTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	monitor.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
}

func TestVerifyPaymentGatewayOrderMismatch(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_other", "pay_1"))

	assert.True(t, order.IsCode(err, order.CodeOrderIDMismatch))
	// A stale order id is a client bug, not an attack.
	monitor.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "ApplyPaidTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPaymentBadSignatureFailsOrder(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)
	db.On("UpdateOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.Status == models.StatusFailed
	})).Return(nil)
	monitor.On("Raise", models.AlertInvalidSignature, mock.Anything).Return()

	req := verification("order_rzp1", "pay_1")
	req.Signature = "deadbeef"

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", req)

	assert.True(t, order.IsCode(err, order.CodeSignature))
	db.AssertExpectations(t)
	monitor.AssertExpectations(t)
}

func TestVerifyPaymentBadSignatureOnTerminalOrderDoesNotFailIt(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	stored := pendingShopOrder()
	stored.Status = models.StatusConfirmed
	stored.GatewayPaymentID = "pay_1"

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	monitor.On("Raise", models.AlertInvalidSignature, mock.Anything).Return()

	req := verification("order_rzp1", "pay_2")
	req.Signature = "deadbeef"

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", req)

	assert.True(t, order.IsCode(err, order.CodeSignature))
	// A paid order must never be knocked into failed by a bad repayment.
	db.AssertNotCalled(t, "UpdateOrder", mock.Anything, mock.Anything)
}

func TestVerifyPaymentRepaymentKeepsStatusAndRecordsHistory(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	stored := pendingShopOrder()
	stored.Status = models.StatusConfirmed
	stored.GatewayPaymentID = "pay_1"

	updated := *stored
	updated.GatewayPaymentID = "pay_2"
	updated.OrderIDHistory = []string{"order_rzp1"}

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	db.On("ApplyPaidTransition", mock.Anything, "order-1", "pay_2", models.StatusConfirmed, []string{"order_rzp1"}).
		Return(&updated, true, nil)
	db.On("ClearCart", mock.Anything, "asha@example.com").Return(nil)

	o, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_2"))

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	assert.Equal(t, []string{"order_rzp1"}, o.OrderIDHistory)
	monitor.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
	db.AssertExpectations(t)
}

func TestVerifyPaymentInvalidState(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	stored := pendingShopOrder()
	stored.Status = models.StatusCancelled

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_1"))
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestVerifyPaymentConcurrentLoserTreatedAsReplay(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	stored := pendingShopOrder()
	confirmed := *stored
	confirmed.Status = models.StatusConfirmed
	confirmed.GatewayPaymentID = "pay_1"

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	db.On("ApplyPaidTransition", mock.Anything, "order-1", "pay_1", models.StatusConfirmed, []string(nil)).
		Return(&confirmed, false, nil)

	o, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_1"))

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, o.Status)
	// The loser must not rerun side effects.
	db.AssertNotCalled(t, "ClearCart", mock.Anything, mock.Anything)
}

func TestVerifyPaymentTransactionFailureIsCritical(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)
	db.On("ApplyPaidTransition", mock.Anything, "order-1", "pay_1", models.StatusConfirmed, []string(nil)).
		Return(nil, false, errors.New("deadlock detected"))
	monitor.On("Raise", models.AlertCriticalFailure, mock.Anything).Return()

	_, err := svc.VerifyPayment(context.Background(), "asha@example.com", "order-1", verification("order_rzp1", "pay_1"))

	assert.True(t, order.IsCode(err, order.CodeCritical))
	monitor.AssertExpectations(t)
}

func TestVerifyPaymentSongUnlock(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	stored := &models.Order{
		ID:               "song-1",
		Kind:             models.KindCustomSong,
		OwnerEmail:       "asha@example.com",
		AmountMinor:      149900,
		Currency:         "INR",
		Status:           models.StatusReady,
		PaymentMethod:    models.PaymentOnline,
		GatewayOrderID:   "order_unlock",
		GatewayPaymentID: "pay_advance",
		OrderIDHistory:   []string{"order_advance"},
		AwaitingPayment:  true,
		PreviewURL:       "https://cdn.example.com/preview.mp3",
		FullAudioURL:     "https://cdn.example.com/full.mp3",
	}
	completed := *stored
	completed.Status = models.StatusCompleted
	completed.GatewayPaymentID = "pay_unlock"
	completed.AwaitingPayment = false

	db.On("GetOrderByID", mock.Anything, "song-1").Return(stored, nil)
	db.On("ApplyPaidTransition", mock.Anything, "song-1", "pay_unlock", models.StatusCompleted, []string(nil)).
		Return(&completed, true, nil)

	o, err := svc.VerifyPayment(context.Background(), "asha@example.com", "song-1", verification("order_unlock", "pay_unlock"))

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, o.Status)
	assert.False(t, o.AwaitingPayment)
	db.AssertNotCalled(t, "ClearCart", mock.Anything, mock.Anything)
}

// ---------------- CANCELLATION & FULFILMENT ----------------

func TestCancelOrderByOwner(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	stored := pendingShopOrder()
	stored.Status = models.StatusConfirmed

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	db.On("UpdateOrder", mock.Anything, mock.MatchedBy(func(o *models.Order) bool {
		return o.Status == models.StatusCancelled
	})).Return(nil)

	o, err := svc.CancelOrder(context.Background(), "asha@example.com", "order-1", false)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
}

func TestCancelOrderByOwnerRequiresConfirmed(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)

	_, err := svc.CancelOrder(context.Background(), "asha@example.com", "order-1", false)
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestCancelOrderByStrangerRaisesAlert(t *testing.T) {
	db := new(MockDBLayer)
	monitor := new(MockMonitor)
	svc := newTestService(db, new(MockGateway), nil, monitor)

	stored := pendingShopOrder()
	stored.Status = models.StatusConfirmed

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)
	monitor.On("Raise", models.AlertUnauthorizedClaim, mock.Anything).Return()

	_, err := svc.CancelOrder(context.Background(), "mallory@example.com", "order-1", false)
	assert.True(t, order.IsCode(err, order.CodeAuthorization))
	monitor.AssertExpectations(t)
}

func TestAdminCancelFromPending(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.CancelOrder(context.Background(), "admin@example.com", "order-1", true)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
}

func TestCancelShippedOrderRejected(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	stored := pendingShopOrder()
	stored.Status = models.StatusShipped

	db.On("GetOrderByID", mock.Anything, "order-1").Return(stored, nil)

	_, err := svc.CancelOrder(context.Background(), "admin@example.com", "order-1", true)
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestMarkShippedAndDelivered(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	confirmed := pendingShopOrder()
	confirmed.Status = models.StatusConfirmed
	db.On("GetOrderByID", mock.Anything, "order-1").Return(confirmed, nil).Once()
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.MarkShipped(context.Background(), "order-1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusShipped, o.Status)

	shipped := pendingShopOrder()
	shipped.Status = models.StatusShipped
	db.On("GetOrderByID", mock.Anything, "order-1").Return(shipped, nil).Once()

	o, err = svc.MarkDelivered(context.Background(), "order-1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, o.Status)
}

func TestMarkShippedRequiresConfirmed(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)

	_, err := svc.MarkShipped(context.Background(), "order-1")
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

func TestMarkShippedRejectsOtherKinds(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	song := &models.Order{ID: "song-1", Kind: models.KindCustomSong, Status: models.StatusInProgress}
	db.On("GetOrderByID", mock.Anything, "song-1").Return(song, nil)

	_, err := svc.MarkShipped(context.Background(), "song-1")
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

// ---------------- CUSTOM SONG FULFILMENT ----------------

func inProgressSong() *models.Order {
	return &models.Order{
		ID:               "song-1",
		Kind:             models.KindCustomSong,
		OwnerEmail:       "asha@example.com",
		AmountMinor:      149900,
		Currency:         "INR",
		Status:           models.StatusInProgress,
		PaymentMethod:    models.PaymentOnline,
		GatewayOrderID:   "order_advance",
		GatewayPaymentID: "pay_advance",
		RecipientName:    "Ravi",
		Occasion:         "anniversary",
		DeadlinePackage:  models.DeadlineStandard,
	}
}

func TestMarkSongReadyMintsUnlockOrder(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	notifier := new(MockNotifier)
	svc := newTestService(db, gw, notifier, new(MockMonitor))

	song := inProgressSong()
	song.PreviewURL = "https://cdn.example.com/preview.mp3"

	db.On("GetOrderByID", mock.Anything, "song-1").Return(song, nil)
	gw.On("CreateRemoteOrder", mock.Anything, int64(49900), "INR", mock.Anything).Return("order_unlock", nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Send", "asha@example.com", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.MarkSongReady(context.Background(), "song-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusReady, o.Status)
	assert.True(t, o.AwaitingPayment)
	assert.Equal(t, "order_unlock", o.GatewayOrderID)
	assert.Equal(t, []string{"order_advance"}, o.OrderIDHistory)
	// The unlock fee is a separate charge; the order amount stays the advance.
	assert.Equal(t, int64(149900), o.AmountMinor)
	gw.AssertExpectations(t)
}

func TestMarkSongReadyRequiresPreview(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	svc := newTestService(db, gw, nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "song-1").Return(inProgressSong(), nil)

	_, err := svc.MarkSongReady(context.Background(), "song-1")
	assert.True(t, order.IsCode(err, order.CodeValidation))
	gw.AssertNotCalled(t, "CreateRemoteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkSongReadyGatewayFailureKeepsInProgress(t *testing.T) {
	db := new(MockDBLayer)
	gw := new(MockGateway)
	svc := newTestService(db, gw, nil, new(MockMonitor))

	song := inProgressSong()
	song.PreviewURL = "https://cdn.example.com/preview.mp3"

	db.On("GetOrderByID", mock.Anything, "song-1").Return(song, nil)
	gw.On("CreateRemoteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("gateway down"))

	_, err := svc.MarkSongReady(context.Background(), "song-1")
	assert.True(t, order.IsCode(err, order.CodeGateway))
	db.AssertNotCalled(t, "UpdateOrder", mock.Anything, mock.Anything)
}

func TestUpdateSongAssets(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	song := inProgressSong()
	db.On("GetOrderByID", mock.Anything, "song-1").Return(song, nil)
	db.On("UpdateOrder", mock.Anything, mock.Anything).Return(nil)

	o, err := svc.UpdateSongAssets(context.Background(), "song-1",
		"https://cdn.example.com/poster.png", "https://cdn.example.com/preview.mp3", "")

	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/poster.png", o.PosterURL)
	assert.Equal(t, "https://cdn.example.com/preview.mp3", o.PreviewURL)
	assert.Empty(t, o.FullAudioURL)
}

func TestUpdateSongAssetsRejectsOtherKinds(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)

	_, err := svc.UpdateSongAssets(context.Background(), "order-1", "", "x", "")
	assert.True(t, order.IsCode(err, order.CodeValidation))
}

// ---------------- QUERIES ----------------

func TestGetOrderOwnership(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrderByID", mock.Anything, "order-1").Return(pendingShopOrder(), nil)

	o, err := svc.GetOrder(context.Background(), "asha@example.com", "order-1", false)
	assert.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)

	_, err = svc.GetOrder(context.Background(), "mallory@example.com", "order-1", false)
	assert.True(t, order.IsCode(err, order.CodeAuthorization))

	// Admins can read any order.
	o, err = svc.GetOrder(context.Background(), "admin@example.com", "order-1", true)
	assert.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)
}

func TestListOrders(t *testing.T) {
	db := new(MockDBLayer)
	svc := newTestService(db, new(MockGateway), nil, new(MockMonitor))

	db.On("GetOrdersByOwner", mock.Anything, "asha@example.com").
		Return([]models.Order{*pendingShopOrder()}, nil)

	orders, err := svc.ListOrders(context.Background(), "asha@example.com")
	assert.NoError(t, err)
	assert.Len(t, orders, 1)
}
