package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[int64]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context, _ product.ListFilter) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Create(_ context.Context, _ *product.Product) error {
	return nil
}

type mockOrderRepo struct {
	nextID    int64
	lastOrder *Order
	byID      map[int64]*Order
	createErr error

	failedIDs   []int64
	paidIDs     []int64
	seenEvent   map[string]bool
	staled      int64
	staleCutoff time.Time
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		nextID:    100,
		byID:      make(map[int64]*Order),
		seenEvent: make(map[string]bool),
	}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.lastOrder = o
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) ListForUser(_ context.Context, userID int64) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) GetForUser(_ context.Context, userID, id int64) (*Order, error) {
	o, ok := m.byID[id]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) DeleteForUser(_ context.Context, userID, id int64) error {
	o, ok := m.byID[id]
	if !ok || o.UserID != userID {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, orderID int64, eventID string) (bool, error) {
	if m.seenEvent[eventID] {
		return false, nil
	}
	o, ok := m.byID[orderID]
	if !ok || o.Status != StatusPending {
		return false, errors.Wrapf(ErrNotPending, "order %d", orderID)
	}
	m.seenEvent[eventID] = true
	m.paidIDs = append(m.paidIDs, orderID)
	o.Status = StatusPaid
	return true, nil
}

func (m *mockOrderRepo) MarkFailed(_ context.Context, orderID int64) error {
	m.failedIDs = append(m.failedIDs, orderID)
	if o, ok := m.byID[orderID]; ok && o.Status == StatusPending {
		o.Status = StatusFailed
	}
	return nil
}

func (m *mockOrderRepo) FailStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.staleCutoff = cutoff
	return m.staled, nil
}

type mockProvider struct {
	sessionReq *payment.SessionRequest
	sessionErr error

	intentReq *payment.IntentRequest
	intentErr error

	intents   map[string]*payment.Intent
	cancelled []string
}

func (m *mockProvider) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.sessionReq = &req
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return &payment.Session{
		ID:  "cs_test_1",
		URL: fmt.Sprintf("https://checkout.example.com/pay/cs_test_%d", req.OrderID),
	}, nil
}

func (m *mockProvider) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	m.intentReq = &req
	if m.intentErr != nil {
		return nil, m.intentErr
	}
	return &payment.Intent{
		ID:           "pi_test_1",
		ClientSecret: "pi_test_1_secret",
		Status:       "requires_payment_method",
		OrderID:      req.OrderID,
		UserID:       req.UserID,
	}, nil
}

func (m *mockProvider) GetIntent(_ context.Context, id string) (*payment.Intent, error) {
	intent, ok := m.intents[id]
	if !ok {
		return nil, payment.ErrProvider
	}
	return intent, nil
}

func (m *mockProvider) CancelIntent(_ context.Context, id string) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}

type mockMailer struct {
	mu   sync.Mutex
	to   []string
	errs error
}

func (m *mockMailer) SendOrderConfirmation(_ context.Context, to, _ string, _ *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	return m.errs
}

func (m *mockMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.to...)
}

// --- Helpers ---

func newTestProduct(id int64, name string, price string) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "test",
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func newTestService(products *mockProductRepo, orders *mockOrderRepo, provider *mockProvider, mailer *mockMailer) *Service {
	return NewService(products, orders, provider, mailer, "https://shop.example.com", zap.NewNop())
}

func testUser() *user.User {
	return &user.User{ID: 7, Email: "buyer@example.com", Name: "Buyer"}
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// --- Checkout ---

func TestCheckout_EmptyItems(t *testing.T) {
	svc := newTestService(newProductRepo(), newOrderRepo(), &mockProvider{}, &mockMailer{})

	_, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct(1, "Widget", "10.00")
	svc := newTestService(newProductRepo(p1), newOrderRepo(), &mockProvider{}, &mockMailer{})

	_, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: 1, Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(1), iqErr.ProductID)
}

func TestCheckout_ProductNotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), newOrderRepo(), &mockProvider{}, &mockMailer{})

	_, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: 42, Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, int64(42), pnfErr.ProductID)
}

func TestCheckout_TotalMismatch(t *testing.T) {
	p1 := newTestProduct(1, "Widget", "19.99")
	orders := newOrderRepo()
	svc := newTestService(newProductRepo(p1), orders, &mockProvider{}, &mockMailer{})

	_, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: 1, Quantity: 2}},
		Total: decimalPtr("10.00"),
	})

	require.ErrorIs(t, err, ErrTotalMismatch)
	assert.Nil(t, orders.lastOrder, "no order should be created on mismatch")
}

func TestCheckout_Success(t *testing.T) {
	p1 := newTestProduct(1, "Widget", "19.99")
	p2 := newTestProduct(2, "Gadget", "5.00")
	orders := newOrderRepo()
	provider := &mockProvider{}
	mailer := &mockMailer{}
	svc := newTestService(newProductRepo(p1, p2), orders, provider, mailer)

	result, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)

	// Server-side total: 2*19.99 + 5.00.
	assert.True(t, decimal.RequireFromString("44.98").Equal(result.Order.TotalAmount))
	assert.Equal(t, StatusPending, result.Order.Status)
	assert.Equal(t, "https://checkout.example.com/pay/cs_test_101", result.PaymentURL)

	// Unit prices are snapshotted from the catalog.
	require.Len(t, result.Order.Items, 2)
	assert.True(t, decimal.RequireFromString("19.99").Equal(result.Order.Items[0].UnitPrice))

	// Session request carries the order context and redirect URLs.
	require.NotNil(t, provider.sessionReq)
	assert.Equal(t, result.Order.ID, provider.sessionReq.OrderID)
	assert.Equal(t, int64(7), provider.sessionReq.UserID)
	assert.Equal(t, fmt.Sprintf("Order #%d", result.Order.ID), provider.sessionReq.Description)
	assert.Equal(t, fmt.Sprintf("https://shop.example.com/orders/%d?success=true", result.Order.ID), provider.sessionReq.SuccessURL)
	assert.Equal(t, fmt.Sprintf("https://shop.example.com/orders/%d?success=false", result.Order.ID), provider.sessionReq.CancelURL)

	// Confirmation mail goes to the order owner, asynchronously.
	require.Eventually(t, func() bool {
		return len(mailer.recipients()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"buyer@example.com"}, mailer.recipients())
}

func TestCheckout_MatchingClientTotal(t *testing.T) {
	p1 := newTestProduct(1, "Widget", "19.99")
	svc := newTestService(newProductRepo(p1), newOrderRepo(), &mockProvider{}, &mockMailer{})

	result, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: 1, Quantity: 2}},
		Total: decimalPtr("39.98"),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("39.98").Equal(result.Order.TotalAmount))
}

func TestCheckout_ProviderFailure(t *testing.T) {
	p1 := newTestProduct(1, "Widget", "10.00")
	orders := newOrderRepo()
	provider := &mockProvider{sessionErr: errors.Wrap(payment.ErrProvider, "boom")}
	mailer := &mockMailer{}
	svc := newTestService(newProductRepo(p1), orders, provider, mailer)

	_, err := svc.Checkout(context.Background(), testUser(), CheckoutRequest{
		Items: []CheckoutItem{{ProductID: 1, Quantity: 1}},
	})

	require.ErrorIs(t, err, payment.ErrProvider)
	// The pending order is compensated to failed and no mail is sent.
	require.NotNil(t, orders.lastOrder)
	assert.Equal(t, []int64{orders.lastOrder.ID}, orders.failedIDs)
	assert.Empty(t, mailer.recipients())
}

// --- InitiatePayment ---

func TestInitiatePayment_Success(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.RequireFromString("25.50"), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	provider := &mockProvider{}
	svc := newTestService(newProductRepo(), orders, provider, &mockMailer{})

	intent, err := svc.InitiatePayment(context.Background(), testUser(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1", intent.ID)
	assert.NotEmpty(t, intent.ClientSecret)

	require.NotNil(t, provider.intentReq)
	assert.Equal(t, fmt.Sprintf("order-%d-intent", o.ID), provider.intentReq.IdempotencyKey)
	assert.True(t, decimal.RequireFromString("25.50").Equal(provider.intentReq.Amount))
}

func TestInitiatePayment_NotPending(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))
	o.Status = StatusPaid

	provider := &mockProvider{}
	svc := newTestService(newProductRepo(), orders, provider, &mockMailer{})

	_, err := svc.InitiatePayment(context.Background(), testUser(), o.ID)
	require.ErrorIs(t, err, ErrNotPending)
	assert.Nil(t, provider.intentReq, "provider must not be called for non-pending orders")
}

func TestInitiatePayment_ForeignOrder(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 99, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	_, err := svc.InitiatePayment(context.Background(), testUser(), o.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

// --- CancelPayment ---

func TestCancelPayment_Success(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	provider := &mockProvider{intents: map[string]*payment.Intent{
		"pi_1": {ID: "pi_1", OrderID: o.ID, UserID: 7},
	}}
	svc := newTestService(newProductRepo(), orders, provider, &mockMailer{})

	err := svc.CancelPayment(context.Background(), testUser(), o.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_1"}, provider.cancelled)
}

func TestCancelPayment_ForeignIntent(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	// The intent belongs to another user's order.
	provider := &mockProvider{intents: map[string]*payment.Intent{
		"pi_other": {ID: "pi_other", OrderID: o.ID, UserID: 42},
	}}
	svc := newTestService(newProductRepo(), orders, provider, &mockMailer{})

	err := svc.CancelPayment(context.Background(), testUser(), o.ID, "pi_other")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, provider.cancelled, "foreign intents must not be cancelled")
}

// --- ApplyEvent ---

func TestApplyEvent_MarksPaid(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	err := svc.ApplyEvent(context.Background(), &payment.Event{
		ID:      "evt_1",
		Type:    payment.EventCheckoutCompleted,
		OrderID: o.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
}

func TestApplyEvent_DuplicateDelivery(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	ev := &payment.Event{ID: "evt_1", Type: payment.EventCheckoutCompleted, OrderID: o.ID}
	require.NoError(t, svc.ApplyEvent(context.Background(), ev))
	require.NoError(t, svc.ApplyEvent(context.Background(), ev))

	assert.Equal(t, []int64{o.ID}, orders.paidIDs, "second delivery must be a no-op")
}

func TestApplyEvent_IgnoresOtherTypes(t *testing.T) {
	orders := newOrderRepo()
	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	err := svc.ApplyEvent(context.Background(), &payment.Event{
		ID:   "evt_2",
		Type: "payment_intent.created",
	})
	require.NoError(t, err)
	assert.Empty(t, orders.paidIDs)
}

func TestApplyEvent_MissingOrderMetadata(t *testing.T) {
	svc := newTestService(newProductRepo(), newOrderRepo(), &mockProvider{}, &mockMailer{})

	err := svc.ApplyEvent(context.Background(), &payment.Event{
		ID:   "evt_3",
		Type: payment.EventCheckoutCompleted,
	})
	require.Error(t, err)
}

func TestApplyEvent_OrderNoLongerPending(t *testing.T) {
	orders := newOrderRepo()
	o := &Order{UserID: 7, TotalAmount: decimal.NewFromInt(10), Status: StatusPending}
	require.NoError(t, orders.Create(context.Background(), o))

	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	// The stale-order sweeper fails the order before its event arrives.
	require.NoError(t, orders.MarkFailed(context.Background(), o.ID))

	ev := &payment.Event{ID: "evt_late", Type: payment.EventCheckoutCompleted, OrderID: o.ID}
	err := svc.ApplyEvent(context.Background(), ev)
	require.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Empty(t, orders.paidIDs)

	// The event was not swallowed: a redelivery hits the same error instead
	// of being treated as a processed duplicate.
	err = svc.ApplyEvent(context.Background(), ev)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestApplyEvent_UnknownOrder(t *testing.T) {
	svc := newTestService(newProductRepo(), newOrderRepo(), &mockProvider{}, &mockMailer{})

	err := svc.ApplyEvent(context.Background(), &payment.Event{
		ID:      "evt_ghost",
		Type:    payment.EventCheckoutCompleted,
		OrderID: 12345,
	})
	require.ErrorIs(t, err, ErrNotPending)
}

// --- FailStalePending ---

func TestFailStalePending(t *testing.T) {
	orders := newOrderRepo()
	orders.staled = 3
	svc := newTestService(newProductRepo(), orders, &mockProvider{}, &mockMailer{})

	ttl := 24 * time.Hour
	before := time.Now()

	n, err := svc.FailStalePending(context.Background(), ttl)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.WithinDuration(t, before.Add(-ttl), orders.staleCutoff, time.Second)
}
