package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/store"
)

// mockTx records every write the orchestrator performs so tests can assert
// on the exact sequence of effects and whether they were committed.
type mockTx struct {
	books []models.Book

	createdOrder  *models.Order
	createdItems  []models.OrderItem
	decremented   []store.StockDelta
	restored      []store.StockDelta
	statusUpdates map[int64]string
	capturedRefs  map[int64]string

	committed  bool
	rolledBack bool

	lockErr      error
	decrementErr error
	restoreErr   error
	commitErr    error
}

func newMockTx(books []models.Book) *mockTx {
	return &mockTx{
		books:         books,
		statusUpdates: map[int64]string{},
		capturedRefs:  map[int64]string{},
	}
}

func (t *mockTx) CreateOrder(_ context.Context, order *models.Order) error {
	order.ID = 41
	t.createdOrder = order
	return nil
}

func (t *mockTx) LockBooks(_ context.Context, ids []int64) ([]models.Book, error) {
	if t.lockErr != nil {
		return nil, t.lockErr
	}
	out := make([]models.Book, 0, len(ids))
	for _, id := range ids {
		for _, b := range t.books {
			if b.ID == id {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (t *mockTx) CreateOrderItems(_ context.Context, items []models.OrderItem) error {
	t.createdItems = items
	return nil
}

func (t *mockTx) DecrementStock(_ context.Context, deltas []store.StockDelta) error {
	if t.decrementErr != nil {
		return t.decrementErr
	}
	t.decremented = deltas
	return nil
}

func (t *mockTx) RestoreStock(_ context.Context, bookID int64, quantity int) error {
	if t.restoreErr != nil {
		return t.restoreErr
	}
	t.restored = append(t.restored, store.StockDelta{BookID: bookID, Quantity: quantity})
	return nil
}

func (t *mockTx) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	t.statusUpdates[orderID] = status
	return nil
}

func (t *mockTx) SetPaymentCaptured(_ context.Context, orderID int64, paymentRef string) error {
	t.capturedRefs[orderID] = paymentRef
	t.statusUpdates[orderID] = models.OrderStatusProcessing
	return nil
}

func (t *mockTx) Commit() error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// mockOrderStore backs the orchestrator with in-memory fixtures.
type mockOrderStore struct {
	tx *mockTx

	orders    map[int64]*models.Order
	items     map[int64][]models.OrderItem
	addresses map[int64]*models.Address
	users     map[int64]*models.User
	books     []models.Book

	shippedCarrierID string
	shippedTracking  string
}

func newMockOrderStore(books []models.Book) *mockOrderStore {
	return &mockOrderStore{
		tx:        newMockTx(books),
		orders:    map[int64]*models.Order{},
		items:     map[int64][]models.OrderItem{},
		addresses: map[int64]*models.Address{},
		users:     map[int64]*models.User{},
		books:     books,
	}
}

func (s *mockOrderStore) Begin(context.Context) (OrderTx, error) {
	return s.tx, nil
}

func (s *mockOrderStore) GetOrderForUser(_ context.Context, orderID, userID int64) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok || !order.UserID.Valid || order.UserID.Int64 != userID {
		return nil, models.NewNotFoundError("Order not found.")
	}
	copied := *order
	return &copied, nil
}

func (s *mockOrderStore) ListOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	for _, order := range s.orders {
		if order.UserID.Valid && order.UserID.Int64 == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *mockOrderStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return s.items[orderID], nil
}

func (s *mockOrderStore) GetAddressForUser(_ context.Context, addressID, userID int64) (*models.Address, error) {
	address, ok := s.addresses[addressID]
	if !ok || address.UserID != userID {
		return nil, models.NewNotFoundError("Address not found.")
	}
	return address, nil
}

func (s *mockOrderStore) GetAddressByID(_ context.Context, addressID int64) (*models.Address, error) {
	address, ok := s.addresses[addressID]
	if !ok {
		return nil, models.NewNotFoundError("Address not found.")
	}
	return address, nil
}

func (s *mockOrderStore) GetBooksByIDs(_ context.Context, ids []int64) ([]models.Book, error) {
	out := make([]models.Book, 0, len(ids))
	for _, id := range ids {
		for _, b := range s.books {
			if b.ID == id {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (s *mockOrderStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User not found.")
	}
	return user, nil
}

func (s *mockOrderStore) SetShipmentInfo(_ context.Context, orderID int64, carrierOrderID, trackingCode string) error {
	s.shippedCarrierID = carrierOrderID
	s.shippedTracking = trackingCode
	return nil
}

type mockPayments struct {
	ref        string
	captureErr error
	refundErr  error

	capturedAmount decimal.Decimal
	capturedMethod string
	refunded       []string
}

func (p *mockPayments) Capture(_ context.Context, amount decimal.Decimal, paymentMethodID string) (string, error) {
	p.capturedAmount = amount
	p.capturedMethod = paymentMethodID
	if p.captureErr != nil {
		return "", p.captureErr
	}
	return p.ref, nil
}

func (p *mockPayments) Refund(_ context.Context, paymentRef string) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunded = append(p.refunded, paymentRef)
	return nil
}

type mockShipper struct {
	options  []shipping.Option
	quoteErr error

	result  *shipping.ShipmentResult
	shipErr error

	quotedItems []shipping.QuoteItem
	quotedZip   string
	shipmentReq shipping.ShipmentRequest
}

func (m *mockShipper) Quote(_ context.Context, items []shipping.QuoteItem, destinationZip string) ([]shipping.Option, error) {
	m.quotedItems = items
	m.quotedZip = destinationZip
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return m.options, nil
}

func (m *mockShipper) CreateShipment(_ context.Context, req shipping.ShipmentRequest) (*shipping.ShipmentResult, error) {
	m.shipmentReq = req
	if m.shipErr != nil {
		return nil, m.shipErr
	}
	return m.result, nil
}

type mockCartSessions struct {
	carts map[string]*cart.Cart
}

func newMockCartSessions() *mockCartSessions {
	return &mockCartSessions{carts: map[string]*cart.Cart{}}
}

func (m *mockCartSessions) get(sessionID string) *cart.Cart {
	c, ok := m.carts[sessionID]
	if !ok {
		c = cart.New()
		m.carts[sessionID] = c
	}
	return c
}

func (m *mockCartSessions) Get(_ context.Context, sessionID string) (*cart.Cart, error) {
	return m.get(sessionID), nil
}

func (m *mockCartSessions) AddItem(_ context.Context, sessionID, bookID string, e cart.Entry) (*cart.Cart, error) {
	c := m.get(sessionID)
	c.Upsert(bookID, e)
	return c, nil
}

func (m *mockCartSessions) RemoveItem(_ context.Context, sessionID, bookID string) (*cart.Cart, error) {
	c := m.get(sessionID)
	if !c.Remove(bookID) {
		return nil, models.NewNotFoundError("Book not found in cart.")
	}
	return c, nil
}

func (m *mockCartSessions) SelectShipping(_ context.Context, sessionID string, opt cart.ShippingOption) (*cart.Cart, error) {
	c := m.get(sessionID)
	c.ShippingOption = &opt
	return c, nil
}

func (m *mockCartSessions) Clear(_ context.Context, sessionID string) error {
	delete(m.carts, sessionID)
	return nil
}

type mockCatalog struct {
	books map[int64]*models.Book
}

func (m *mockCatalog) GetActiveBookByID(_ context.Context, id int64) (*models.Book, error) {
	book, ok := m.books[id]
	if !ok || !book.IsActive {
		return nil, models.NewNotFoundError("Book not found.")
	}
	return book, nil
}

var errBoom = errors.New("boom")
