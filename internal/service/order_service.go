package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/store"
	"bookstore-service/internal/util"
)

// OrderTx is one atomic unit of work over orders and stock. Implemented by
// store.Tx.
type OrderTx interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	LockBooks(ctx context.Context, ids []int64) ([]models.Book, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	DecrementStock(ctx context.Context, deltas []store.StockDelta) error
	RestoreStock(ctx context.Context, bookID int64, quantity int) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	SetPaymentCaptured(ctx context.Context, orderID int64, paymentRef string) error
	Commit() error
	Rollback() error
}

// OrderStore is the durable storage surface the orchestrator needs.
type OrderStore interface {
	Begin(ctx context.Context) (OrderTx, error)
	GetOrderForUser(ctx context.Context, orderID, userID int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetAddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error)
	GetAddressByID(ctx context.Context, addressID int64) (*models.Address, error)
	GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetShipmentInfo(ctx context.Context, orderID int64, carrierOrderID, trackingCode string) error
}

// sqlOrderStore adapts *store.Store to OrderStore; Begin narrows *store.Tx to
// the OrderTx interface.
type sqlOrderStore struct {
	*store.Store
}

func (s sqlOrderStore) Begin(ctx context.Context) (OrderTx, error) {
	return s.Store.Begin(ctx)
}

// PaymentGateway captures and refunds card payments. Implemented by
// payment.Client.
type PaymentGateway interface {
	Capture(ctx context.Context, amount decimal.Decimal, paymentMethodID string) (string, error)
	Refund(ctx context.Context, paymentRef string) error
}

// ShippingGateway quotes rates and commits shipments. Implemented by
// shipping.Client.
type ShippingGateway interface {
	Quote(ctx context.Context, items []shipping.QuoteItem, destinationZip string) ([]shipping.Option, error)
	CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (*shipping.ShipmentResult, error)
}

// OrderService is the checkout and order-lifecycle orchestrator. It turns a
// session cart into a durable order, coordinating stock, payment capture and
// shipment label generation.
type OrderService struct {
	store    OrderStore
	payments PaymentGateway
	shipper  ShippingGateway
	logger   *zap.Logger
}

// NewOrderService creates a new order service over the SQL store.
func NewOrderService(st *store.Store, payments PaymentGateway, shipper ShippingGateway) *OrderService {
	return &OrderService{
		store:    sqlOrderStore{st},
		payments: payments,
		shipper:  shipper,
		logger:   util.GetLogger(),
	}
}

// OrderDetail is an order with its items and, when still resolvable, its
// delivery address.
type OrderDetail struct {
	Order   models.Order
	Items   []models.OrderItem
	Address *models.Address
}

// CreateOrder runs the checkout protocol: validate the cart, decrement stock
// under row locks, capture payment, and persist the order with its item
// snapshots, all within a single transaction.
//
// Stock is decremented before the card is charged so a customer is never
// charged for an item that just sold out. The flip side is deliberate: when
// capture fails after the decrement, the transaction still commits with the
// order marked FAILED, leaving the reserved stock as an audit record rather
// than restoring it.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, c *cart.Cart, addressID int64, paymentMethodID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if c.ShippingOption == nil {
		util.OrdersFailedTotal.WithLabelValues("no_shipping_selected").Inc()
		return nil, models.NewDomainStateError(
			"No shipping method selected. Quote and select a shipping option first.")
	}
	if c.Empty() {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.NewDomainStateError("The cart is empty.")
	}

	address, err := s.store.GetAddressForUser(ctx, addressID, userID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          sql.NullInt64{Int64: userID, Valid: true},
		AddressID:       sql.NullInt64{Int64: address.ID, Valid: true},
		Status:          models.OrderStatusPendingPayment,
		TotalItemsPrice: c.TotalItemsPrice(),
		ShippingCost:    c.ShippingOption.Price,
		ShippingMethod:  c.ShippingOption.Name,
	}
	if c.ShippingOption.ServiceID != 0 {
		order.ShippingServiceID = sql.NullInt64{Int64: c.ShippingOption.ServiceID, Valid: true}
	}

	bookIDs, entries, err := cartBookIDs(c)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkout transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	books, err := tx.LockBooks(ctx, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock books: %w", err)
	}
	byID := make(map[int64]*models.Book, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}

	items := make([]models.OrderItem, 0, len(bookIDs))
	deltas := make([]store.StockDelta, 0, len(bookIDs))
	for _, id := range bookIDs {
		entry := entries[id]
		book, ok := byID[id]
		if !ok {
			return nil, models.NewNotFoundError("Book not found.")
		}
		if book.Stock < entry.Quantity {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, models.NewDomainStateError(
				fmt.Sprintf("Insufficient stock for %s", book.Title))
		}

		items = append(items, models.OrderItem{
			OrderID:           order.ID,
			BookID:            sql.NullInt64{Int64: id, Valid: true},
			BookTitleSnapshot: truncateTitle(entry.Title),
			Quantity:          entry.Quantity,
			PriceAtPurchase:   entry.Price,
		})
		deltas = append(deltas, store.StockDelta{BookID: id, Quantity: entry.Quantity})
	}

	if err := tx.CreateOrderItems(ctx, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}
	if err := tx.DecrementStock(ctx, deltas); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	paymentRef, payErr := s.payments.Capture(ctx, order.FinalTotal(), paymentMethodID)
	if payErr != nil {
		// The decrements and the order row survive as an audit record of the
		// failed attempt; only the status changes.
		if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusFailed); err != nil {
			return nil, fmt.Errorf("failed to mark order failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to persist failed order: %w", err)
		}

		util.OrdersFailedTotal.WithLabelValues("payment").Inc()
		s.logger.Warn("Payment capture failed",
			zap.Int64("order_id", order.ID),
			zap.Error(payErr))
		return nil, payErr
	}

	if err := tx.SetPaymentCaptured(ctx, order.ID, paymentRef); err != nil {
		s.logger.Error("Captured payment could not be recorded",
			zap.Int64("order_id", order.ID),
			zap.String("payment_ref", paymentRef),
			zap.Error(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Checkout commit failed after capture",
			zap.Int64("order_id", order.ID),
			zap.String("payment_ref", paymentRef),
			zap.Error(err))
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	order.Status = models.OrderStatusProcessing
	order.PaymentReferenceID = sql.NullString{String: paymentRef, Valid: true}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("payment_ref", paymentRef))
	return order, nil
}

// CancelOrder refunds a paid order, restores its stock and marks it CANCELED,
// all-or-nothing: a failed refund rolls the stock restoration back and leaves
// the status untouched.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if !order.PaymentReferenceID.Valid {
		return nil, models.NewDomainStateError("This order has no payment reference to refund.")
	}
	if order.Status != models.OrderStatusProcessing {
		return nil, models.NewDomainStateError(
			fmt.Sprintf("Order cannot be canceled in status %s.", order.Status))
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open cancellation transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if !item.BookID.Valid {
			// Book removed from the catalog since purchase; nothing to restore.
			continue
		}
		if err := tx.RestoreStock(ctx, item.BookID.Int64, item.Quantity); err != nil {
			return nil, err
		}
	}

	if err := s.payments.Refund(ctx, order.PaymentReferenceID.String); err != nil {
		s.logger.Error("Refund failed, cancellation aborted",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderStatusCanceled); err != nil {
		return nil, fmt.Errorf("failed to mark order canceled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("Cancellation commit failed after refund",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	order.Status = models.OrderStatusCanceled

	util.OrdersCanceledTotal.Inc()
	s.logger.Info("Order canceled and refunded", zap.Int64("order_id", orderID))
	return order, nil
}

// QuoteShipping asks the carrier for rate options covering the session cart,
// delivered to one of the caller's addresses.
func (s *OrderService) QuoteShipping(ctx context.Context, userID int64, c *cart.Cart, addressID int64) ([]shipping.Option, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.QuoteShipping")
	defer span.End()

	if c.Empty() {
		return nil, models.NewDomainStateError("The cart is empty.")
	}

	address, err := s.store.GetAddressForUser(ctx, addressID, userID)
	if err != nil {
		return nil, err
	}

	bookIDs, entries, err := cartBookIDs(c)
	if err != nil {
		return nil, err
	}

	// Books gone from the catalog since they were added, and books without a
	// recorded weight, contribute nothing to the package weight.
	books, err := s.store.GetBooksByIDs(ctx, bookIDs)
	if err != nil {
		return nil, err
	}

	quoteItems := make([]shipping.QuoteItem, 0, len(books))
	for _, book := range books {
		quoteItems = append(quoteItems, shipping.QuoteItem{
			WeightG:  book.WeightG.Decimal,
			Quantity: entries[book.ID].Quantity,
		})
	}

	return s.shipper.Quote(ctx, quoteItems, address.ZipCode)
}

// ShipOrder commits the order's shipment with the carrier and records the
// resulting carrier order id and tracking code, moving the order to SHIPPED.
// Only the order's owner may trigger it, and only while the order is paid and
// awaiting dispatch; committing a shipment is a one-time external side effect.
func (s *OrderService) ShipOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ShipOrder")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusProcessing {
		return nil, models.NewDomainStateError(
			fmt.Sprintf("Order cannot be shipped in status %s.", order.Status))
	}
	if !order.ShippingServiceID.Valid {
		return nil, models.NewDomainStateError("The order has no selected shipping service.")
	}
	if !order.UserID.Valid || !order.AddressID.Valid {
		return nil, models.NewDomainStateError("The order no longer has a user or delivery address.")
	}

	user, err := s.store.GetUserByID(ctx, order.UserID.Int64)
	if err != nil {
		return nil, err
	}
	address, err := s.store.GetAddressByID(ctx, order.AddressID.Int64)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	bookIDs := make([]int64, 0, len(items))
	for _, item := range items {
		if item.BookID.Valid {
			bookIDs = append(bookIDs, item.BookID.Int64)
		}
	}
	books, err := s.store.GetBooksByIDs(ctx, bookIDs)
	if err != nil {
		return nil, err
	}
	weightByBook := make(map[int64]decimal.Decimal, len(books))
	for _, book := range books {
		weightByBook[book.ID] = book.WeightG.Decimal
	}

	quoteItems := make([]shipping.QuoteItem, 0, len(items))
	shipmentItems := make([]shipping.ShipmentItem, 0, len(items))
	for _, item := range items {
		if item.BookID.Valid {
			quoteItems = append(quoteItems, shipping.QuoteItem{
				WeightG:  weightByBook[item.BookID.Int64],
				Quantity: item.Quantity,
			})
		}
		shipmentItems = append(shipmentItems, shipping.ShipmentItem{
			Name:      item.BookTitleSnapshot,
			Quantity:  item.Quantity,
			UnitPrice: item.PriceAtPurchase,
		})
	}

	result, err := s.shipper.CreateShipment(ctx, shipping.ShipmentRequest{
		ServiceID:      order.ShippingServiceID.Int64,
		RecipientName:  user.Username,
		RecipientTaxID: user.TaxID.String,
		RecipientPhone: user.Phone.String,
		Address:        *address,
		Items:          shipmentItems,
		WeightKg:       shipping.TotalWeightKg(quoteItems),
		InsuranceValue: order.TotalItemsPrice,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetShipmentInfo(ctx, orderID, result.CarrierOrderID, result.TrackingCode); err != nil {
		return nil, fmt.Errorf("failed to record shipment: %w", err)
	}

	order.Status = models.OrderStatusShipped
	order.CarrierOrderID = sql.NullString{String: result.CarrierOrderID, Valid: true}
	order.TrackingCode = sql.NullString{String: result.TrackingCode, Valid: true}

	util.OrdersShippedTotal.Inc()
	s.logger.Info("Shipping label generated",
		zap.Int64("order_id", orderID),
		zap.String("tracking_code", result.TrackingCode))
	return order, nil
}

// GetOrder retrieves one of the caller's orders with its items and address.
// Another user's order is reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetail, error) {
	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, order)
}

// ListOrders retrieves the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]OrderDetail, error) {
	orders, err := s.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := make([]OrderDetail, 0, len(orders))
	for i := range orders {
		detail, err := s.loadDetail(ctx, &orders[i])
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (s *OrderService) loadDetail(ctx context.Context, order *models.Order) (*OrderDetail, error) {
	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{Order: *order, Items: items}
	if order.AddressID.Valid {
		address, err := s.store.GetAddressByID(ctx, order.AddressID.Int64)
		if err == nil {
			detail.Address = address
		} else if models.KindOf(err) != models.KindNotFound {
			return nil, err
		}
	}
	return detail, nil
}

// cartBookIDs parses the cart's string keys into sorted book ids and a lookup
// of entries by id. Sorted ids keep the checkout's lock order deterministic.
func cartBookIDs(c *cart.Cart) ([]int64, map[int64]cart.Entry, error) {
	ids := make([]int64, 0, len(c.Items))
	entries := make(map[int64]cart.Entry, len(c.Items))
	for key, entry := range c.Items {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, nil, models.NewIntegrityError("Malformed cart entry.", err)
		}
		ids = append(ids, id)
		entries[id] = entry
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, entries, nil
}

// truncateTitle clamps a title snapshot to its storage limit, marking the cut
// with a trailing ellipsis.
func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= models.TitleSnapshotMaxLen {
		return title
	}
	return string(runes[:models.TitleSnapshotMaxLen-3]) + "..."
}
