package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookstore-service/internal/models"
)

// StockDelta pairs a book with a quantity for bulk stock updates.
type StockDelta struct {
	BookID   int64
	Quantity int
}

// Tx is one atomic unit of work over orders, items and stock. Checkout and
// cancellation each run inside exactly one Tx.
type Tx struct {
	tx *sqlx.Tx
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// CreateOrder inserts a new order row and fills in its generated fields.
func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, address_id, status, total_items_price, shipping_cost, shipping_method, shipping_service_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, order, query,
		order.UserID, order.AddressID, order.Status,
		order.TotalItemsPrice, order.ShippingCost,
		order.ShippingMethod, order.ShippingServiceID)
}

// LockBooks fetches the given books with row locks held until the transaction
// ends. Rows come back in id order so concurrent checkouts lock in the same
// sequence.
func (t *Tx) LockBooks(ctx context.Context, ids []int64) ([]models.Book, error) {
	if len(ids) == 0 {
		return []models.Book{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM books WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	var books []models.Book
	err = t.tx.SelectContext(ctx, &books, query, args...)
	return books, err
}

// CreateOrderItems inserts all items of an order in a single statement.
func (t *Tx) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO order_items (order_id, book_id, book_title_snapshot, quantity, price_at_purchase) VALUES ")

	args := make([]interface{}, 0, len(items)*5)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, item.OrderID, item.BookID, item.BookTitleSnapshot, item.Quantity, item.PriceAtPurchase)
	}

	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}
	return nil
}

// DecrementStock subtracts the given quantities in a single bulk statement.
// Each row only matches while stock covers the quantity, so a shortfall that
// slipped past the locked check surfaces as a row count mismatch.
func (t *Tx) DecrementStock(ctx context.Context, deltas []StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("UPDATE books AS b SET stock = b.stock - v.quantity, updated_at = NOW() FROM (VALUES ")

	args := make([]interface{}, 0, len(deltas)*2)
	for i, d := range deltas {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 2
		fmt.Fprintf(&sb, "($%d::bigint, $%d::int)", base+1, base+2)
		args = append(args, d.BookID, d.Quantity)
	}
	sb.WriteString(") AS v(book_id, quantity) WHERE b.id = v.book_id AND b.stock >= v.quantity")

	res, err := t.tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(deltas)) {
		return models.NewIntegrityError("Stock changed during checkout.", nil)
	}
	return nil
}

// RestoreStock adds quantity back to one book. Cancellation restores each
// item individually.
func (t *Tx) RestoreStock(ctx context.Context, bookID int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE books SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, bookID)
	if err != nil {
		return fmt.Errorf("failed to restore stock for book %d: %w", bookID, err)
	}
	return nil
}

// UpdateOrderStatus updates the order status within the transaction.
func (t *Tx) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SetPaymentCaptured stores the capture reference and moves the order to
// PROCESSING. The reference is unique across orders; a collision is a
// data-integrity error, not a user mistake.
func (t *Tx) SetPaymentCaptured(ctx context.Context, orderID int64, paymentRef string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_reference_id = $2, updated_at = NOW() WHERE id = $3",
		models.OrderStatusProcessing, paymentRef, orderID)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return models.NewIntegrityError("Duplicate payment reference.", err)
	}
	return err
}

// GetOrderByID retrieves an order by ID.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("Order not found.")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order by ID scoped to its owner. Another
// user's order is reported as not found.
func (s *Store) GetOrderForUser(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("Order not found.")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves a user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order.
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SetShipmentInfo stores the carrier order id and tracking code produced by
// label generation and moves the order to SHIPPED.
func (s *Store) SetShipmentInfo(ctx context.Context, orderID int64, carrierOrderID, trackingCode string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, carrier_order_id = $2, tracking_code = $3, updated_at = NOW() WHERE id = $4",
		models.OrderStatusShipped, carrierOrderID, trackingCode, orderID)
	return err
}
