package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"
)

// CartSessions is the session-backed cart storage used by CartService.
// Implemented by cart.Store.
type CartSessions interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
	AddItem(ctx context.Context, sessionID, bookID string, e cart.Entry) (*cart.Cart, error)
	RemoveItem(ctx context.Context, sessionID, bookID string) (*cart.Cart, error)
	SelectShipping(ctx context.Context, sessionID string, opt cart.ShippingOption) (*cart.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// BookCatalog is the catalog read surface the cart needs. Implemented by
// store.Store.
type BookCatalog interface {
	GetActiveBookByID(ctx context.Context, id int64) (*models.Book, error)
}

// CartService validates cart mutations against the catalog and delegates
// storage and expiry to the session cart store.
type CartService struct {
	carts   CartSessions
	catalog BookCatalog
	logger  *zap.Logger
}

// NewCartService creates a new cart service.
func NewCartService(carts CartSessions, catalog BookCatalog) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// GetCart returns the session's current cart, wiping it first if expired.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	return s.carts.Get(ctx, sessionID)
}

// AddItem puts quantity units of a book into the cart, snapshotting the
// book's current title, price and thumbnail. The stock check here is
// advisory; checkout re-verifies against locked rows.
func (s *CartService) AddItem(ctx context.Context, sessionID string, bookID int64, quantity int) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity < 1 {
		return nil, models.NewValidationError("quantity",
			"Quantity is required and must be greater than zero.")
	}

	book, err := s.catalog.GetActiveBookByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if book.Stock < quantity {
		return nil, models.NewDomainStateError(
			fmt.Sprintf("Insufficient stock, %d units available.", book.Stock))
	}

	entry := cart.Entry{
		Quantity:     quantity,
		Title:        book.Title,
		Price:        book.Price,
		ThumbnailURL: book.ThumbnailURL.String,
	}

	c, err := s.carts.AddItem(ctx, sessionID, strconv.FormatInt(bookID, 10), entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Cart item added",
		zap.String("session_id", sessionID),
		zap.Int64("book_id", bookID),
		zap.Int("quantity", quantity))
	return c, nil
}

// RemoveItem deletes a book from the cart. A book that is not in the cart is
// reported as not found.
func (s *CartService) RemoveItem(ctx context.Context, sessionID string, bookID int64) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	return s.carts.RemoveItem(ctx, sessionID, strconv.FormatInt(bookID, 10))
}

// SelectShipping stores the chosen shipping option on the cart. The option
// must carry both a name and a cost; a zero cost is a valid free-shipping
// quote, a negative one is not.
func (s *CartService) SelectShipping(ctx context.Context, sessionID string, opt cart.ShippingOption) (*cart.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SelectShipping")
	defer span.End()

	if opt.Name == "" || opt.Price.IsNegative() {
		return nil, models.NewValidationError("shipping_option",
			"A shipping option with name and price is required.")
	}

	return s.carts.SelectShipping(ctx, sessionID, opt)
}

// ClearCart drops the session's cart entirely.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) error {
	return s.carts.Clear(ctx, sessionID)
}
