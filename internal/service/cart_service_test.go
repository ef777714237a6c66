package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
)

func newTestCartService(books map[int64]*models.Book) (*CartService, *mockCartSessions) {
	sessions := newMockCartSessions()
	svc := &CartService{
		carts:   sessions,
		catalog: &mockCatalog{books: books},
		logger:  zap.NewNop(),
	}
	return svc, sessions
}

func TestAddItemSnapshotsBook(t *testing.T) {
	svc, _ := newTestCartService(map[int64]*models.Book{
		1: {
			ID:           1,
			Title:        "Dune",
			Price:        decimal.RequireFromString("49.90"),
			Stock:        10,
			IsActive:     true,
			ThumbnailURL: sql.NullString{String: "https://img.example/dune.jpg", Valid: true},
		},
	})

	c, err := svc.AddItem(context.Background(), "sess", 1, 2)
	require.NoError(t, err)

	entry := c.Items["1"]
	assert.Equal(t, 2, entry.Quantity)
	assert.Equal(t, "Dune", entry.Title)
	assert.True(t, entry.Price.Equal(decimal.RequireFromString("49.90")))
	assert.Equal(t, "https://img.example/dune.jpg", entry.ThumbnailURL)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestCartService(nil)

	for _, quantity := range []int{0, -1} {
		_, err := svc.AddItem(context.Background(), "sess", 1, quantity)
		require.Error(t, err)
		assert.Equal(t, models.KindValidation, models.KindOf(err))
	}
}

func TestAddItemUnknownBook(t *testing.T) {
	svc, _ := newTestCartService(nil)

	_, err := svc.AddItem(context.Background(), "sess", 999, 1)
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestAddItemInactiveBook(t *testing.T) {
	svc, _ := newTestCartService(map[int64]*models.Book{
		1: {ID: 1, Title: "Dune", Stock: 10, IsActive: false},
	})

	_, err := svc.AddItem(context.Background(), "sess", 1, 1)
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestAddItemInsufficientStock(t *testing.T) {
	svc, _ := newTestCartService(map[int64]*models.Book{
		1: {ID: 1, Title: "Dune", Stock: 2, IsActive: true},
	})

	_, err := svc.AddItem(context.Background(), "sess", 1, 3)
	require.Error(t, err)
	assert.Equal(t, models.KindDomainState, models.KindOf(err))
	assert.Contains(t, err.Error(), "2 units available")
}

func TestRemoveItemNotInCart(t *testing.T) {
	svc, _ := newTestCartService(nil)

	_, err := svc.RemoveItem(context.Background(), "sess", 1)
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestSelectShippingValidation(t *testing.T) {
	svc, _ := newTestCartService(nil)

	cases := []cart.ShippingOption{
		{Name: "", Price: decimal.NewFromInt(10)},
		{Name: "PAC", Price: decimal.NewFromInt(-5)},
	}
	for _, opt := range cases {
		_, err := svc.SelectShipping(context.Background(), "sess", opt)
		require.Error(t, err)
		assert.Equal(t, models.KindValidation, models.KindOf(err))
	}
}

func TestSelectShippingAcceptsFreeShipping(t *testing.T) {
	svc, _ := newTestCartService(nil)

	c, err := svc.SelectShipping(context.Background(), "sess", cart.ShippingOption{
		Name:  "Retirada na loja",
		Price: decimal.Zero,
	})
	require.NoError(t, err)
	require.NotNil(t, c.ShippingOption)
	assert.True(t, c.ShippingOption.Price.IsZero())
}

func TestSelectShipping(t *testing.T) {
	svc, _ := newTestCartService(nil)

	c, err := svc.SelectShipping(context.Background(), "sess", cart.ShippingOption{
		Name:      "SEDEX",
		Price:     decimal.RequireFromString("25.50"),
		ServiceID: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, c.ShippingOption)
	assert.Equal(t, "SEDEX", c.ShippingOption.Name)
}

func TestClearCart(t *testing.T) {
	svc, sessions := newTestCartService(map[int64]*models.Book{
		1: {ID: 1, Title: "Dune", Stock: 10, IsActive: true},
	})

	_, err := svc.AddItem(context.Background(), "sess", 1, 1)
	require.NoError(t, err)

	require.NoError(t, svc.ClearCart(context.Background(), "sess"))
	assert.Empty(t, sessions.carts)
}
