package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/service"
)

type fakeCatalog struct {
	books map[int64]*models.Book
}

func (f *fakeCatalog) GetActiveBookByID(_ context.Context, id int64) (*models.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return nil, models.NewNotFoundError("Book not found.")
	}
	return book, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	carts, err := cart.NewStore(mr.Addr(), "", 0, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = carts.Close() })

	catalog := &fakeCatalog{books: map[int64]*models.Book{
		1: {ID: 1, Title: "Dune", Price: decimal.RequireFromString("49.90"), Stock: 10, IsActive: true},
	}}

	handler := NewHandler(service.NewCartService(carts, catalog), nil)
	router := gin.New()
	handler.SetupRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetCartAssignsSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/cart", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]interface{}{}, body["items"])

	var found bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "cart_session" && cookie.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "a session cookie must be issued")
}

func TestAddCartItemPersistsAcrossRequests(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/cart",
		map[string]interface{}{"book_id": 1, "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()

	w = doJSON(router, http.MethodGet, "/api/v1/cart", nil, cookies)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items map[string]struct {
			Quantity int    `json:"quantity"`
			Title    string `json:"title"`
			Price    string `json:"price"`
		} `json:"items"`
		TotalItemsPrice string `json:"total_items_price"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body.Items, "1")
	assert.Equal(t, 2, body.Items["1"].Quantity)
	assert.Equal(t, "Dune", body.Items["1"].Title)
	assert.True(t, decimal.RequireFromString(body.TotalItemsPrice).Equal(decimal.RequireFromString("99.80")))
}

func TestAddCartItemMissingFields(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/cart",
		map[string]interface{}{"quantity": 1}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "book_id")

	w = doJSON(router, http.MethodPost, "/api/v1/cart",
		map[string]interface{}{"book_id": 1}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "quantity")
}

func TestAddCartItemUnknownBookIs404(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/cart",
		map[string]interface{}{"book_id": 999, "quantity": 1}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "detail")
}

func TestAddCartItemInsufficientStockIs400(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/cart",
		map[string]interface{}{"book_id": 1, "quantity": 99}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient stock")
}

func TestRemoveCartItemNotInCartIs404(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodDelete, "/api/v1/cart",
		map[string]interface{}{"book_id": 1}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectShipping(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/cart/select-shipping",
		map[string]interface{}{"shipping_option": map[string]interface{}{
			"name":       "SEDEX",
			"price":      "25.50",
			"service_id": 2,
		}}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ShippingOption struct {
			Name      string `json:"name"`
			ServiceID int64  `json:"service_id"`
		} `json:"shipping_option"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SEDEX", body.ShippingOption.Name)
	assert.Equal(t, int64(2), body.ShippingOption.ServiceID)
}

func TestOrdersRequireAuthentication(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/orders", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication required.")
}

func TestMalformedUserIDIsRejected(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/ready"} {
		w := doJSON(router, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
