package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/service"
	"bookstore-service/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	cartService  *service.CartService
	orderService *service.OrderService
}

// NewHandler creates a new HTTP handler
func NewHandler(cartService *service.CartService, orderService *service.OrderService) *Handler {
	return &Handler{
		cartService:  cartService,
		orderService: orderService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(sessionMiddleware())
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart", h.addCartItem)
		v1.DELETE("/cart", h.removeCartItem)
		v1.POST("/cart/select-shipping", h.selectShipping)

		authed := v1.Group("")
		authed.Use(authRequired())
		{
			authed.POST("/checkout/shipping-options", h.shippingOptions)
			authed.POST("/orders", h.createOrder)
			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/:id", h.getOrder)
			authed.POST("/orders/:id/cancel", h.cancelOrder)
			authed.POST("/orders/:id/ship", h.shipOrder)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getCart returns the session's current cart, wiping it first if expired.
func (h *Handler) getCart(c *gin.Context) {
	crt, err := h.cartService.GetCart(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(crt))
}

type addCartItemRequest struct {
	BookID   *int64 `json:"book_id"`
	Quantity *int   `json:"quantity"`
}

// addCartItem puts a book into the session cart.
func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
		return
	}
	if req.BookID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"book_id": "Book id is required."})
		return
	}
	if req.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"quantity": "Quantity is required and must be greater than zero."})
		return
	}

	crt, err := h.cartService.AddItem(c.Request.Context(), sessionID(c), *req.BookID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(crt))
}

type removeCartItemRequest struct {
	BookID *int64 `json:"book_id"`
}

// removeCartItem deletes a book from the session cart.
func (h *Handler) removeCartItem(c *gin.Context) {
	var req removeCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
		return
	}
	if req.BookID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"book_id": "Book id is required."})
		return
	}

	crt, err := h.cartService.RemoveItem(c.Request.Context(), sessionID(c), *req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(crt))
}

type selectShippingRequest struct {
	ShippingOption *struct {
		Name      string          `json:"name"`
		Price     decimal.Decimal `json:"price"`
		ServiceID int64           `json:"service_id"`
	} `json:"shipping_option"`
}

// selectShipping stores the chosen shipping quote on the session cart.
func (h *Handler) selectShipping(c *gin.Context) {
	var req selectShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ShippingOption == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "A shipping option with name and price is required."})
		return
	}

	crt, err := h.cartService.SelectShipping(c.Request.Context(), sessionID(c), cart.ShippingOption{
		Name:      req.ShippingOption.Name,
		Price:     req.ShippingOption.Price,
		ServiceID: req.ShippingOption.ServiceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(crt))
}

type shippingOptionsRequest struct {
	AddressID *int64 `json:"address_id"`
}

// shippingOptions quotes carrier rates for the session cart delivered to one
// of the caller's addresses.
func (h *Handler) shippingOptions(c *gin.Context) {
	var req shippingOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AddressID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Address id is required."})
		return
	}

	crt, err := h.cartService.GetCart(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	options, err := h.orderService.QuoteShipping(c.Request.Context(), userID(c), crt, *req.AddressID)
	if err != nil {
		if models.KindOf(err) == models.KindGateway {
			c.JSON(http.StatusBadRequest, gin.H{"detail-erro": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, options)
}

type createOrderRequest struct {
	AddressID       *int64 `json:"address_id"`
	ShippingMethod  string `json:"shipping_method"`
	PaymentMethodID string `json:"payment_method_id"`
}

// createOrder runs the checkout: the session cart plus the request's address
// and payment method become a durable order. The session cart is cleared only
// after the order is committed.
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body."})
		return
	}
	if req.AddressID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"address_id": "Address id is required."})
		return
	}
	if req.ShippingMethod == "" {
		c.JSON(http.StatusBadRequest, gin.H{"shipping_method": "Shipping method is required."})
		return
	}
	if req.PaymentMethodID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"payment_method_id": "Payment method id is required."})
		return
	}

	crt, err := h.cartService.GetCart(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), userID(c), crt, *req.AddressID, req.PaymentMethodID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.cartService.ClearCart(c.Request.Context(), sessionID(c)); err != nil {
		// The order exists; a lingering cart is an inconvenience, not a failure.
		util.GetLogger().Sugar().Warnw("Failed to clear cart after checkout",
			"session_id", sessionID(c), "error", err)
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), userID(c), order.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderJSON(detail))
}

// listOrders returns the caller's orders, newest first.
func (h *Handler) listOrders(c *gin.Context) {
	details, err := h.orderService.ListOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(details))
	for i := range details {
		out = append(out, orderJSON(&details[i]))
	}
	c.JSON(http.StatusOK, out)
}

// getOrder returns one of the caller's orders. Anyone else's order is a 404.
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderJSON(detail))
}

// cancelOrder refunds a PROCESSING order and restores its stock.
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), userID(c), order.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderJSON(detail))
}

// shipOrder generates the carrier label for an order and records tracking.
func (h *Handler) shipOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderService.ShipOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               order.ID,
		"status":           order.Status,
		"carrier_order_id": order.CarrierOrderID.String,
		"tracking_code":    order.TrackingCode.String,
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid order id."})
		return 0, false
	}
	return orderID, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
