package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/service"
	"bookstore-service/internal/util"
)

// respondError translates a service error into an HTTP response. Validation
// errors are keyed by the offending field; everything else uses "detail".
func respondError(c *gin.Context, err error) {
	var appErr *models.Error
	switch models.KindOf(err) {
	case models.KindValidation:
		field := "detail"
		if errors.As(err, &appErr) && appErr.Field != "" {
			field = appErr.Field
		}
		c.JSON(http.StatusBadRequest, gin.H{field: err.Error()})
	case models.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case models.KindDomainState, models.KindPaymentDeclined, models.KindIntegrity:
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case models.KindGateway:
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
	default:
		util.GetLogger().Sugar().Errorw("Unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
	}
}

// cartJSON renders the cart in its session envelope. The items map is always
// present, even when empty, so clients can treat its shape as stable.
func cartJSON(crt *cart.Cart) gin.H {
	items := gin.H{}
	for id, entry := range crt.Items {
		items[id] = gin.H{
			"quantity":      entry.Quantity,
			"title":         entry.Title,
			"price":         entry.Price,
			"thumbnail_url": entry.ThumbnailURL,
			"total_price":   entry.Price.Mul(decimal.NewFromInt(int64(entry.Quantity))),
		}
	}

	out := gin.H{
		"items":             items,
		"total_items_price": crt.TotalItemsPrice(),
	}
	if crt.ShippingOption != nil {
		out["shipping_option"] = crt.ShippingOption
	}
	return out
}

// orderJSON renders an order with its item snapshots and delivery address.
func orderJSON(detail *service.OrderDetail) gin.H {
	order := &detail.Order

	items := make([]gin.H, 0, len(detail.Items))
	for i := range detail.Items {
		item := &detail.Items[i]
		items = append(items, gin.H{
			"book_id":           nullInt64JSON(item.BookID),
			"book_title":        item.BookTitleSnapshot,
			"quantity":          item.Quantity,
			"price_at_purchase": item.PriceAtPurchase,
			"total_price":       item.TotalPrice(),
		})
	}

	out := gin.H{
		"id":                order.ID,
		"user_id":           nullInt64JSON(order.UserID),
		"status":            order.Status,
		"total_items_price": order.TotalItemsPrice,
		"shipping_cost":     order.ShippingCost,
		"final_total":       order.FinalTotal(),
		"shipping_method":   order.ShippingMethod,
		"tracking_code":     nullStringJSON(order.TrackingCode),
		"created_at":        order.CreatedAt,
		"updated_at":        order.UpdatedAt,
		"items":             items,
	}
	if detail.Address != nil {
		out["address"] = detail.Address
	} else {
		out["address"] = nil
	}
	return out
}

func nullInt64JSON(v sql.NullInt64) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullStringJSON(v sql.NullString) interface{} {
	if !v.Valid {
		return nil
	}
	return v.String
}
