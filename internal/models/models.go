package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Book represents a catalog entry. The catalog itself (authors, categories,
// imports) is managed elsewhere; this service only reads price, stock and
// shipping data, and mutates stock during checkout and cancellation.
type Book struct {
	ID           int64               `db:"id" json:"id"`
	Title        string              `db:"title" json:"title"`
	Price        decimal.Decimal     `db:"price" json:"price"`
	Stock        int                 `db:"stock" json:"stock"`
	IsActive     bool                `db:"is_active" json:"is_active"`
	ThumbnailURL sql.NullString      `db:"thumbnail_url" json:"thumbnail_url"`
	WeightG      decimal.NullDecimal `db:"weight_g" json:"weight_g"`
	HeightCm     decimal.NullDecimal `db:"height_cm" json:"height_cm"`
	WidthCm      decimal.NullDecimal `db:"width_cm" json:"width_cm"`
	LengthCm     decimal.NullDecimal `db:"length_cm" json:"length_cm"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// Address is a delivery address owned by a user. Address book CRUD lives in
// another service; orders hold a weak reference to rows in this table.
type Address struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	ZipCode      string         `db:"zip_code" json:"zip_code"`
	Street       string         `db:"street" json:"street"`
	Number       string         `db:"number" json:"number"`
	Complement   sql.NullString `db:"complement" json:"complement"`
	Neighborhood string         `db:"neighborhood" json:"neighborhood"`
	City         string         `db:"city" json:"city"`
	State        string         `db:"state" json:"state"`
	Country      string         `db:"country" json:"country"`
}

// User is the slice of the identity service's data this service reads:
// enough to address a shipment. Provisioning and authentication live
// elsewhere.
type User struct {
	ID       int64          `db:"id" json:"id"`
	Username string         `db:"username" json:"username"`
	Email    string         `db:"email" json:"email"`
	Phone    sql.NullString `db:"phone" json:"phone"`
	TaxID    sql.NullString `db:"tax_id" json:"tax_id"`
}

// Order statuses
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusProcessing     = "PROCESSING"
	OrderStatusShipped        = "SHIPPED"
	OrderStatusDelivered      = "DELIVERED"
	OrderStatusCanceled       = "CANCELED"
	OrderStatusFailed         = "FAILED"
)

// TitleSnapshotMaxLen is the storage limit of order_items.book_title_snapshot.
const TitleSnapshotMaxLen = 100

// Order represents a completed or attempted purchase. UserID and AddressID are
// weak references: deleting the user or the address nulls the column, the
// order row itself is never deleted.
type Order struct {
	ID                 int64           `db:"id" json:"id"`
	UserID             sql.NullInt64   `db:"user_id" json:"user_id"`
	AddressID          sql.NullInt64   `db:"address_id" json:"address_id"`
	Status             string          `db:"status" json:"status"`
	TotalItemsPrice    decimal.Decimal `db:"total_items_price" json:"total_items_price"`
	ShippingCost       decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	ShippingMethod     string          `db:"shipping_method" json:"shipping_method"`
	ShippingServiceID  sql.NullInt64   `db:"shipping_service_id" json:"shipping_service_id"`
	TrackingCode       sql.NullString  `db:"tracking_code" json:"tracking_code"`
	CarrierOrderID     sql.NullString  `db:"carrier_order_id" json:"carrier_order_id"`
	PaymentReferenceID sql.NullString  `db:"payment_reference_id" json:"payment_reference_id"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// FinalTotal is the amount charged at capture time. Derived, never stored.
func (o *Order) FinalTotal() decimal.Decimal {
	return o.TotalItemsPrice.Add(o.ShippingCost)
}

// OrderItem is a purchase-time snapshot of one cart entry. Title and price are
// copied so later catalog edits do not rewrite history; BookID is a weak
// reference nulled if the book is removed.
type OrderItem struct {
	ID                int64           `db:"id" json:"id"`
	OrderID           int64           `db:"order_id" json:"order_id"`
	BookID            sql.NullInt64   `db:"book_id" json:"book_id"`
	BookTitleSnapshot string          `db:"book_title_snapshot" json:"book_title_snapshot"`
	Quantity          int             `db:"quantity" json:"quantity"`
	PriceAtPurchase   decimal.Decimal `db:"price_at_purchase" json:"price_at_purchase"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// TotalPrice is quantity times the captured unit price.
func (i *OrderItem) TotalPrice() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
