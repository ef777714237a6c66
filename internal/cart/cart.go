package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one book in the cart. Title, price and thumbnail are snapshots
// taken when the item was added; later catalog edits do not change them.
type Entry struct {
	Quantity     int             `json:"quantity"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	ThumbnailURL string          `json:"thumbnail_url"`
}

// ShippingOption is a carrier quote chosen by the user. ServiceID is the
// carrier's service identifier, required later for label generation.
type ShippingOption struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ServiceID int64           `json:"service_id,omitempty"`
}

// Cart is the per-session shopping cart aggregate. It lives only in session
// storage; ExpiresAt is the logical expiry marker checked on every read.
type Cart struct {
	Items          map[string]Entry `json:"items"`
	ShippingOption *ShippingOption  `json:"shipping_option,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{Items: map[string]Entry{}}
}

// Empty reports whether the cart holds no items.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// Expired reports whether the expiry marker is set and in the past.
func (c *Cart) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Upsert stores the entry under bookID, overwriting any existing entry.
// Duplicate adds replace the quantity, they do not accumulate.
func (c *Cart) Upsert(bookID string, e Entry) {
	if c.Items == nil {
		c.Items = map[string]Entry{}
	}
	c.Items[bookID] = e
}

// Remove deletes the entry for bookID, reporting whether it was present.
func (c *Cart) Remove(bookID string) bool {
	if _, ok := c.Items[bookID]; !ok {
		return false
	}
	delete(c.Items, bookID)
	return true
}

// Touch slides the expiry marker to now plus ttl.
func (c *Cart) Touch(now time.Time, ttl time.Duration) {
	t := now.Add(ttl)
	c.ExpiresAt = &t
}

// TotalItemsPrice sums unit price times quantity over all entries.
func (c *Cart) TotalItemsPrice() decimal.Decimal {
	total := decimal.Zero
	for _, e := range c.Items {
		total = total.Add(e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return total
}
