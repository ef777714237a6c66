package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"bookstore-service/config"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"
)

// QuoteItem is one cart entry prepared for a rate quote. Weight is per unit in
// grams; zero means the catalog has no weight on record and the item simply
// does not contribute to the package weight.
type QuoteItem struct {
	WeightG  decimal.Decimal
	Quantity int
}

// Option is a priced shipping option returned by the carrier. Error is set by
// the carrier on options it could not price; Quote never returns those.
type Option struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	DeliveryTime int             `json:"delivery_time,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ShipmentItem is one order item listed on the shipment declaration.
type ShipmentItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ShipmentRequest carries everything needed to commit a shipment with the
// carrier: the service chosen at quote time, the recipient, and the declared
// contents.
type ShipmentRequest struct {
	ServiceID      int64
	RecipientName  string
	RecipientTaxID string
	RecipientPhone string
	Address        models.Address
	Items          []ShipmentItem
	WeightKg       decimal.Decimal
	InsuranceValue decimal.Decimal
}

// ShipmentResult is the durable outcome of label generation.
type ShipmentResult struct {
	CarrierOrderID string
	TrackingCode   string
}

// Client talks to the carrier rate/label API. Quoting is cheap and
// side-effect-free; CreateShipment is a one-time commitment and is only called
// after payment succeeded.
type Client struct {
	httpClient   *http.Client
	cfg          config.ShippingConfig
	pollInterval time.Duration
}

// NewClient creates a carrier API client with a bounded request timeout.
func NewClient(cfg config.ShippingConfig) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cfg:          cfg,
		pollInterval: 2 * time.Second,
	}
}

// TotalWeightKg sums item weight times quantity over the package, converting
// grams to kilograms. Items without a known weight contribute zero.
func TotalWeightKg(items []QuoteItem) decimal.Decimal {
	grams := decimal.Zero
	for _, item := range items {
		grams = grams.Add(item.WeightG.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return grams.Div(decimal.NewFromInt(1000))
}

// Quote asks the carrier for priced options to deliver the given items to the
// destination zip code, using the store's fixed package dimensions. Options
// the carrier flags as errors are dropped; an empty result after filtering is
// a domain error distinct from a gateway failure.
func (c *Client) Quote(ctx context.Context, items []QuoteItem, destinationZip string) ([]Option, error) {
	ctx, span := util.StartSpan(ctx, "shipping.Quote")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ShippingQuoteLatency.Observe(time.Since(start).Seconds())
	}()

	payload := map[string]interface{}{
		"from": map[string]string{"postal_code": c.cfg.OriginZipCode},
		"to":   map[string]string{"postal_code": destinationZip},
		"package": map[string]interface{}{
			"weight": TotalWeightKg(items).InexactFloat64(),
			"width":  c.cfg.PackageWidthCm,
			"height": c.cfg.PackageHeightCm,
			"length": c.cfg.PackageLengthCm,
		},
	}

	var options []Option
	if err := c.post(ctx, "/api/v2/me/shipment/calculate", payload, &options); err != nil {
		util.ShippingQuotesTotal.WithLabelValues("gateway_error").Inc()
		return nil, models.NewGatewayError("Shipping rate request failed.", err)
	}

	valid := options[:0]
	for _, opt := range options {
		if opt.Error == "" {
			valid = append(valid, opt)
		}
	}

	if len(valid) == 0 {
		util.ShippingQuotesTotal.WithLabelValues("no_options").Inc()
		return nil, models.NewDomainStateError(
			fmt.Sprintf("No shipping options found for zip code %s.", destinationZip))
	}

	util.ShippingQuotesTotal.WithLabelValues("ok").Inc()
	return valid, nil
}

// CreateShipment runs the carrier's three-step handshake (cart, checkout,
// generate) and fetches the resulting tracking code. A shipment that comes
// back without tracking is a carrier inconsistency, reported as a gateway
// error.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	ctx, span := util.StartSpan(ctx, "shipping.CreateShipment")
	defer span.End()

	products := make([]map[string]interface{}, 0, len(req.Items))
	for _, item := range req.Items {
		products = append(products, map[string]interface{}{
			"name":          item.Name,
			"quantity":      item.Quantity,
			"unitary_value": item.UnitPrice.InexactFloat64(),
		})
	}

	cartPayload := map[string]interface{}{
		"service": req.ServiceID,
		"from": map[string]interface{}{
			"postal_code": c.cfg.OriginZipCode,
			"document":    c.cfg.OriginTaxID,
		},
		"to": map[string]interface{}{
			"name":        req.RecipientName,
			"document":    req.RecipientTaxID,
			"phone":       req.RecipientPhone,
			"address":     req.Address.Street,
			"number":      req.Address.Number,
			"district":    req.Address.Neighborhood,
			"city":        req.Address.City,
			"state_abbr":  req.Address.State,
			"country_id":  "BR",
			"postal_code": req.Address.ZipCode,
		},
		"products": products,
		"volumes": []map[string]interface{}{{
			"weight": req.WeightKg.InexactFloat64(),
			"width":  c.cfg.PackageWidthCm,
			"height": c.cfg.PackageHeightCm,
			"length": c.cfg.PackageLengthCm,
		}},
		"options": map[string]interface{}{
			"insurance_value": req.InsuranceValue.InexactFloat64(),
			"receipt":         false,
			"own_hand":        false,
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/api/v2/me/cart", cartPayload, &created); err != nil {
		return nil, models.NewGatewayError("Failed to create carrier shipment.", err)
	}
	if created.ID == "" {
		return nil, models.NewGatewayError("Carrier returned no shipment id.", nil)
	}

	ordersPayload := map[string]interface{}{"orders": []string{created.ID}}
	if err := c.post(ctx, "/api/v2/me/shipment/checkout", ordersPayload, nil); err != nil {
		return nil, models.NewGatewayError("Failed to check out carrier shipment.", err)
	}
	if err := c.post(ctx, "/api/v2/me/shipment/generate", ordersPayload, nil); err != nil {
		return nil, models.NewGatewayError("Failed to generate shipping label.", err)
	}

	tracking, err := c.fetchTracking(ctx, created.ID)
	if err != nil {
		return nil, err
	}

	return &ShipmentResult{CarrierOrderID: created.ID, TrackingCode: tracking}, nil
}

// fetchTracking polls the carrier order until a tracking code appears. The
// carrier assigns tracking shortly after label generation, so only a few
// attempts are made before giving up.
func (c *Client) fetchTracking(ctx context.Context, carrierOrderID string) (string, error) {
	var details struct {
		Tracking string `json:"tracking"`
	}

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}

		if err := c.get(ctx, "/api/v2/me/orders/"+carrierOrderID, &details); err != nil {
			return "", models.NewGatewayError("Failed to fetch carrier order details.", err)
		}
		if details.Tracking != "" {
			return details.Tracking, nil
		}
	}

	return "", models.NewGatewayError("Carrier did not produce a tracking code.", nil)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("carrier API returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode carrier response: %w", err)
	}
	return nil
}
