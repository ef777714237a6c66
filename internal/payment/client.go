package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bookstore-service/config"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"
)

// Client captures and refunds card payments through the processor's REST API.
// Captures are synchronous: the intent is confirmed in the create call and any
// flow requiring further customer action (3-D Secure and the like) is treated
// as a failure, since this service implements no asynchronous confirmation.
type Client struct {
	httpClient *http.Client
	cfg        config.PaymentConfig
}

// NewClient creates a payment processor client with a bounded request timeout.
func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Capture charges the payment method for the given amount and returns the
// processor's opaque payment reference. A card declined by the issuer comes
// back as a payment-declined error carrying the issuer's message; everything
// else is either a gateway failure or an incomplete payment.
func (c *Client) Capture(ctx context.Context, amount decimal.Decimal, paymentMethodID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "payment.Capture")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentCaptureLatency.Observe(time.Since(start).Seconds())
	}()

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.Shift(2).IntPart(), 10))
	form.Set("currency", c.cfg.Currency)
	form.Set("payment_method", paymentMethodID)
	form.Set("confirm", "true")
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "never")

	var intent intentResponse
	if err := c.postForm(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return "", err
	}

	if intent.Error != nil {
		if intent.Error.Type == "card_error" {
			util.PaymentDeclinedTotal.Inc()
			return "", models.NewPaymentDeclinedError("Payment declined: " + intent.Error.Message)
		}
		return "", models.NewGatewayError("Payment capture failed.",
			fmt.Errorf("%s: %s", intent.Error.Type, intent.Error.Message))
	}

	if intent.Status != "succeeded" {
		return "", models.NewDomainStateError("Payment was not completed.")
	}

	return intent.ID, nil
}

// Refund issues a full refund against a prior capture. Any failure is a hard
// error; there are no partial refunds and no built-in retry.
func (c *Client) Refund(ctx context.Context, paymentRef string) error {
	ctx, span := util.StartSpan(ctx, "payment.Refund")
	defer span.End()

	form := url.Values{}
	form.Set("payment_intent", paymentRef)

	var resp intentResponse
	if err := c.postForm(ctx, "/v1/refunds", form, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return models.NewGatewayError("Payment refund failed.",
			fmt.Errorf("%s: %s", resp.Error.Type, resp.Error.Message))
	}
	return nil
}

// postForm sends a form-encoded request and decodes the JSON response. The
// processor reports request-level failures inside the body with a non-2xx
// status, so the body is decoded before the status is judged.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out *intentResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewGatewayError("Payment processor unreachable.", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewGatewayError("Failed to read payment processor response.", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return models.NewGatewayError("Malformed payment processor response.",
			fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}

	if out.Error == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return models.NewGatewayError("Payment capture failed.",
			fmt.Errorf("payment processor returned status %d", resp.StatusCode))
	}
	return nil
}
