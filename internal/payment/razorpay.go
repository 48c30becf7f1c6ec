package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"vedarc.org/internal/ids"
)

// RazorpayConfig holds API credentials.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	// BaseURL overrides the API host, e.g. https://api.razorpay.com.
	BaseURL string
	Timeout time.Duration
}

// Razorpay creates orders and fetches payments through the official SDK.
type Razorpay struct {
	cfg    RazorpayConfig
	client *razorpay.Client
}

// NewRazorpay builds an SDK client with a bounded timeout.
func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	secs := int16(cfg.Timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	client.SetTimeout(secs)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		razorpay.Request.BaseURL = base
	}
	return &Razorpay{cfg: cfg, client: client}
}

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error) {
	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  "rcpt_" + ids.New(),
		"notes":    metadata,
	}
	body, err := r.call(ctx, "create order", func() (map[string]interface{}, error) {
		return r.client.Order.Create(data, nil)
	})
	if err != nil {
		return Order{}, err
	}
	var resp struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := decodeEntity(body, &resp); err != nil {
		return Order{}, err
	}
	return Order{ID: resp.ID, Amount: resp.Amount, Currency: resp.Currency, KeyID: r.cfg.KeyID}, nil
}

func (r *Razorpay) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" || r.cfg.KeySecret == "" {
		return false
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	return utils.VerifyPaymentSignature(attrs, strings.ToLower(signature), r.cfg.KeySecret)
}

func (r *Razorpay) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(payload) == 0 || signature == "" || r.cfg.WebhookSecret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(payload), strings.ToLower(signature), r.cfg.WebhookSecret)
}

func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	body, err := r.call(ctx, "fetch payment", func() (map[string]interface{}, error) {
		return r.client.Payment.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return Payment{}, err
	}
	var resp razorpayPayment
	if err := decodeEntity(body, &resp); err != nil {
		return Payment{}, err
	}
	return resp.normalize(), nil
}

func (r *Razorpay) ParseWebhook(payload []byte) (WebhookEvent, error) {
	var env struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity razorpayPayment `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	p := env.Payload.Payment.Entity.normalize()
	return WebhookEvent{
		Event:     env.Event,
		OrderID:   p.OrderID,
		PaymentID: p.ID,
		Captured:  env.Event == "payment.captured" && p.Captured,
	}, nil
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

func (p razorpayPayment) normalize() Payment {
	return Payment{
		ID:       p.ID,
		OrderID:  p.OrderID,
		Status:   p.Status,
		Amount:   p.Amount,
		Captured: p.Status == "captured",
	}
}

// call runs a blocking SDK request and gives up when ctx ends first.
func (r *Razorpay) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body, err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("razorpay %s: %w", op, res.err)
		}
		if apiErr, ok := res.body["error"]; ok {
			return nil, fmt.Errorf("razorpay %s: %v", op, apiErr)
		}
		return res.body, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("razorpay %s: %w", op, ctx.Err())
	}
}

// decodeEntity converts the SDK's generic map into a typed response.
func decodeEntity(body map[string]interface{}, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
