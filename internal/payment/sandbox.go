package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
)

// Sandbox is an in-process gateway for local development and tests. Orders
// and payments live in memory; signatures use the same HMAC scheme as Razorpay.
type Sandbox struct {
	secret string

	mu       sync.Mutex
	orders   map[string]Order
	payments map[string]Payment
}

// NewSandbox creates a sandbox gateway signing with secret.
func NewSandbox(secret string) *Sandbox {
	return &Sandbox{
		secret:   secret,
		orders:   make(map[string]Order),
		payments: make(map[string]Payment),
	}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error) {
	o := Order{ID: "order_" + ids.New(), Amount: amount, Currency: currency, KeyID: "sandbox"}
	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
	return o, nil
}

// Capture simulates a successful checkout and returns the payment id with its signature.
func (s *Sandbox) Capture(orderID string) (paymentID, signature string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return "", "", domain.NotFoundf("order %s", orderID)
	}
	paymentID = "pay_" + ids.New()
	s.payments[paymentID] = Payment{ID: paymentID, OrderID: orderID, Status: "captured", Amount: o.Amount, Captured: true}
	return paymentID, s.Sign(orderID, paymentID), nil
}

// Sign returns the confirmation signature for an order/payment pair.
func (s *Sandbox) Sign(orderID, paymentID string) string {
	return hmacHex(s.secret, []byte(orderID+"|"+paymentID))
}

// SignWebhook returns the webhook signature for payload.
func (s *Sandbox) SignWebhook(payload []byte) string {
	return hmacHex(s.secret, payload)
}

// WebhookPayload renders a payment.captured notification for paymentID.
func (s *Sandbox) WebhookPayload(paymentID string) ([]byte, error) {
	s.mu.Lock()
	p, ok := s.payments[paymentID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.NotFoundf("payment %s", paymentID)
	}
	env := map[string]any{
		"event": "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": razorpayPayment{ID: p.ID, OrderID: p.OrderID, Status: p.Status, Amount: p.Amount},
			},
		},
	}
	return json.Marshal(env)
}

func (s *Sandbox) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || s.secret == "" {
		return false
	}
	return equalHex(s.Sign(orderID, paymentID), strings.ToLower(signature))
}

func (s *Sandbox) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(payload) == 0 || s.secret == "" {
		return false
	}
	return equalHex(s.SignWebhook(payload), strings.ToLower(signature))
}

func (s *Sandbox) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return Payment{}, fmt.Errorf("sandbox: payment %s not found", paymentID)
	}
	return p, nil
}

func (s *Sandbox) ParseWebhook(payload []byte) (WebhookEvent, error) {
	return (&Razorpay{}).ParseWebhook(payload)
}

func hmacHex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
