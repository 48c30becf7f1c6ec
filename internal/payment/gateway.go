package payment

import (
	"context"
	"crypto/hmac"
	"errors"
)

// ErrInvalidSignature is returned when a webhook or callback fails verification.
var ErrInvalidSignature = errors.New("invalid payment signature")

// Order is a gateway order created for one registration.
type Order struct {
	ID       string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// KeyID is the public checkout key (Razorpay); CheckoutToken and
	// CheckoutURL are filled by providers that hand out hosted checkout pages.
	KeyID         string `json:"key_id,omitempty"`
	CheckoutToken string `json:"checkout_token,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
}

// Payment is the gateway's view of a charge.
type Payment struct {
	ID       string
	OrderID  string
	Status   string
	Amount   int64
	Captured bool
}

// WebhookEvent is a normalized asynchronous notification.
type WebhookEvent struct {
	Event     string
	OrderID   string
	PaymentID string
	Captured  bool
}

// Gateway is the payment provider contract.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error)
	// VerifyPaymentSignature checks the client-side confirmation. It never panics
	// and returns false on any malformed input.
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(payload []byte, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	ParseWebhook(payload []byte) (WebhookEvent, error)
}

func equalHex(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
