package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"vedarc.org/internal/ids"
)

// MidtransConfig holds Midtrans credentials.
type MidtransConfig struct {
	ServerKey  string
	Production bool
	// Amount is the fixed registration fee, needed to rebuild signature keys.
	Amount int64
}

// Midtrans creates Snap transactions and checks status through the Core API.
type Midtrans struct {
	cfg  MidtransConfig
	snap snap.Client
	core coreapi.Client
}

// NewMidtrans initialises both SDK clients.
func NewMidtrans(cfg MidtransConfig) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}
	m := &Midtrans{cfg: cfg}
	m.snap.New(cfg.ServerKey, env)
	m.core.New(cfg.ServerKey, env)
	return m
}

func (m *Midtrans) Name() string { return "midtrans" }

func (m *Midtrans) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error) {
	orderID := "order_" + ids.New()
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: metadata["fullName"],
			Email: metadata["email"],
			Phone: metadata["whatsapp"],
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    orderID,
			Price: amount,
			Qty:   1,
			Name:  "Internship registration",
		}},
	}
	resp, merr := m.snap.CreateTransaction(req)
	if merr != nil {
		return Order{}, fmt.Errorf("midtrans create transaction: %s", merr.GetMessage())
	}
	return Order{
		ID:            orderID,
		Amount:        amount,
		Currency:      currency,
		CheckoutToken: resp.Token,
		CheckoutURL:   resp.RedirectURL,
	}, nil
}

// VerifyPaymentSignature checks the Midtrans signature_key of a settled
// transaction: SHA512(order_id + status_code + gross_amount + server_key).
func (m *Midtrans) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || m.cfg.ServerKey == "" {
		return false
	}
	gross := fmt.Sprintf("%d.00", m.cfg.Amount)
	return equalHex(m.signature(orderID, "200", gross), strings.ToLower(signature))
}

func (m *Midtrans) VerifyWebhookSignature(payload []byte, signature string) bool {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return false
	}
	if signature == "" {
		signature = n.SignatureKey
	}
	return equalHex(m.signature(n.OrderID, n.StatusCode, n.GrossAmount), strings.ToLower(signature))
}

func (m *Midtrans) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	resp, merr := m.core.CheckTransaction(paymentID)
	if merr != nil {
		return Payment{}, fmt.Errorf("midtrans check transaction: %s", merr.GetMessage())
	}
	return Payment{
		ID:       resp.TransactionID,
		OrderID:  resp.OrderID,
		Status:   resp.TransactionStatus,
		Captured: settled(resp.TransactionStatus, resp.FraudStatus),
	}, nil
}

func (m *Midtrans) ParseWebhook(payload []byte) (WebhookEvent, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	return WebhookEvent{
		Event:     "payment." + n.TransactionStatus,
		OrderID:   n.OrderID,
		PaymentID: n.TransactionID,
		Captured:  settled(n.TransactionStatus, n.FraudStatus),
	}, nil
}

type midtransNotification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

func (m *Midtrans) signature(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + m.cfg.ServerKey))
	return hex.EncodeToString(sum[:])
}

func settled(status, fraud string) bool {
	switch status {
	case "settlement":
		return true
	case "capture":
		return fraud == "" || fraud == "accept"
	}
	return false
}
