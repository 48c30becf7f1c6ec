package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/ids"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/obs"
	"vedarc.org/internal/payment"
)

// PasswordLength is the size of generated student passwords.
const PasswordLength = 8

// Store is the persistence the lifecycle engine needs.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error)
	CreatePayment(ctx context.Context, p domain.Payment) error
	ExpirePendingPayments(ctx context.Context, email string, before time.Time) (int, error)
	FindPayment(ctx context.Context, orderID string) (domain.Payment, error)
	ListPayments(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error)
	// CompletePayment claims the order and inserts acct atomically. It returns
	// the account bound to the order and whether this call created it.
	CompletePayment(ctx context.Context, orderID, paymentID string, acct domain.Account, at time.Time) (domain.Account, bool, error)
	// TransitionAccount applies t only while the account is in t.From.
	TransitionAccount(ctx context.Context, t domain.Transition) (domain.Account, error)
	SetPassword(ctx context.Context, userID, hash string, at time.Time) error
	RepairAccountStatuses(ctx context.Context, at time.Time) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, userID string, required domain.AccountStatus) (domain.Account, error)
	FindOperator(ctx context.Context, username string) (domain.Operator, error)
	FindInternshipByTrack(ctx context.Context, track string) (domain.Internship, error)
}

// Sessions is the part of the session service used at login and on lockout.
type Sessions interface {
	Create(ctx context.Context, userID string, role domain.Role, token string) (domain.Session, error)
	SweepExpired(ctx context.Context) (int, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Generate(subject string, role domain.Role) (string, time.Time, error)
}

// Mailer delivers mail without blocking the caller.
type Mailer interface {
	Notify(msg mail.Message)
}

// Config carries the registration tunables.
type Config struct {
	UserIDPrefix    string
	Company         string
	Amount          int64
	Currency        string
	PendingOrderTTL time.Duration
}

// Service implements the student account lifecycle.
type Service struct {
	store    Store
	gateway  payment.Gateway
	sessions Sessions
	tokens   TokenIssuer
	mailer   Mailer
	composer mail.Composer
	cfg      Config
	now      func() time.Time
}

// NewService wires the lifecycle engine.
func NewService(store Store, gateway payment.Gateway, sessions Sessions, tokens TokenIssuer, mailer Mailer, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PendingOrderTTL <= 0 {
		cfg.PendingOrderTTL = 30 * time.Minute
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		composer: mail.Composer{Company: cfg.Company},
		cfg:      cfg,
		now:      time.Now,
	}
}

// RegisterResult is what the client needs to open the checkout.
type RegisterResult struct {
	Order payment.Order `json:"order"`
	Email string        `json:"email"`
}

// Confirmation reports the outcome of a payment confirmation.
type Confirmation struct {
	UserID   string `json:"user_id,omitempty"`
	Replayed bool   `json:"replayed"`
	Ignored  bool   `json:"ignored,omitempty"`
}

// Register stores the registration under a fresh gateway order. The account
// itself is created only when the payment is confirmed.
func (s *Service) Register(ctx context.Context, in domain.Registration) (RegisterResult, error) {
	in = in.Normalize()
	if err := domain.Validate(in); err != nil {
		return RegisterResult{}, err
	}
	if _, err := s.store.FindAccountByEmail(ctx, in.Email); err == nil {
		return RegisterResult{}, domain.Conflictf("Email already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return RegisterResult{}, err
	}
	internship, err := s.store.FindInternshipByTrack(ctx, in.Track)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RegisterResult{}, domain.Validationf("Unknown internship track: %s", in.Track)
		}
		return RegisterResult{}, err
	}
	if !internship.IsActive {
		return RegisterResult{}, domain.Validationf("Internship track %s is not accepting registrations", in.Track)
	}

	now := s.now().UTC()
	if n, err := s.store.ExpirePendingPayments(ctx, in.Email, now.Add(-s.cfg.PendingOrderTTL)); err != nil {
		return RegisterResult{}, err
	} else if n > 0 {
		obs.Info("pending_orders_expired", map[string]any{"email": in.Email, "count": n})
	}

	order, err := s.gateway.CreateOrder(ctx, s.cfg.Amount, s.cfg.Currency, map[string]string{
		"email": in.Email,
		"track": in.Track,
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("%w: create order: %v", domain.ErrUpstream, err)
	}
	p := domain.Payment{
		OrderID:      order.ID,
		Email:        in.Email,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Status:       domain.PaymentCreated,
		Registration: in,
		CreatedAt:    now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return RegisterResult{}, err
	}
	_ = audit.LogEvent(ctx, "account.registered", map[string]any{
		"order_id": order.ID,
		"email":    in.Email,
		"track":    in.Track,
		"gateway":  s.gateway.Name(),
	})
	return RegisterResult{Order: order, Email: in.Email}, nil
}

// ConfirmPayment verifies the client-side confirmation and mints the account.
// Replays of an already confirmed order return the same user_id.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentID, signature string) (Confirmation, error) {
	orderID, paymentID, signature = strings.TrimSpace(orderID), strings.TrimSpace(paymentID), strings.TrimSpace(signature)
	switch {
	case orderID == "":
		return Confirmation{}, domain.Validationf("Missing required field: order_id")
	case paymentID == "":
		return Confirmation{}, domain.Validationf("Missing required field: payment_id")
	case signature == "":
		return Confirmation{}, domain.Validationf("Missing required field: signature")
	}
	if !s.gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		obs.PaymentConfirmations.WithLabelValues("rejected").Inc()
		_ = audit.LogEvent(ctx, "payment.rejected", map[string]any{"order_id": orderID, "payment_id": paymentID, "reason": "signature"})
		return Confirmation{}, domain.Validationf("Payment verification failed: %v", payment.ErrInvalidSignature)
	}
	p, err := s.store.FindPayment(ctx, orderID)
	if err != nil {
		return Confirmation{}, err
	}
	if p.Verified {
		return s.replay(ctx, p, paymentID)
	}
	charge, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: fetch payment: %v", domain.ErrUpstream, err)
	}
	if charge.OrderID != orderID || !charge.Captured {
		obs.PaymentConfirmations.WithLabelValues("rejected").Inc()
		_ = audit.LogEvent(ctx, "payment.rejected", map[string]any{"order_id": orderID, "payment_id": paymentID, "reason": "not_captured", "status": charge.Status})
		return Confirmation{}, domain.Validationf("Payment %s is not captured for order %s", paymentID, orderID)
	}
	return s.complete(ctx, p, paymentID)
}

// HandleWebhook completes orders reported as captured by the gateway.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Confirmation, error) {
	if !s.gateway.VerifyWebhookSignature(payload, signature) {
		obs.PaymentConfirmations.WithLabelValues("rejected").Inc()
		return Confirmation{}, domain.Validationf("Webhook verification failed: %v", payment.ErrInvalidSignature)
	}
	ev, err := s.gateway.ParseWebhook(payload)
	if err != nil {
		return Confirmation{}, domain.Validationf("Malformed webhook payload: %v", err)
	}
	if !ev.Captured || ev.OrderID == "" {
		return Confirmation{Ignored: true}, nil
	}
	p, err := s.store.FindPayment(ctx, ev.OrderID)
	if err != nil {
		return Confirmation{}, err
	}
	if p.Verified {
		return s.replay(ctx, p, ev.PaymentID)
	}
	return s.complete(ctx, p, ev.PaymentID)
}

func (s *Service) replay(ctx context.Context, p domain.Payment, paymentID string) (Confirmation, error) {
	if p.PaymentID != "" && paymentID != "" && p.PaymentID != paymentID {
		obs.PaymentConfirmations.WithLabelValues("rejected").Inc()
		return Confirmation{}, domain.Conflictf("Order %s was already paid with a different payment", p.OrderID)
	}
	obs.PaymentConfirmations.WithLabelValues("replayed").Inc()
	return Confirmation{UserID: p.UserID, Replayed: true}, nil
}

func (s *Service) complete(ctx context.Context, p domain.Payment, paymentID string) (Confirmation, error) {
	password, hash, err := newCredentials()
	if err != nil {
		return Confirmation{}, err
	}
	now := s.now().UTC()
	reg := p.Registration
	acct := domain.Account{
		UserID:        ids.UserID(s.cfg.UserIDPrefix),
		Email:         reg.Email,
		FullName:      reg.FullName,
		WhatsApp:      reg.WhatsApp,
		CollegeName:   reg.CollegeName,
		Track:         reg.Track,
		YearOfStudy:   reg.YearOfStudy,
		PassoutYear:   reg.PassoutYear,
		Status:        domain.StatusActive,
		PaymentID:     paymentID,
		OrderID:       p.OrderID,
		PasswordHash:  hash,
		ProjectStatus: domain.ProjectNotStarted,
		ActivatedAt:   &now,
		ActivatedBy:   "payment",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	got, created, err := s.store.CompletePayment(ctx, p.OrderID, paymentID, acct, now)
	if err != nil {
		return Confirmation{}, err
	}
	if !created {
		obs.PaymentConfirmations.WithLabelValues("replayed").Inc()
		return Confirmation{UserID: got.UserID, Replayed: true}, nil
	}
	obs.PaymentConfirmations.WithLabelValues("confirmed").Inc()
	obs.AccountTransitions.WithLabelValues("payment_activate").Inc()
	_ = audit.LogEvent(ctx, "payment.confirmed", map[string]any{
		"order_id":   p.OrderID,
		"payment_id": paymentID,
		"target":     got.UserID,
		"at":         now,
	})
	s.sendCredentials(mail.CredentialsPayment, got, password, formatAmount(p.Amount, p.Currency))
	return Confirmation{UserID: got.UserID}, nil
}

func (s *Service) sendCredentials(kind mail.CredentialKind, acct domain.Account, password, amount string) {
	msg, err := s.composer.Credentials(kind, acct, password, amount)
	if err != nil {
		obs.Error("mail_render_failed", map[string]any{"user_id": acct.UserID, "kind": string(kind), "error": err})
		return
	}
	s.mailer.Notify(msg)
}

func newCredentials() (password, hash string, err error) {
	password, err = auth.GeneratePassword(PasswordLength)
	if err != nil {
		return "", "", fmt.Errorf("generate password: %w", err)
	}
	hash, err = auth.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return password, hash, nil
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}
