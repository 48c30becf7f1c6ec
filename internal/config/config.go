package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at start-up and passed to every component.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	Version  string
	Commit   string

	PGDSN     string
	RedisAddr string

	AuthSecret      string
	TokenTTL        time.Duration
	SessionTTL      time.Duration
	SessionRequired bool
	SweepSchedule   string
	RecalcSchedule  string

	UserIDPrefix    string
	CompanyName     string
	PaymentProvider string
	PaymentAmount   int64
	PaymentCurrency string
	PendingOrderTTL time.Duration

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	MidtransServerKey     string
	MidtransProduction    bool
	GatewayTimeout        time.Duration

	MailProvider   string
	SendGridAPIKey string
	MailFrom       string
	MailFromName   string
	MailTimeout    time.Duration

	FileStore       string
	FileStoreDir    string
	FileBaseURL     string
	OSSEndpoint     string
	OSSAccessKey    string
	OSSSecretKey    string
	OSSBucket       string
	CertTemplate    string
	CertCodePrefix  string
	ManagerName     string
	RateLimitBurst  int
	RateLimitPerSec int
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	c := Config{
		HTTPAddr: getenv("VEDARC_HTTP_ADDR", ":8080"),
		GRPCAddr: getenv("VEDARC_GRPC_ADDR", ":9090"),
		Version:  getenv("VEDARC_VERSION", "dev"),
		Commit:   getenv("VEDARC_COMMIT", "unknown"),

		PGDSN:     os.Getenv("VEDARC_PG_DSN"),
		RedisAddr: os.Getenv("VEDARC_REDIS_ADDR"),

		AuthSecret:      os.Getenv("VEDARC_AUTH_SECRET"),
		TokenTTL:        getenvDuration("VEDARC_TOKEN_TTL", 24*time.Hour),
		SessionTTL:      getenvDuration("VEDARC_SESSION_TTL", 24*time.Hour),
		SessionRequired: getenvBool("VEDARC_SESSION_REQUIRED", false),
		SweepSchedule:   getenv("VEDARC_SWEEP_SCHEDULE", "@every 15m"),
		RecalcSchedule:  getenv("VEDARC_RECALC_SCHEDULE", "@daily"),

		UserIDPrefix:    getenv("VEDARC_USER_ID_PREFIX", "VEDARC"),
		CompanyName:     getenv("VEDARC_COMPANY_NAME", "VEDARC"),
		PaymentProvider: strings.ToLower(getenv("VEDARC_PAYMENT_PROVIDER", "razorpay")),
		PaymentAmount:   getenvInt64("VEDARC_PAYMENT_AMOUNT", 29900),
		PaymentCurrency: strings.ToUpper(getenv("VEDARC_PAYMENT_CURRENCY", "INR")),
		PendingOrderTTL: getenvDuration("VEDARC_PENDING_ORDER_TTL", 30*time.Minute),

		RazorpayKeyID:         os.Getenv("VEDARC_RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("VEDARC_RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("VEDARC_RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       getenv("VEDARC_RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		MidtransServerKey:     os.Getenv("VEDARC_MIDTRANS_SERVER_KEY"),
		MidtransProduction:    getenvBool("VEDARC_MIDTRANS_PRODUCTION", false),
		GatewayTimeout:        getenvDuration("VEDARC_GATEWAY_TIMEOUT", 10*time.Second),

		MailProvider:   strings.ToLower(getenv("VEDARC_MAIL_PROVIDER", "log")),
		SendGridAPIKey: os.Getenv("VEDARC_SENDGRID_API_KEY"),
		MailFrom:       getenv("VEDARC_MAIL_FROM", "no-reply@vedarc.co.in"),
		MailFromName:   getenv("VEDARC_MAIL_FROM_NAME", "VEDARC Internships"),
		MailTimeout:    getenvDuration("VEDARC_MAIL_TIMEOUT", 15*time.Second),

		FileStore:       strings.ToLower(getenv("VEDARC_FILESTORE", "local")),
		FileStoreDir:    getenv("VEDARC_FILESTORE_DIR", "var/files"),
		FileBaseURL:     getenv("VEDARC_FILE_BASE_URL", "http://localhost:8080/files"),
		OSSEndpoint:     os.Getenv("VEDARC_OSS_ENDPOINT"),
		OSSAccessKey:    os.Getenv("VEDARC_OSS_ACCESS_KEY"),
		OSSSecretKey:    os.Getenv("VEDARC_OSS_SECRET_KEY"),
		OSSBucket:       os.Getenv("VEDARC_OSS_BUCKET"),
		CertTemplate:    os.Getenv("VEDARC_CERT_TEMPLATE"),
		CertCodePrefix:  getenv("VEDARC_CERT_CODE_PREFIX", "VED"),
		ManagerName:     getenv("VEDARC_MANAGER_NAME", "Internship Manager"),
		RateLimitBurst:  int(getenvInt64("VEDARC_RATE_BURST", 40)),
		RateLimitPerSec: int(getenvInt64("VEDARC_RATE_PER_SEC", 20)),
	}
	return c, c.Validate()
}

// Validate reports every missing or inconsistent key at once.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AuthSecret) == "" {
		problems = append(problems, "VEDARC_AUTH_SECRET is required")
	}
	if c.PaymentAmount <= 0 {
		problems = append(problems, "VEDARC_PAYMENT_AMOUNT must be positive")
	}
	switch c.PaymentProvider {
	case "razorpay":
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			problems = append(problems, "VEDARC_RAZORPAY_KEY_ID and VEDARC_RAZORPAY_KEY_SECRET are required for razorpay")
		}
	case "midtrans":
		if c.MidtransServerKey == "" {
			problems = append(problems, "VEDARC_MIDTRANS_SERVER_KEY is required for midtrans")
		}
	case "sandbox":
	default:
		problems = append(problems, fmt.Sprintf("unknown VEDARC_PAYMENT_PROVIDER %q", c.PaymentProvider))
	}
	switch c.MailProvider {
	case "log":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			problems = append(problems, "VEDARC_SENDGRID_API_KEY is required for sendgrid")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown VEDARC_MAIL_PROVIDER %q", c.MailProvider))
	}
	switch c.FileStore {
	case "local":
	case "oss":
		if c.OSSEndpoint == "" || c.OSSBucket == "" {
			problems = append(problems, "VEDARC_OSS_ENDPOINT and VEDARC_OSS_BUCKET are required for oss")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown VEDARC_FILESTORE %q", c.FileStore))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(problems, "; "))
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
