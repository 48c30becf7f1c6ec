package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"vedarc.org/internal/account"
	"vedarc.org/internal/auth"
	"vedarc.org/internal/certificate"
	"vedarc.org/internal/config"
	"vedarc.org/internal/filestore"
	"vedarc.org/internal/gates"
	"vedarc.org/internal/httpapi"
	"vedarc.org/internal/internship"
	"vedarc.org/internal/jobs"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/notification"
	"vedarc.org/internal/obs"
	"vedarc.org/internal/payment"
	"vedarc.org/internal/project"
	"vedarc.org/internal/session"
	"vedarc.org/internal/store/memory"
	"vedarc.org/internal/store/pg"
	"vedarc.org/internal/stream"
	"vedarc.org/internal/submission"
)

// backend: всё, что сервисы ждут от хранилища.
type backend interface {
	account.Store
	session.Store
	gates.Store
	submission.Store
	project.Store
	internship.Store
	notification.Store
	certificate.Store
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	// Хранилище: Postgres, если задан DSN, иначе in-memory для локального запуска
	var store backend
	var closeStore func() error
	if cfg.PGDSN != "" {
		pgs, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		// sql.Open ленивый: проверяем соединение до старта серверов
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = pgs.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = pgs.Close()
			log.Fatalf("ping db: %v", err)
		}
		store, closeStore = pgs, pgs.Close
	} else {
		obs.Warn("memory_store", map[string]any{"reason": "VEDARC_PG_DSN not set, data will not survive restart"})
		store, closeStore = memory.New(), func() error { return nil }
	}

	probe := httpapi.ReadyProbe{Store: store}
	sessionOpts := []session.Option{session.WithTTL(cfg.SessionTTL)}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache := session.NewRedisCache(rdb)
		sessionOpts = append(sessionOpts, session.WithCache(cache))
		probe.Cache = cache
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.TokenTTL, auth.WithIssuer("vedarc"))
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		log.Fatalf("payment: %v", err)
	}

	var relay mail.Relay = mail.LogRelay{}
	if cfg.MailProvider == "sendgrid" {
		relay = mail.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom)
	}
	mailer := mail.NewNotifier(relay, cfg.MailTimeout)

	var files filestore.Store
	var filesHandler http.Handler
	switch cfg.FileStore {
	case "oss":
		oss, err := filestore.NewOSS(filestore.OSSConfig{
			Endpoint:        cfg.OSSEndpoint,
			AccessKeyID:     cfg.OSSAccessKey,
			AccessKeySecret: cfg.OSSSecretKey,
			Bucket:          cfg.OSSBucket,
			Prefix:          "certificates",
		})
		if err != nil {
			log.Fatalf("filestore: %v", err)
		}
		files = oss
	default:
		local, err := filestore.NewLocal(cfg.FileStoreDir, cfg.FileBaseURL)
		if err != nil {
			log.Fatalf("filestore: %v", err)
		}
		files, filesHandler = local, local.Handler()
	}

	renderer, err := certificate.NewImageRenderer(cfg.CertTemplate)
	if err != nil {
		log.Fatalf("renderer: %v", err)
	}

	sessions := session.NewService(store, sessionOpts...)
	live := stream.New()
	notes := notification.NewService(store, notification.WithPublisher(live))
	engine := gates.NewEngine(store, notes)
	svc := httpapi.Services{
		Accounts: account.NewService(store, gateway, sessions, tokens, mailer, account.Config{
			UserIDPrefix:    cfg.UserIDPrefix,
			Company:         cfg.CompanyName,
			Amount:          cfg.PaymentAmount,
			Currency:        cfg.PaymentCurrency,
			PendingOrderTTL: cfg.PendingOrderTTL,
		}),
		Sessions:      sessions,
		Tokens:        tokens,
		Gates:         engine,
		Submissions:   submission.NewService(store, engine, notes),
		Projects:      project.NewService(store, notes),
		Internships:   internship.NewService(store),
		Notifications: notes,
		Live:          live,
		Certificates: certificate.NewService(store, renderer, files, notes, mailer, certificate.Config{
			Company:     cfg.CompanyName,
			CodePrefix:  cfg.CertCodePrefix,
			ManagerName: cfg.ManagerName,
		}),
	}

	opts := []httpapi.Option{
		httpapi.WithRateLimit(cfg.RateLimitBurst, cfg.RateLimitPerSec),
		httpapi.WithSessionRequired(cfg.SessionRequired),
	}
	if filesHandler != nil {
		opts = append(opts, httpapi.WithFiles(filesHandler))
	}
	api := httpapi.New(svc, probe, cfg.Version, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(probe)
	health.Register(grpcSrv)
	go health.Watch(baseCtx, 10*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	// Фоновые задачи: чистка сессий и пересчёт прогресса
	scheduler := jobs.New(baseCtx)
	for _, j := range []jobs.Job{
		jobs.SessionSweep(sessions, cfg.SweepSchedule),
		jobs.CompletionRecalc(engine, cfg.RecalcSchedule),
	} {
		if err := scheduler.Add(j); err != nil {
			log.Fatalf("jobs: %v", err)
		}
	}
	scheduler.Start()

	obs.Info("starting", map[string]any{
		"service": "vedarc-api", "version": cfg.Version, "http": srv.Addr, "grpc": cfg.GRPCAddr,
		"payment": gateway.Name(), "mail": cfg.MailProvider, "filestore": cfg.FileStore,
	})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting_down", nil)
	health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	if err := scheduler.Stop(ctx); err != nil {
		obs.Warn("jobs_stop_timeout", map[string]any{"error": err})
	}
	cancelBase()
	mailer.Wait()
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = closeStore()
	obs.Info("stopped", nil)
}

func newGateway(cfg config.Config) (payment.Gateway, error) {
	switch cfg.PaymentProvider {
	case "razorpay":
		return payment.NewRazorpay(payment.RazorpayConfig{
			KeyID:         cfg.RazorpayKeyID,
			KeySecret:     cfg.RazorpayKeySecret,
			WebhookSecret: cfg.RazorpayWebhookSecret,
			BaseURL:       cfg.RazorpayBaseURL,
			Timeout:       cfg.GatewayTimeout,
		}), nil
	case "midtrans":
		return payment.NewMidtrans(payment.MidtransConfig{
			ServerKey:  cfg.MidtransServerKey,
			Production: cfg.MidtransProduction,
			Amount:     cfg.PaymentAmount,
		}), nil
	case "sandbox":
		return payment.NewSandbox(cfg.AuthSecret), nil
	}
	return nil, errors.New("unknown payment provider " + cfg.PaymentProvider)
}
