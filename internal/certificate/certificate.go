package certificate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vedarc.org/internal/audit"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/filestore"
	"vedarc.org/internal/ids"
	"vedarc.org/internal/mail"
	"vedarc.org/internal/obs"
)

// Store records issued credentials.
type Store interface {
	FindAccount(ctx context.Context, userID string) (domain.Account, error)
	// CreateCertificate fails with ErrConflict when the student already holds
	// a credential of the same type.
	CreateCertificate(ctx context.Context, c domain.Certificate) error
	ListCertificates(ctx context.Context, userID string) ([]domain.Certificate, error)
	FindCertificateByCode(ctx context.Context, code string) (domain.Certificate, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, title, content, priority string) (domain.Notification, error)
}

type Mailer interface {
	Notify(msg mail.Message)
}

type Config struct {
	Company     string
	CodePrefix  string
	ManagerName string
}

// Service issues and verifies credentials. It reads gate state but never changes it.
type Service struct {
	store    Store
	renderer Renderer
	files    filestore.Store
	notes    Notifier
	mailer   Mailer
	composer mail.Composer
	cfg      Config
	now      func() time.Time
}

func NewService(store Store, renderer Renderer, files filestore.Store, notes Notifier, mailer Mailer, cfg Config) *Service {
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = "CERT"
	}
	if cfg.ManagerName == "" {
		cfg.ManagerName = "Program Manager"
	}
	return &Service{
		store:    store,
		renderer: renderer,
		files:    files,
		notes:    notes,
		mailer:   mailer,
		composer: mail.Composer{Company: cfg.Company},
		cfg:      cfg,
		now:      time.Now,
	}
}

// Issue renders, stores and records the credential of typ for an unlocked student.
func (s *Service) Issue(ctx context.Context, userID string, typ domain.CertificateType) (domain.Certificate, error) {
	acct, err := s.store.FindAccount(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.Certificate{}, err
	}
	if acct.Status != domain.StatusActive {
		return domain.Certificate{}, domain.Conflictf("Credentials can only be issued to active students")
	}
	unlocked := acct.CertificateUnlocked
	if typ == domain.CertificateLOR {
		unlocked = acct.LORUnlocked
	}
	if !unlocked {
		return domain.Certificate{}, domain.Conflictf("%s is not unlocked for %s", typ.DisplayName(), acct.UserID)
	}
	existing, err := s.store.ListCertificates(ctx, acct.UserID)
	if err != nil {
		return domain.Certificate{}, err
	}
	for _, c := range existing {
		if c.Type == typ {
			return domain.Certificate{}, domain.Conflictf("%s has already been issued for this student", typ.DisplayName())
		}
	}

	now := s.now().UTC()
	code := ids.Code(s.cfg.CodePrefix)
	doc, err := s.renderer.Render(typ, Placeholders{
		StudentName:    acct.FullName,
		TrackName:      acct.Track,
		CompletionDate: now.Format("02 January 2006"),
		ManagerName:    s.cfg.ManagerName,
		UserID:         acct.UserID,
		CompanyName:    s.cfg.Company,
		Code:           code,
	})
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("render %s: %w", typ, err)
	}
	filename := fmt.Sprintf("%s-%s.png", acct.UserID, typ)
	url, err := s.files.Store(ctx, doc, filestore.Meta{Folder: "certificates/" + string(typ), Filename: filename, ContentType: "image/png"})
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("%w: store %s: %v", domain.ErrUpstream, typ, err)
	}
	cert := domain.Certificate{
		ID:       ids.New(),
		Code:     code,
		UserID:   acct.UserID,
		FullName: acct.FullName,
		Track:    acct.Track,
		Type:     typ,
		URL:      url,
		IssuedAt: now,
		IssuedBy: audit.Actor(ctx),
	}
	if err := s.store.CreateCertificate(ctx, cert); err != nil {
		return domain.Certificate{}, err
	}
	_ = audit.LogEvent(ctx, "certificate.issued", map[string]any{
		"target":           acct.UserID,
		"certificate_type": string(typ),
		"certificate_code": code,
	})

	if s.notes != nil {
		if _, err := s.notes.Notify(ctx, acct.UserID, typ.DisplayName()+" Issued", "Your "+typ.DisplayName()+" is ready to download.", "high"); err != nil {
			obs.Warn("notification_failed", map[string]any{"user_id": acct.UserID, "error": err})
		}
	}
	if s.mailer != nil {
		msg, err := s.composer.CredentialIssued(acct, cert, &mail.Attachment{Filename: filename, ContentType: "image/png", Data: doc})
		if err != nil {
			obs.Error("mail_render_failed", map[string]any{"user_id": acct.UserID, "error": err})
		} else {
			s.mailer.Notify(msg)
		}
	}
	return cert, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Certificate, error) {
	return s.store.ListCertificates(ctx, userID)
}

// Verify looks up a credential by its public code.
func (s *Service) Verify(ctx context.Context, code string) (domain.Certificate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Certificate{}, domain.Validationf("certificate code is required")
	}
	return s.store.FindCertificateByCode(ctx, code)
}
