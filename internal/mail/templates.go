package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"vedarc.org/internal/domain"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var parsed = template.Must(template.ParseFS(templateFS, "templates/*.gohtml"))

// CredentialKind selects the wording of a credentials email.
type CredentialKind string

const (
	CredentialsPayment     CredentialKind = "payment"
	CredentialsActivated   CredentialKind = "activated"
	CredentialsReactivated CredentialKind = "reactivated"
	CredentialsReset       CredentialKind = "reset"
)

// Composer renders the transactional emails of the platform.
type Composer struct {
	Company string
}

// Credentials renders the message carrying a freshly generated password.
func (c Composer) Credentials(kind CredentialKind, acct domain.Account, password, amount string) (Message, error) {
	var subject, intro string
	switch kind {
	case CredentialsPayment:
		subject = fmt.Sprintf("Payment Successful - %s Internship (Invoice & Credentials)", c.Company)
		intro = "Thank you for your payment. Your internship account is active."
	case CredentialsActivated:
		subject = fmt.Sprintf("%s Internship Account Activated", c.Company)
		intro = "Your internship account has been activated by HR."
	case CredentialsReactivated:
		subject = fmt.Sprintf("%s Internship Account Re-activated", c.Company)
		intro = "Your internship account has been re-activated. Your previous password no longer works."
	case CredentialsReset:
		subject = fmt.Sprintf("%s Internship Password Reset", c.Company)
		intro = "HR has reset your password."
	default:
		return Message{}, fmt.Errorf("mail: unknown credential kind %q", kind)
	}
	data := map[string]any{
		"Company":  c.Company,
		"Name":     acct.FullName,
		"Intro":    intro,
		"UserID":   acct.UserID,
		"Password": password,
		"Track":    acct.Track,
		"Amount":   "",
	}
	if kind == CredentialsPayment {
		data["PaymentID"] = acct.PaymentID
		data["OrderID"] = acct.OrderID
		data["Amount"] = amount
	}
	return c.render("credentials.gohtml", acct.Email, acct.FullName, subject, data)
}

// Disabled notifies the owner that the account was switched off.
func (c Composer) Disabled(acct domain.Account, reason string) (Message, error) {
	return c.render("account_disabled.gohtml", acct.Email, acct.FullName,
		fmt.Sprintf("%s Internship Account Disabled", c.Company),
		map[string]any{"Company": c.Company, "Name": acct.FullName, "UserID": acct.UserID, "Reason": reason})
}

// Deleted notifies the former owner of a purged account.
func (c Composer) Deleted(acct domain.Account, reason string) (Message, error) {
	return c.render("account_deleted.gohtml", acct.Email, acct.FullName,
		fmt.Sprintf("%s Internship Account Deleted", c.Company),
		map[string]any{"Company": c.Company, "Name": acct.FullName, "UserID": acct.UserID, "Reason": reason})
}

// CredentialIssued announces a generated certificate or LOR, optionally attaching the document.
func (c Composer) CredentialIssued(acct domain.Account, cert domain.Certificate, doc *Attachment) (Message, error) {
	msg, err := c.render("credential_issued.gohtml", acct.Email, acct.FullName,
		fmt.Sprintf("Your %s from %s", cert.Type.DisplayName(), c.Company),
		map[string]any{
			"Company":    c.Company,
			"Name":       acct.FullName,
			"Credential": cert.Type.DisplayName(),
			"Track":      cert.Track,
			"Link":       cert.URL,
			"Code":       cert.Code,
		})
	if err != nil {
		return Message{}, err
	}
	if doc != nil {
		msg.Attachments = append(msg.Attachments, *doc)
	}
	return msg, nil
}

func (c Composer) render(name, to, toName, subject string, data map[string]any) (Message, error) {
	var buf bytes.Buffer
	if err := parsed.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", name, err)
	}
	return Message{To: to, ToName: toName, Subject: subject, HTML: buf.String()}, nil
}
