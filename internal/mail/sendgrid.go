package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGrid delivers through the SendGrid v3 API.
type SendGrid struct {
	key  string
	host string
	from *sgmail.Email
}

// SendGridOption customises the relay.
type SendGridOption func(*SendGrid)

// WithSendGridHost points the relay at another API host.
func WithSendGridHost(host string) SendGridOption {
	return func(s *SendGrid) {
		if host != "" {
			s.host = host
		}
	}
}

// NewSendGrid builds a relay for the given API key and sender.
func NewSendGrid(apiKey, fromName, fromEmail string, opts ...SendGridOption) *SendGrid {
	s := &SendGrid{
		key:  apiKey,
		host: sendGridHost,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts the message. The SDK call has no context, so the request runs
// in its own goroutine and Send returns as soon as ctx is done.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	done := make(chan error, 1)
	go func() {
		res, err := sendgrid.API(req)
		switch {
		case err != nil:
			done <- fmt.Errorf("sendgrid: %w", err)
		case res.StatusCode >= http.StatusBadRequest:
			done <- fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
		default:
			done <- nil
		}
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sendgrid: %w", ctx.Err())
	}
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}
