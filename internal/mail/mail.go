package mail

import (
	"context"
	"errors"
	"strings"
)

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Validate checks the minimum a relay needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mail: subject is required")
	}
	if m.HTML == "" && m.Text == "" && len(m.Attachments) == 0 {
		return errors.New("mail: message has no content")
	}
	return nil
}

// Relay delivers messages to an email provider.
type Relay interface {
	Send(ctx context.Context, msg Message) error
}
