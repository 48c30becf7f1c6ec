package mail

import (
	"context"

	"vedarc.org/internal/obs"
)

// LogRelay writes message metadata to the structured log instead of sending.
type LogRelay struct{}

func (LogRelay) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	obs.Info("mail_logged", map[string]any{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	})
	return nil
}
