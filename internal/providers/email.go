package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"gopkg.in/gomail.v2"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/pkg/email"
)

// Email sends one MIME message per recipient through an email.Transport.
type Email struct {
	transport email.Transport
	from     string
	fromName string
	logger   *logging.Logger
}

func NewEmail(transport email.Transport, from, fromName string, logger *logging.Logger) *Email {
	return &Email{transport: transport, from: from, fromName: fromName, logger: logger}
}

func (e *Email) Channel() models.Channel { return models.ChannelEmail }

func (e *Email) Transmit(ctx context.Context, msg Message) []Outcome {
	attachments, err := decodeAttachments(msg.Attachments)
	if err != nil {
		e.logger.Errorf("Notification %s: %v", msg.NotificationID, err)
		return failAll(msg.Recipients, err.Error())
	}

	msgs := make([]*gomail.Message, len(msg.Recipients))
	for i, to := range msg.Recipients {
		msgs[i] = email.Compose(email.Message{
			From:        e.from,
			FromName:    e.fromName,
			To:          to,
			Subject:     msg.Subject,
			Body:        msg.Body,
			Attachments: attachments,
		})
	}

	results := e.transport.Send(ctx, msgs)
	out := make([]Outcome, len(msg.Recipients))
	for i, to := range msg.Recipients {
		out[i] = Outcome{Recipient: to, Status: models.OutcomeSent}
		if i >= len(results) {
			out[i].Status, out[i].Error = models.OutcomeFailed, "no result from transport"
			continue
		}
		if results[i].Err != nil {
			e.logger.Errorf("Email to %s failed: %v", e.logger.Contact(to), results[i].Err)
			out[i].Status, out[i].Error = models.OutcomeFailed, truncate(results[i].Err.Error(), maxErrorLen)
			continue
		}
		out[i].ProviderID = results[i].ID
	}
	return out
}

func decodeAttachments(in []models.Attachment) ([]email.Attachment, error) {
	out := make([]email.Attachment, 0, len(in))
	for _, a := range in {
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, fmt.Errorf("invalid attachment %q: %w", a.Filename, err)
		}
		out = append(out, email.Attachment{Filename: a.Filename, ContentType: a.ContentType, Data: data})
	}
	return out, nil
}
