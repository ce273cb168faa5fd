package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/utils"
)

// AlertSender posts an operator alert.
type AlertSender interface {
	Send(ctx context.Context, message string) error
}

// TelegramAlerts forwards failed notifications to an operations chat.
type TelegramAlerts struct {
	sender AlertSender
	logger *logging.Logger
	retry  utils.Policy
}

func NewTelegramAlerts(sender AlertSender, logger *logging.Logger) *TelegramAlerts {
	return &TelegramAlerts{
		sender: sender,
		logger: logger,
		retry:  utils.Policy{Attempts: 3, Delay: time.Second, MaxDelay: 5 * time.Second},
	}
}

// Publish sends an alert for failure events and ignores the rest.
func (t *TelegramAlerts) Publish(ctx context.Context, ev models.Event) error {
	if ev.Type != models.EventFailed {
		return nil
	}
	text := fmt.Sprintf(
		"Notification failed\nID: %s\nChannel: %s\nRecipients: %d\nError: %s\nAt: %s",
		ev.NotificationID,
		ev.Channel,
		ev.Recipients,
		ev.Error,
		ev.At.UTC().Format(time.RFC3339),
	)
	return utils.Retry(ctx, t.logger, t.retry, func() error {
		err := t.sender.Send(ctx, text)
		if err != nil && rejectedByTelegram(err) {
			return utils.Permanent(err)
		}
		return err
	})
}

// rejectedByTelegram reports errors another attempt cannot fix, such as an
// unknown chat.
func rejectedByTelegram(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unauthorized", "forbidden", "chat not found"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
