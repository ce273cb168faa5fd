package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/recipient"
	"notification-dispatch/pkg/sms"
)

// Phone delivers text messages to phone numbers (WhatsApp or SMS) through an
// sms.Sender, one request per recipient, under a shared rate limit.
type Phone struct {
	ch          models.Channel
	sender      sms.Sender
	limiter     *rate.Limiter
	countryCode string
	logger      *logging.Logger
}

// NewPhone builds a phone adapter. ratePerSecond <= 0 disables rate limiting.
func NewPhone(ch models.Channel, sender sms.Sender, ratePerSecond int, countryCode string, logger *logging.Logger) *Phone {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond)
	}
	return &Phone{ch: ch, sender: sender, limiter: limiter, countryCode: countryCode, logger: logger}
}

func (p *Phone) Channel() models.Channel { return p.ch }

func (p *Phone) Transmit(ctx context.Context, msg Message) []Outcome {
	body := msg.Body
	if msg.Subject != "" {
		body = msg.Subject + "\n" + msg.Body
	}

	out := make([]Outcome, len(msg.Recipients))
	for i, to := range msg.Recipients {
		out[i] = Outcome{Recipient: to}
		if err := p.limiter.Wait(ctx); err != nil {
			out[i].Status, out[i].Error = models.OutcomeFailed, fmt.Sprintf("%s rate limit: %v", p.ch, err)
			continue
		}
		id, err := p.sender.Send(ctx, recipient.ToE164(to, p.countryCode), body)
		if err != nil {
			p.logger.Errorf("%s to %s failed: %v", p.ch, p.logger.Contact(to), err)
			out[i].Status, out[i].Error = models.OutcomeFailed, truncate(err.Error(), maxErrorLen)
			continue
		}
		out[i].Status, out[i].ProviderID = models.OutcomeSent, id
	}
	return out
}
