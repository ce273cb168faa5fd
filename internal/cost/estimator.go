// Package cost estimates the advisory price of a send.
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/models"
)

// LongMessageThreshold is the length above which WhatsApp and SMS messages
// are charged at the higher rate.
const LongMessageThreshold = 160

// Estimator computes cost estimates from configured rates.
type Estimator struct {
	emailBase       decimal.Decimal
	emailLengthRate decimal.Decimal
	whatsAppBase    decimal.Decimal
	whatsAppLong    decimal.Decimal
	smsBase         decimal.Decimal
	smsLong         decimal.Decimal
}

// NewEstimator parses the configured rates.
func NewEstimator(r config.Rates) (*Estimator, error) {
	var e Estimator
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"COST_EMAIL_BASE", r.EmailBase, &e.emailBase},
		{"COST_EMAIL_LENGTH_RATE", r.EmailLengthRate, &e.emailLengthRate},
		{"COST_WHATSAPP_BASE", r.WhatsAppBase, &e.whatsAppBase},
		{"COST_WHATSAPP_LONG", r.WhatsAppLong, &e.whatsAppLong},
		{"COST_SMS_BASE", r.SMSBase, &e.smsBase},
		{"COST_SMS_LONG", r.SMSLong, &e.smsLong},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("invalid %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}
	if e.whatsAppLong.LessThan(e.whatsAppBase) || e.smsLong.LessThan(e.smsBase) {
		return nil, fmt.Errorf("long message rates must not be lower than base rates")
	}
	return &e, nil
}

// Estimate returns the advisory cost of sending a message of messageLength
// characters to recipientCount recipients. Negative inputs count as zero.
func (e *Estimator) Estimate(ch models.Channel, recipientCount, messageLength int) decimal.Decimal {
	if recipientCount < 0 {
		recipientCount = 0
	}
	if messageLength < 0 {
		messageLength = 0
	}
	n := decimal.NewFromInt(int64(recipientCount))
	switch ch {
	case models.ChannelEmail:
		kb := decimal.NewFromInt(int64((messageLength + 999) / 1000))
		return n.Mul(e.emailBase.Add(kb.Mul(e.emailLengthRate)))
	case models.ChannelWhatsApp:
		return n.Mul(pick(messageLength, e.whatsAppBase, e.whatsAppLong))
	case models.ChannelSMS:
		return n.Mul(pick(messageLength, e.smsBase, e.smsLong))
	}
	return decimal.Zero
}

func pick(length int, base, long decimal.Decimal) decimal.Decimal {
	if length > LongMessageThreshold {
		return long
	}
	return base
}

// Segments returns how many 160-character SMS segments a message needs.
func Segments(messageLength int) int {
	if messageLength <= 0 {
		return 0
	}
	if messageLength <= LongMessageThreshold {
		return 1
	}
	// concatenated segments carry a 7 character header
	return (messageLength + 152) / 153
}
