// Package recipient validates and normalizes contact strings per channel.
package recipient

import (
	"fmt"
	"regexp"
	"strings"

	"notification-dispatch/internal/models"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// DefaultPhonePattern matches Turkish mobile numbers.
const DefaultPhonePattern = `^(\+90|0)?5\d{9}$`

// Validator checks recipients against the syntax rule of each channel.
type Validator struct {
	phone *regexp.Regexp
}

// NewValidator compiles the national phone pattern. An empty pattern uses
// DefaultPhonePattern.
func NewValidator(phonePattern string) (*Validator, error) {
	if phonePattern == "" {
		phonePattern = DefaultPhonePattern
	}
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid phone pattern: %w", err)
	}
	return &Validator{phone: re}, nil
}

// Normalize returns the canonical form of a contact and whether it is valid
// for the channel.
func (v *Validator) Normalize(ch models.Channel, raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	switch ch {
	case models.ChannelEmail:
		return s, emailRegex.MatchString(s)
	case models.ChannelWhatsApp, models.ChannelSMS:
		p := NormalizePhone(s)
		return p, p != "" && v.phone.MatchString(p)
	case models.ChannelWeb:
		return s, s != "" && !strings.ContainsAny(s, " \t\r\n")
	}
	return s, false
}

// Partition splits recipients into accepted (normalized, input order) and
// rejected.
func (v *Validator) Partition(ch models.Channel, recipients []string) ([]string, []models.Rejection) {
	accepted := make([]string, 0, len(recipients))
	rejected := make([]models.Rejection, 0)
	for _, r := range recipients {
		if n, ok := v.Normalize(ch, r); ok {
			accepted = append(accepted, n)
			continue
		}
		rejected = append(rejected, models.Rejection{Recipient: r, Reason: models.ReasonInvalidFormat})
	}
	return accepted, rejected
}

// NormalizePhone strips everything but digits, keeping a leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToE164 converts a national number to E.164 using the given country code,
// e.g. "05551234567" with "90" becomes "+905551234567".
func ToE164(phone, countryCode string) string {
	p := NormalizePhone(phone)
	switch {
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, "00"):
		return "+" + p[2:]
	case strings.HasPrefix(p, countryCode) && len(p) > 10:
		return "+" + p
	case strings.HasPrefix(p, "0"):
		return "+" + countryCode + p[1:]
	}
	return "+" + countryCode + p
}
