package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/Stealph7/AgriConnect/internal/config"
)

// Provider sends one text message to one phone number.
type Provider interface {
	Send(ctx context.Context, phone, text string) error
}

// NewProvider builds the provider named in the config.
func NewProvider(cfg config.SMSConfig) (Provider, error) {
	switch cfg.Provider {
	case "orange":
		return NewOrangeProvider(cfg), nil
	case "mtn":
		return NewMTNProvider(cfg), nil
	case "moov":
		return NewMoovProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}

// normalizePhone strips formatting and prefixes the Ivorian country code when
// the number is a bare 8-digit local one.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 8 {
		return "225" + digits
	}
	return digits
}
