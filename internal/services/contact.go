// Package services – contact handling
//
// Channel normalization, contact validation, and contact masking. Validation
// rules are deliberately simple format checks: the channel's delivery vendor
// is the real arbiter of deliverability.
package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

var (
	// emailRE accepts anything shaped local@domain.tld without whitespace.
	emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// phoneRE accepts a leading + or digit followed by at least six more
	// digits or common separators.
	phoneRE = regexp.MustCompile(`^[+\d][\d\s\-().]{6,}$`)
)

// NormalizeChannel maps a free-form channel string to a demand channel.
// SMS and PHONE are aliases for WHATSAPP, which rides the SMS capability.
func NormalizeChannel(channel string) (domain.Channel, error) {
	switch strings.ToUpper(strings.TrimSpace(channel)) {
	case "EMAIL":
		return domain.ChannelEmail, nil
	case "WHATSAPP", "SMS", "PHONE":
		return domain.ChannelWhatsApp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
}

// ValidateContact checks a contact string against its channel's format rule.
func ValidateContact(contact string, channel domain.Channel) error {
	switch channel {
	case domain.ChannelEmail:
		if !emailRE.MatchString(contact) {
			return fmt.Errorf("%w: invalid email address", ErrInvalidContact)
		}
		return nil
	case domain.ChannelWhatsApp:
		if !phoneRE.MatchString(contact) {
			return fmt.Errorf("%w: invalid phone number", ErrInvalidContact)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
}

// MaskContact obscures a contact for merchant-facing views. Emails keep the
// first two characters of the local part and the domain; phones keep the
// prefix and last four digits.
func MaskContact(contact string, channel domain.Channel) string {
	if channel == domain.ChannelEmail {
		return maskEmail(contact)
	}
	return maskPhone(contact)
}

// maskEmail turns john.doe@example.com into jo***@example.com.
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	local, dom := email[:at], email[at+1:]
	if len(local) <= 2 {
		return local[:1] + "***@" + dom
	}
	return local[:2] + "***@" + dom
}

// maskPhone turns +1234567890 into +123456***7890.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***" + phone
	}
	return phone[:len(phone)-4] + "***" + phone[len(phone)-4:]
}

// NormalizeShopDomain canonicalizes a storefront domain: scheme and trailing
// slash stripped, ".myshopify.com" suffix enforced, lowercased.
func NormalizeShopDomain(d string) string {
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimSuffix(d, "/")
	d = strings.ToLower(d)
	if !strings.HasSuffix(d, ".myshopify.com") {
		d += ".myshopify.com"
	}
	return d
}
