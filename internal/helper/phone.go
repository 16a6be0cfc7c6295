package helper

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

var (
	phoneChars = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	nonDigits  = regexp.MustCompile(`[^\d]`)
)

// FormatPhoneNumber converts an international phone number to a WhatsApp JID.
func FormatPhoneNumber(phone string) (types.JID, error) {
	if !phoneChars.MatchString(phone) {
		return types.JID{}, fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := nonDigits.ReplaceAllString(phone, "")

	// E.164 without the plus: country code + subscriber number.
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return types.JID{}, fmt.Errorf("invalid phone number length")
	}
	if strings.HasPrefix(cleaned, "0") {
		return types.JID{}, fmt.Errorf("phone number must include a country code")
	}

	return types.JID{
		User:   cleaned,
		Server: types.DefaultUserServer,
	}, nil
}

// NormalizeTarget accepts either a full JID (individual or group, anything
// with an @server part) or a bare phone number, and returns the JID string
// to dispatch to.
func NormalizeTarget(target string) (string, error) {
	if strings.Contains(target, "@") {
		jid, err := types.ParseJID(target)
		if err != nil {
			return "", fmt.Errorf("invalid target jid: %w", err)
		}
		return jid.String(), nil
	}

	jid, err := FormatPhoneNumber(target)
	if err != nil {
		return "", err
	}
	return jid.String(), nil
}
