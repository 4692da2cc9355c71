// Package phone normalizes phone numbers to the E.164 digit form the
// messaging provider expects ("5511999999999", no leading plus).
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "BR"

// NormalizeE164 parses and validates a raw number and returns E.164
// digits without the plus prefix. Numbers without a leading plus are
// parsed against region; as a fallback a bare international number
// ("5511...") is retried with a plus prepended.
func NormalizeE164(raw, region string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("phone number is empty")
	}
	if region == "" {
		region = DefaultRegion
	}

	var (
		num *phonenumbers.PhoneNumber
		err error
	)
	if strings.HasPrefix(s, "+") {
		num, err = phonenumbers.Parse(s, "")
	} else {
		num, err = phonenumbers.Parse(s, region)
		if err != nil {
			num, err = phonenumbers.Parse("+"+s, "")
		}
	}
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q for region %s", raw, region)
	}

	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

// FormatDisplay renders a stored number for humans (international
// grouping). Returns the input unchanged when it cannot be parsed.
func FormatDisplay(stored string, region string) string {
	s := strings.TrimSpace(stored)
	if s == "" {
		return s
	}
	if region == "" {
		region = DefaultRegion
	}
	if !strings.HasPrefix(s, "+") && len(s) > 10 {
		s = "+" + s
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return stored
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
}
