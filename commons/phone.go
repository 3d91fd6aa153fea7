// SPDX-License-Identifier: GPL-3.0-only

package commons

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var (
	identityPattern = regexp.MustCompile(`^\+\d{10,15}$`)
	nonDigits       = regexp.MustCompile(`\D`)
)

// NormalizeIdentity brings a raw phone number into canonical +<countrycode><digits>
// form. Numbers without a country prefix are resolved against DEFAULT_REGION.
func NormalizeIdentity(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if parsed, err := phonenumbers.Parse(trimmed, GetEnv("DEFAULT_REGION", "ID")); err == nil && phonenumbers.IsValidNumber(parsed) {
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}

	digits := nonDigits.ReplaceAllString(trimmed, "")
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return "+" + digits
}

// ValidateIdentity reports whether phone is in canonical form: a '+' followed
// by 10 to 15 digits.
func ValidateIdentity(phone string) bool {
	return identityPattern.MatchString(phone)
}
