package intasend

import (
	"strings"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
)

const countryCode = "254"

// FormatPhone renders a subscriber number in the 2547XXXXXXXX form IntaSend
// expects: non-digits are dropped, a leading 0 becomes 254, and 254 is
// prefixed when missing.
func FormatPhone(phone string) string {
	digits := common.DigitsOnly(phone)
	if strings.HasPrefix(digits, "0") {
		digits = countryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return digits
}
