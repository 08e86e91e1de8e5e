/*
pan.go - PAN sanitization and keyed fingerprinting

PURPOSE:
  Ingest must never persist a raw card number. SanitizePAN collapses any
  incoming representation down to a masked form safe for display and
  logging; PANHash derives a keyed fingerprint of that masked form so two
  transactions referencing the same card can be correlated without ever
  storing (or re-deriving) the original digits.

SEE ALSO:
  - ingest package: calls SanitizePAN/PANHash during normalization
*/
package reconcile

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)
var maskedPattern = regexp.MustCompile(`^[0-9Xx*]+$`)

// SanitizePAN strips whitespace/hyphens from the raw input and returns a
// masked representation:
//   - 12-19 consecutive digits -> first6 + '*'*max(2,len-10) + last4
//   - already a masked pattern of digits/X/* -> uppercase X becomes '*'
//   - anything else -> the stripped string, unchanged
func SanitizePAN(raw string) string {
	stripped := strings.NewReplacer(" ", "", "-", "").Replace(raw)

	if digitsOnly.MatchString(stripped) && len(stripped) >= 12 && len(stripped) <= 19 {
		first6 := stripped[:6]
		last4 := stripped[len(stripped)-4:]
		starCount := len(stripped) - 10
		if starCount < 2 {
			starCount = 2
		}
		return first6 + strings.Repeat("*", starCount) + last4
	}

	if maskedPattern.MatchString(stripped) {
		return strings.ReplaceAll(strings.ToUpper(stripped), "X", "*")
	}

	return stripped
}

// PANHash computes a keyed HMAC-SHA256 fingerprint of the sanitized PAN so
// that equal cards correlate without the hash itself being invertible.
func PANHash(panMasked string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(panMasked))
	return hex.EncodeToString(mac.Sum(nil))
}
