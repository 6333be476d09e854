// Package phone validates and normalizes customer phone numbers.
package phone

import (
	"errors"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalid = errors.New("invalid phone number for the specified region")

// Normalize parses raw against defaultRegion (ISO 3166-1 alpha-2, e.g. "IT")
// and returns the number in E.164 form.
func Normalize(raw, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
