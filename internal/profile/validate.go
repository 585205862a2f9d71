package profile

import (
	"fmt"
	"regexp"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidateAccount checks that account is an E.164 phone number.
func ValidateAccount(account string) error {
	if !e164.MatchString(account) {
		return fmt.Errorf("invalid account %q: must be an E.164 number like +15551234567", account)
	}
	return nil
}
