// Package destination resolves raw phone numbers into E.164 destinations
// with country metadata.
package destination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/nyotafm/smsgate/internal/domain"
)

// ErrInvalidAddress indicates a recipient address that cannot be parsed into
// a dialable number.
var ErrInvalidAddress = errors.New("invalid destination address")

// Resolve parses a raw phone number and returns its canonical destination.
// Numbers must be in international format; there is no default region to
// infer a country from.
func Resolve(raw string) (*domain.Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return nil, fmt.Errorf("%w: %q is not dialable", ErrInvalidAddress, raw)
	}

	return &domain.Destination{
		Country: phonenumbers.GetRegionCodeForNumber(num),
		Code:    strconv.Itoa(int(num.GetCountryCode())),
		To:      phonenumbers.Format(num, phonenumbers.E164),
	}, nil
}
