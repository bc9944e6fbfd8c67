package destination

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		raw     string
		country string
		code    string
		to      string
	}{
		{"+255716000000", "TZ", "255", "+255716000000"},
		{"+255 685 111 111", "TZ", "255", "+255685111111"},
		{"+14155552671", "US", "1", "+14155552671"},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			dest, err := Resolve(tc.raw)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.raw, err)
			}
			if dest.Country != tc.country {
				t.Errorf("country: got %q, want %q", dest.Country, tc.country)
			}
			if dest.Code != tc.code {
				t.Errorf("code: got %q, want %q", dest.Code, tc.code)
			}
			if dest.To != tc.to {
				t.Errorf("to: got %q, want %q", dest.To, tc.to)
			}
		})
	}
}

func TestResolveInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "not-a-number", "+999123", "12345"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Resolve(raw)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Resolve(%q): expected ErrInvalidAddress, got %v", raw, err)
			}
		})
	}
}
