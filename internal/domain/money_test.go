package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"zero", "0", "0", false},
		{"whole dollars", "10000", "10000", false},
		{"two decimal places", "148.50", "148.5", false},
		{"trailing zeros", "1.100", "1.1", false},
		{"negative", "-1", "", true},
		{"three decimal places", "1.234", "", true},
		{"not a number", "ten", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAmount(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "$0.00"},
		{"14", "$14.00"},
		{"1234.5", "$1,234.50"},
		{"0.005", "$0.01"},
		{"10000", "$10,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := FormatUSD(decimal.RequireFromString(tt.input))
			if got != tt.want {
				t.Errorf("FormatUSD(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProperty_ParseAmountRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 99_999_999_99).Draw(t, "cents")
		want := decimal.New(cents, -2)

		got, err := ParseAmount(want.StringFixed(2))
		if err != nil {
			t.Fatalf("ParseAmount(%s) returned error: %v", want.StringFixed(2), err)
		}
		if !got.Equal(want) {
			t.Fatalf("round-trip failed: %s -> %s", want, got)
		}
	})
}
