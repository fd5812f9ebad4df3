package utils

import "testing"

func TestFormatMinor(t *testing.T) {
	tests := []struct {
		minor    int64
		currency string
		want     string
	}{
		{0, "INR", "INR 0.00"},
		{5, "INR", "INR 0.05"},
		{500000, "INR", "INR 5,000.00"},
		{123456789, "USD", "USD 1,234,567.89"},
		{-300000, "INR", "INR -3,000.00"},
		{1999, "", "19.99"},
	}
	for _, tt := range tests {
		if got := FormatMinor(tt.minor, tt.currency); got != tt.want {
			t.Errorf("FormatMinor(%d, %q) = %q, want %q", tt.minor, tt.currency, got, tt.want)
		}
	}
}
