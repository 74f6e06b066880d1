package base

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMajor(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		want     string
	}{
		{"two decimals", 1050, "USD", "10.5"},
		{"lower case code", 99, "inr", "0.99"},
		{"zero decimals", 1500, "JPY", "1500"},
		{"three decimals", 12345, "KWD", "12.345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMajor(tt.amount, tt.currency).String())
		})
	}
}

func TestFromMajor(t *testing.T) {
	assert.Equal(t, int64(1050), FromMajor(decimal.RequireFromString("10.50"), "USD"))
	assert.Equal(t, int64(1051), FromMajor(decimal.RequireFromString("10.505"), "USD"))
	assert.Equal(t, int64(1500), FromMajor(decimal.RequireFromString("1500"), "JPY"))
	assert.Equal(t, int64(12345), FromMajor(decimal.RequireFromString("12.345"), "BHD"))
}
