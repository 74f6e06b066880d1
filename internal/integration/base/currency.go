package base

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents lists currencies whose minor unit is not 1/100
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"KWD": 3,
	"BHD": 3,
	"JOD": 3,
	"OMR": 3,
	"TND": 3,
}

// CurrencyExponent returns the number of minor unit digits of currency
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMajor converts minor units to a major unit amount, e.g. 1050 USD -> 10.50
func ToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -CurrencyExponent(currency))
}

// FromMajor converts a major unit amount to minor units, rounding half away from zero
func FromMajor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}
