package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CURRENCY_CODES_SYMBOLS is a map of 3 digit ISO currency codes to their symbols
var CURRENCY_CODES_SYMBOLS = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"aud": "AU$",
	"cad": "CA$",
	"chf": "CHF",
	"sgd": "S$",
	"jpy": "¥",
	"inr": "₹",
	"krw": "₩",
}

// currencyPrecision holds the minor unit exponent for currencies that do not use 2
var currencyPrecision = map[string]int32{
	"jpy": 0,
	"krw": 0,
	"vnd": 0,
	"clp": 0,
	"bhd": 3,
	"kwd": 3,
	"omr": 3,
}

const DefaultCurrencyPrecision int32 = 2

// GetCurrencySymbol returns the symbol for a given currency code
// if the code is not found, it returns the code itself
func GetCurrencySymbol(code string) string {
	if symbol, ok := CURRENCY_CODES_SYMBOLS[strings.ToLower(code)]; ok {
		return symbol
	}
	return code
}

// GetCurrencyPrecision returns the number of minor unit digits of a currency
func GetCurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[strings.ToLower(code)]; ok {
		return p
	}
	return DefaultCurrencyPrecision
}

// RoundToCurrencyPrecision rounds half away from zero to the currency's minor unit
func RoundToCurrencyPrecision(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(GetCurrencyPrecision(currency))
}

// ValidateCurrencyCode checks the code is a 3 letter ISO code
func ValidateCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range strings.ToLower(code) {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
