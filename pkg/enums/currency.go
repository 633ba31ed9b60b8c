package enums

import "slices"

// Currency is the ISO 4217 code a compensation plan settles in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyMXN Currency = "MXN"
	CurrencyBRL Currency = "BRL"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyCAD,
	CurrencyMXN,
	CurrencyBRL,
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return slices.Contains(validCurrencies, c)
}

func ParseCurrency(value string) (Currency, error) {
	return parse(validCurrencies, value, "currency")
}
