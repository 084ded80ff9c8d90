package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents lists currencies whose minor unit is not 1/100.
var currencyExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"ISK": 0,
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// Amount is a monetary value in minor units.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

// NewAmount creates an Amount with a normalized currency code.
func NewAmount(value int64, currency string) Amount {
	return Amount{Value: value, Currency: strings.ToUpper(currency)}
}

// ParseAmount parses a major-unit decimal string ("12.34") into minor units.
func ParseAmount(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: parse %q: %v", ErrInvalidAmount, value, err)
	}
	exp := CurrencyExponent(currency)
	minor := d.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return Amount{}, fmt.Errorf("%w: %q has more than %d decimals for %s", ErrInvalidAmount, value, exp, currency)
	}
	return NewAmount(minor.IntPart(), currency), nil
}

// CurrencyExponent returns the number of minor-unit digits for a currency.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// IsZero reports whether the amount has no value.
func (a Amount) IsZero() bool {
	return a.Value == 0
}

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool {
	return a.Value > 0
}

func (a Amount) compatible(b Amount) (string, error) {
	switch {
	case a.Currency == b.Currency:
		return a.Currency, nil
	case a.Currency == "" && a.Value == 0:
		return b.Currency, nil
	case b.Currency == "" && b.Value == 0:
		return a.Currency, nil
	}
	return "", fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, b.Currency)
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	cur, err := a.compatible(b)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value + b.Value, Currency: cur}, nil
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) (Amount, error) {
	cur, err := a.compatible(b)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value - b.Value, Currency: cur}, nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) (int, error) {
	if _, err := a.compatible(b); err != nil {
		return 0, err
	}
	switch {
	case a.Value < b.Value:
		return -1, nil
	case a.Value > b.Value:
		return 1, nil
	}
	return 0, nil
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) (Amount, error) {
	c, err := a.Cmp(b)
	if err != nil {
		return Amount{}, err
	}
	if c <= 0 {
		return a, nil
	}
	return b, nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Value, -CurrencyExponent(a.Currency))
}

// String formats the amount as "12.34 EUR".
func (a Amount) String() string {
	return a.Decimal().StringFixed(CurrencyExponent(a.Currency)) + " " + a.Currency
}
