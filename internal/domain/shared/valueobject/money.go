// Package valueobject holds the value types shared by travel records.
package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code the agency quotes in
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	MXN Currency = "MXN"
	PEN Currency = "PEN"
	COP Currency = "COP"
)

// DefaultCurrency applies to records saved without one
const DefaultCurrency = USD

// IsValid returns true for supported currencies
func (c Currency) IsValid() bool {
	switch c {
	case USD, EUR, MXN, PEN, COP:
		return true
	}
	return false
}

// Symbol returns the prefix printed before amounts
func (c Currency) Symbol() string {
	switch c {
	case EUR:
		return "€"
	case PEN:
		return "S/"
	default:
		return "$"
	}
}

// Money is an amount in a currency, as printed on documents
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates Money. The currency is required.
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{amount: amount, currency: currency}, nil
}

// ParseMoney reads a decimal string such as "3797.50"
func ParseMoney(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, currency)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code
func (m Money) Currency() Currency { return m.currency }

// String renders "3247.00 USD"
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + string(m.currency)
}

// Format renders the amount for printed documents, e.g. "$ 3,247.00"
func (m Money) Format() string {
	return m.currency.Symbol() + " " + groupThousands(m.amount.StringFixed(2))
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
