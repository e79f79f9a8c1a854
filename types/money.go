// Package types provides common value types used across the ledger.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCurrency is the currency the stand sells in.
const DefaultCurrency = "cop"

// Money represents a monetary value in the smallest currency unit the
// ledger records. All arithmetic is integer-only, no floating point.
//
// Examples:
//   - COP(4500) = $4.500 (whole pesos, no minor unit in practice)
//   - USD(4900) = $49.00 (4900 cents)
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest recorded unit
	Currency string `json:"currency"` // ISO 4217 lowercase: "cop", "usd", "eur"
}

// New creates a Money value in the given currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// COP creates a Money value in Colombian pesos.
func COP(pesos int64) Money { return Money{Amount: pesos, Currency: "cop"} }

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Split divides the Money into n equal shares using integer division
// (truncated toward zero, sign preserved) and returns the share and the
// remainder that could not be divided.
func (m Money) Split(n int64) (share, remainder Money) {
	if n <= 0 {
		panic("money: split into non-positive parts")
	}
	return Money{Amount: m.Amount / n, Currency: m.Currency},
		Money{Amount: m.Amount % n, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// FormatMajor returns the major unit string without currency symbol.
// Zero-decimal currencies group thousands with dots: "4.500" for COP(4500).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)

	isNegative := m.Amount < 0
	absAmount := m.Amount
	if isNegative {
		absAmount = -absAmount
	}

	var result string
	if decimals == 0 {
		result = groupThousands(absAmount, ".")
	} else {
		divisor := int64(1)
		for i := 0; i < decimals; i++ {
			divisor *= 10
		}
		format := fmt.Sprintf("%%d.%%0%dd", decimals)
		result = fmt.Sprintf(format, absAmount/divisor, absAmount%divisor)
	}

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
// Examples: "$4.500" (cop), "$49.00" (usd), "€199.00"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = strings.ToLower(raw.Currency)
	return nil
}

// Sum calculates the sum of multiple Money values in the given currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"cop": "$",
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places recorded for a currency.
// Pesos are recorded whole.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"cop": true,
		"clp": true,
		"jpy": true,
		"krw": true,
		"pyg": true,
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

func groupThousands(n int64, sep string) string {
	digits := fmt.Sprintf("%d", n)
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
