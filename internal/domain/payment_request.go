package domain

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is one of the settlement currencies accepted in a ticket.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// SupportedCurrencies lists the currencies in prompt order.
var SupportedCurrencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP}

// maxMinorUnits is the largest charge, in minor units, a gateway call can carry.
var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// DefaultOrderIDMaxLength bounds caller-supplied order identifiers.
const DefaultOrderIDMaxLength = 50

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrAmountTooLarge      = errors.New("amount is too large")
	ErrEmptyOrderID        = errors.New("order id must not be empty")
	ErrOrderIDTooLong      = errors.New("order id is too long")
)

// ParseCurrency accepts USD, EUR or GBP in any letter case.
func ParseCurrency(input string) (Currency, error) {
	candidate := Currency(strings.ToUpper(strings.TrimSpace(input)))
	for _, c := range SupportedCurrencies {
		if c == candidate {
			return c, nil
		}
	}
	return "", ErrUnsupportedCurrency
}

// ParseAmount parses a decimal amount rounded to two places. A leading
// currency symbol is tolerated. Zero and negative values are rejected, as
// are values whose minor units overflow int64.
func ParseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimLeft(trimmed, "$€£")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if amount.Shift(2).GreaterThan(maxMinorUnits) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return amount, nil
}

// ParseOrderID trims the identifier and enforces the length bound. A
// maxLength of zero or less disables the bound.
func ParseOrderID(input string, maxLength int) (string, error) {
	orderID := strings.TrimSpace(input)
	if orderID == "" {
		return "", ErrEmptyOrderID
	}
	if maxLength > 0 && len([]rune(orderID)) > maxLength {
		return "", ErrOrderIDTooLong
	}
	return orderID, nil
}

// PaymentRequest accumulates the answers of one conversation attempt. It is
// never persisted and is discarded when the attempt ends.
type PaymentRequest struct {
	Currency  Currency
	Amount    decimal.Decimal
	OrderID   string
	IntentRef string
}

// MinorUnits returns the amount in the smallest currency unit.
func (r PaymentRequest) MinorUnits() int64 {
	return r.Amount.Shift(2).IntPart()
}
