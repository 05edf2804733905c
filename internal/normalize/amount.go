package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "transaction-import-service/pkg/errors"
)

// MaxAmount bounds normalized amounts at ±999,999.99.
var MaxAmount = decimal.RequireFromString("999999.99")

// currencySymbols are stripped from raw amount values before parsing.
var currencySymbols = []string{"$", "€", "£", "¥", "₹"}

// SignHint carries the optional debit/credit convention from a "type"
// column. When present it overrides the parsed sign: credits are income
// (positive), debits are expenses (negative).
type SignHint int

const (
	// SignNone keeps the sign as parsed
	SignNone SignHint = iota
	// SignCredit forces the amount positive
	SignCredit
	// SignDebit forces the amount negative
	SignDebit
)

// ParseSignHint interprets a raw "type" column value. Unrecognized values
// map to SignNone so an unexpected type column never invalidates a row.
func ParseSignHint(raw string) SignHint {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "credit":
		return SignCredit
	case "debit":
		return SignDebit
	default:
		return SignNone
	}
}

// Amount parses a raw amount string into a signed decimal. Currency
// symbols, thousands separators and interior whitespace are stripped; a
// value wrapped in parentheses is negative by the accounting convention.
// The result must be non-zero and within ±999,999.99.
func Amount(raw string, hint SignHint) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, pkgerrors.ValidationError(pkgerrors.CodeMissingField, "amount", raw, nil)
	}

	negative := false
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		negative = true
		value = value[1 : len(value)-1]
	}

	for _, symbol := range currencySymbols {
		value = strings.ReplaceAll(value, symbol, "")
	}
	value = strings.ReplaceAll(value, ",", "")
	value = strings.Join(strings.Fields(value), "")

	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, pkgerrors.ValidationError(pkgerrors.CodeInvalidAmount, "amount", raw, err)
	}

	if negative {
		amount = amount.Neg()
	}

	switch hint {
	case SignCredit:
		amount = amount.Abs()
	case SignDebit:
		amount = amount.Abs().Neg()
	}

	if amount.IsZero() {
		return decimal.Zero, pkgerrors.ValidationError(pkgerrors.CodeInvalidAmount, "amount", raw,
			fmt.Errorf("amount cannot be zero"))
	}

	if amount.Abs().GreaterThan(MaxAmount) {
		return decimal.Zero, pkgerrors.ValidationError(pkgerrors.CodeValueOutOfRange, "amount", raw,
			fmt.Errorf("amount exceeds ±%s", MaxAmount.String()))
	}

	return amount, nil
}
