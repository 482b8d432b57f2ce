// Package money holds display helpers for monetary values. All calculation
// happens on raw float64 upstream; rounding to two decimals is a display
// concern and lives here only.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var symbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"CHF": "CHF",
	"JPY": "¥",
	"BRL": "R$",
	"PLN": "zł",
}

// Symbol returns the display symbol for an ISO 4217 currency code. Unknown
// codes fall back to the code itself so a document never renders blank.
func Symbol(currency string) string {
	if s, ok := symbols[currency]; ok {
		return s
	}
	return currency
}

// Formatter renders monetary amounts for a given locale and currency.
type Formatter struct {
	printer  *message.Printer
	currency string
}

// NewFormatter builds a Formatter. An unparseable locale falls back to
// English formatting rather than failing.
func NewFormatter(locale, currency string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag), currency: currency}
}

// Format renders an amount with thousands grouping, two decimals and the
// currency symbol, e.g. "1,234.56 €" for en / EUR.
func (f *Formatter) Format(v float64) string {
	return f.printer.Sprintf("%v %s", number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)), Symbol(f.currency))
}

// FormatBare renders the amount without a currency symbol.
func (f *Formatter) FormatBare(v float64) string {
	return f.printer.Sprintf("%v", number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// FormatPercent renders a plain percentage value, e.g. "22%". Fractional
// rates keep up to two decimals.
func (f *Formatter) FormatPercent(v float64) string {
	return f.printer.Sprintf("%v%%", number.Decimal(v, number.MaxFractionDigits(2)))
}
