package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical ISO rendering used in payloads and cache keys
const DateLayout = "2006-01-02"

// Date is a calendar date at midnight UTC
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC
func NewDate(t time.Time) Date {
	year, month, day := t.UTC().Date()
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: parsed}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Rate is an exchange rate kept as an exact decimal. It serializes as a bare
// JSON number so integers stay integers and fractions keep every digit.
type Rate struct {
	decimal.Decimal
}

// ParseRate reads a JSON number literal without a float64 round-trip
func ParseRate(literal string) (Rate, error) {
	value, err := decimal.NewFromString(literal)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", literal, err)
	}
	return Rate{Decimal: value}, nil
}

// MustParseRate is ParseRate for literals known to be valid
func MustParseRate(literal string) Rate {
	rate, err := ParseRate(literal)
	if err != nil {
		panic(err)
	}
	return rate
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.Decimal.String()), nil
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// CurrencyValue is a single target currency and its rate against the source
type CurrencyValue struct {
	Currency string `json:"currency"`
	Value    Rate   `json:"value"`
}

// CurrencyInfo is the bounded result served to clients and stored in the cache
type CurrencyInfo struct {
	Date     Date            `json:"date"`
	Currency string          `json:"currency"`
	Values   []CurrencyValue `json:"values"`
}

// RawRate is one entry of a provider response in document order
type RawRate struct {
	Currency string
	Value    Rate
}

// RawRates is the provider response for one source currency on one date
type RawRates struct {
	Date   string
	Values []RawRate
}

// MalformedDateError is returned when a provider response carries an unparsable date
type MalformedDateError struct {
	Value string
	Err   error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date %q in provider response: %v", e.Value, e.Err)
}

func (e *MalformedDateError) Unwrap() error {
	return e.Err
}

// ShapeCurrencyInfo restricts raw to the target currencies, keeping the
// provider's order and the first occurrence of each code.
func ShapeCurrencyInfo(raw RawRates, sourceCurrency string, targetCurrencies map[string]struct{}) (CurrencyInfo, error) {
	date, err := ParseDate(raw.Date)
	if err != nil {
		return CurrencyInfo{}, &MalformedDateError{Value: raw.Date, Err: err}
	}

	values := make([]CurrencyValue, 0, len(targetCurrencies))
	seen := make(map[string]struct{}, len(targetCurrencies))
	for _, entry := range raw.Values {
		if _, wanted := targetCurrencies[entry.Currency]; !wanted {
			continue
		}
		if _, duplicate := seen[entry.Currency]; duplicate {
			continue
		}
		seen[entry.Currency] = struct{}{}
		values = append(values, CurrencyValue{Currency: entry.Currency, Value: entry.Value})
	}

	return CurrencyInfo{
		Date:     date,
		Currency: strings.ToLower(sourceCurrency),
		Values:   values,
	}, nil
}

// CurrencySet builds a lookup set of lowercase codes
func CurrencySet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[strings.ToLower(code)] = struct{}{}
	}
	return set
}
