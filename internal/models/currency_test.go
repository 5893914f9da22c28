package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func rawRates(date string, pairs ...string) RawRates {
	raw := RawRates{Date: date}
	for i := 0; i+1 < len(pairs); i += 2 {
		raw.Values = append(raw.Values, RawRate{Currency: pairs[i], Value: MustParseRate(pairs[i+1])})
	}
	return raw
}

func currencyCodes(info CurrencyInfo) []string {
	codes := make([]string, 0, len(info.Values))
	for _, value := range info.Values {
		codes = append(codes, value.Currency)
	}
	return codes
}

func TestShapeCurrencyInfo(t *testing.T) {
	tests := []struct {
		name          string
		raw           RawRates
		targets       []string
		expectedCodes []string
	}{
		{
			name:          "filters and keeps provider order",
			raw:           rawRates("2023-07-18", "rub", "92.5", "usd", "1", "gbp", "0.8"),
			targets:       []string{"usd", "rub"},
			expectedCodes: []string{"rub", "usd"},
		},
		{
			name:          "order is not alphabetical",
			raw:           rawRates("2023-07-18", "usd", "1.1", "byn", "3.2", "eur", "1"),
			targets:       []string{"byn", "eur", "usd"},
			expectedCodes: []string{"usd", "byn", "eur"},
		},
		{
			name:          "empty intersection",
			raw:           rawRates("2023-07-18", "gbp", "0.8", "jpy", "155"),
			targets:       []string{"rub", "usd"},
			expectedCodes: []string{},
		},
		{
			name:          "empty target set",
			raw:           rawRates("2023-07-18", "rub", "92.5"),
			targets:       nil,
			expectedCodes: []string{},
		},
		{
			name:          "duplicate codes keep the first",
			raw:           rawRates("2023-07-18", "rub", "92.5", "rub", "93"),
			targets:       []string{"rub"},
			expectedCodes: []string{"rub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ShapeCurrencyInfo(tt.raw, "EUR", CurrencySet(tt.targets))
			if err != nil {
				t.Fatalf("ShapeCurrencyInfo() error = %v", err)
			}

			if info.Currency != "eur" {
				t.Errorf("Currency = %q, want %q", info.Currency, "eur")
			}
			if info.Values == nil {
				t.Fatal("Values is nil, want empty slice")
			}
			if codes := currencyCodes(info); !reflect.DeepEqual(codes, tt.expectedCodes) {
				t.Errorf("codes = %v, want %v", codes, tt.expectedCodes)
			}

			targets := CurrencySet(tt.targets)
			for _, value := range info.Values {
				if _, ok := targets[value.Currency]; !ok {
					t.Errorf("value %q is not a target currency", value.Currency)
				}
			}
		})
	}
}

func TestShapeCurrencyInfo_KeepsFirstValue(t *testing.T) {
	info, err := ShapeCurrencyInfo(rawRates("2023-07-18", "rub", "92.5", "rub", "93"), "eur", CurrencySet([]string{"rub"}))
	if err != nil {
		t.Fatalf("ShapeCurrencyInfo() error = %v", err)
	}
	if got := info.Values[0].Value.String(); got != "92.5" {
		t.Errorf("value = %s, want 92.5", got)
	}
}

func TestShapeCurrencyInfo_MalformedDate(t *testing.T) {
	_, err := ShapeCurrencyInfo(rawRates("18/07/2023", "rub", "92.5"), "eur", CurrencySet([]string{"rub"}))

	var malformed *MalformedDateError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedDateError", err)
	}
	if malformed.Value != "18/07/2023" {
		t.Errorf("Value = %q, want %q", malformed.Value, "18/07/2023")
	}
}

func TestCurrencyInfo_MarshalJSON(t *testing.T) {
	info, err := ShapeCurrencyInfo(
		rawRates("2023-07-18", "rub", "92.5", "usd", "1", "gbp", "0.8"),
		"eur",
		CurrencySet([]string{"rub", "usd"}),
	)
	if err != nil {
		t.Fatalf("ShapeCurrencyInfo() error = %v", err)
	}

	payload, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	expected := `{"date":"2023-07-18","currency":"eur","values":[{"currency":"rub","value":92.5},{"currency":"usd","value":1}]}`
	if string(payload) != expected {
		t.Errorf("payload = %s, want %s", payload, expected)
	}
}

func TestCurrencyInfo_EmptyValuesMarshalAsArray(t *testing.T) {
	info, err := ShapeCurrencyInfo(rawRates("2023-07-18", "gbp", "0.8"), "eur", CurrencySet([]string{"rub"}))
	if err != nil {
		t.Fatalf("ShapeCurrencyInfo() error = %v", err)
	}

	payload, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	expected := `{"date":"2023-07-18","currency":"eur","values":[]}`
	if string(payload) != expected {
		t.Errorf("payload = %s, want %s", payload, expected)
	}
}

func TestRate_DecimalFidelity(t *testing.T) {
	tests := []struct {
		literal  string
		expected string
	}{
		{"92.5", "92.5"},
		{"1", "1"},
		{"0.00001234", "0.00001234"},
		{"105.123456789012345678", "105.123456789012345678"},
		{"1e-7", "0.0000001"},
	}

	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			original := CurrencyValue{Currency: "rub", Value: MustParseRate(tt.literal)}

			payload, err := json.Marshal(original)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}

			var decoded CurrencyValue
			if err := json.Unmarshal(payload, &decoded); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}

			if got := decoded.Value.String(); got != tt.expected {
				t.Errorf("round trip = %s, want %s (payload %s)", got, tt.expected, payload)
			}
			if !decoded.Value.Equal(original.Value.Decimal) {
				t.Errorf("round trip changed value: %s != %s", decoded.Value, original.Value)
			}
		})
	}
}

func TestParseRate_Invalid(t *testing.T) {
	if _, err := ParseRate("ninety"); err == nil {
		t.Error("ParseRate() expected error, got nil")
	}
}

func TestNewDate(t *testing.T) {
	location := time.FixedZone("UTC+3", 3*60*60)
	moment := time.Date(2024, 6, 12, 1, 30, 0, 0, location)

	if got := NewDate(moment).String(); got != "2024-06-11" {
		t.Errorf("NewDate() = %s, want 2024-06-11", got)
	}
}

func TestDate_JSON(t *testing.T) {
	var date Date
	if err := json.Unmarshal([]byte(`"2024-06-11"`), &date); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if date.String() != "2024-06-11" {
		t.Errorf("date = %s, want 2024-06-11", date)
	}

	if err := json.Unmarshal([]byte(`"June 11"`), &date); err == nil {
		t.Error("json.Unmarshal() expected error for non-ISO date")
	}
}
