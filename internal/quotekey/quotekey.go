// Package quotekey encodes and decodes the slash-separated identifiers that
// name every quote in an engine market-data file.
package quotekey

import (
	"errors"
	"fmt"
	"strings"
)

// Family identifies a quote-key grammar by its leading two tokens.
type Family string

const (
	FamilyZeroRate   Family = "ZERO/RATE"
	FamilyFXSpot     Family = "FX/RATE"
	FamilyRecovery   Family = "RECOVERY_RATE/RATE"
	FamilyCDSSpread  Family = "CDS/CREDIT_SPREAD"
	FamilyHazardRate Family = "HAZARD_RATE/RATE"
)

const separator = "/"

var (
	ErrUnknownFamily = errors.New("unknown quote key family")
	ErrTokenCount    = errors.New("wrong number of quote key tokens")
	ErrInvalidField  = errors.New("invalid quote key field")
)

type field int

const (
	fieldCurrency field = iota
	fieldIndex
	fieldDayCount
	fieldTenor
	fieldBaseCurrency
	fieldEntity
	fieldSeniority
)

var fieldNames = map[field]string{
	fieldCurrency:     "currency",
	fieldIndex:        "index",
	fieldDayCount:     "day count",
	fieldTenor:        "tenor",
	fieldBaseCurrency: "base currency",
	fieldEntity:       "entity",
	fieldSeniority:    "seniority",
}

// grammars lists the fields that follow the family prefix, in wire order.
var grammars = map[Family][]field{
	FamilyZeroRate:   {fieldCurrency, fieldIndex, fieldDayCount, fieldTenor},
	FamilyFXSpot:     {fieldCurrency, fieldBaseCurrency},
	FamilyRecovery:   {fieldEntity, fieldSeniority, fieldCurrency},
	FamilyCDSSpread:  {fieldEntity, fieldSeniority, fieldCurrency, fieldTenor},
	FamilyHazardRate: {fieldEntity, fieldSeniority, fieldCurrency, fieldTenor},
}

// Key is a decoded quote key. Only the fields of its family's grammar are set.
type Key struct {
	Family       Family
	Currency     string
	Index        string
	DayCount     string
	Tenor        string
	BaseCurrency string
	Entity       string
	Seniority    string
}

// Zero builds a zero-rate key, e.g. ZERO/RATE/USD/USD6M/A365/5Y.
func Zero(currency, index, dayCount, tenor string) Key {
	return Key{Family: FamilyZeroRate, Currency: currency, Index: index, DayCount: dayCount, Tenor: tenor}
}

// FX builds an FX spot key quoting currency against base, e.g. FX/RATE/EUR/USD.
func FX(currency, base string) Key {
	return Key{Family: FamilyFXSpot, Currency: currency, BaseCurrency: base}
}

// Recovery builds a recovery-rate key, e.g. RECOVERY_RATE/RATE/ACME/SR/USD.
func Recovery(entity, seniority, currency string) Key {
	return Key{Family: FamilyRecovery, Entity: entity, Seniority: seniority, Currency: currency}
}

// CDSSpread builds a par-spread key, e.g. CDS/CREDIT_SPREAD/ACME/SR/USD/5Y.
func CDSSpread(entity, seniority, currency, tenor string) Key {
	return Key{Family: FamilyCDSSpread, Entity: entity, Seniority: seniority, Currency: currency, Tenor: tenor}
}

// Hazard builds a hazard-rate key, e.g. HAZARD_RATE/RATE/ACME/SR/USD/5Y.
func Hazard(entity, seniority, currency, tenor string) Key {
	return Key{Family: FamilyHazardRate, Entity: entity, Seniority: seniority, Currency: currency, Tenor: tenor}
}

func (k Key) get(f field) string {
	switch f {
	case fieldCurrency:
		return k.Currency
	case fieldIndex:
		return k.Index
	case fieldDayCount:
		return k.DayCount
	case fieldTenor:
		return k.Tenor
	case fieldBaseCurrency:
		return k.BaseCurrency
	case fieldEntity:
		return k.Entity
	case fieldSeniority:
		return k.Seniority
	}
	return ""
}

func (k *Key) set(f field, v string) {
	switch f {
	case fieldCurrency:
		k.Currency = v
	case fieldIndex:
		k.Index = v
	case fieldDayCount:
		k.DayCount = v
	case fieldTenor:
		k.Tenor = v
	case fieldBaseCurrency:
		k.BaseCurrency = v
	case fieldEntity:
		k.Entity = v
	case fieldSeniority:
		k.Seniority = v
	}
}

// Encode renders the key in wire form.
func Encode(k Key) (string, error) {
	fields, ok := grammars[k.Family]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, k.Family)
	}

	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, string(k.Family))
	for _, f := range fields {
		v := k.get(f)
		if v == "" {
			return "", fmt.Errorf("%w: %s %s is empty", ErrInvalidField, k.Family, fieldNames[f])
		}
		if strings.ContainsAny(v, separator+" \t\r\n") {
			return "", fmt.Errorf("%w: %s %s %q contains '/' or whitespace", ErrInvalidField, k.Family, fieldNames[f], v)
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, separator), nil
}

// Decode parses a wire-form key. Decoding is strict: the family must be
// known and the token count must match its grammar exactly.
func Decode(s string) (Key, error) {
	tokens := strings.Split(strings.TrimSpace(s), separator)
	if len(tokens) < 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}

	family := Family(tokens[0] + separator + tokens[1])
	fields, ok := grammars[family]
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
	if got, want := len(tokens)-2, len(fields); got != want {
		return Key{}, fmt.Errorf("%w: %s expects %d fields, got %d in %q", ErrTokenCount, family, want, got, s)
	}

	k := Key{Family: family}
	for i, f := range fields {
		v := tokens[i+2]
		if v == "" {
			return Key{}, fmt.Errorf("%w: %s %s is empty in %q", ErrInvalidField, family, fieldNames[f], s)
		}
		k.set(f, v)
	}
	return k, nil
}

// String renders the key, or a placeholder when the key cannot be encoded.
func (k Key) String() string {
	s, err := Encode(k)
	if err != nil {
		return "<invalid " + string(k.Family) + ">"
	}
	return s
}
