// Package conventions maps trade-booking vocabulary onto engine tokens.
// Every table is closed: an unmapped input resolves to a named fallback.
package conventions

import "strings"

// DayCount is an engine day-count token.
type DayCount string

const (
	DayCountA360      DayCount = "A360"
	DayCountA365      DayCount = "A365"
	DayCountThirty360 DayCount = "30/360"

	FallbackDayCount = DayCountA360
)

var dayCounts = map[string]DayCount{
	"ACT/360": DayCountA360,
	"ACT/365": DayCountA365,
	"30/360":  DayCountThirty360,
}

// LookupDayCount reports the engine token for a booking day-count, if mapped.
func LookupDayCount(s string) (DayCount, bool) {
	dc, ok := dayCounts[strings.ToUpper(strings.TrimSpace(s))]
	return dc, ok
}

// MapDayCount resolves a booking day-count, falling back to A360.
func MapDayCount(s string) DayCount {
	if dc, ok := LookupDayCount(s); ok {
		return dc
	}
	return FallbackDayCount
}

// Tenor is an engine schedule tenor token.
type Tenor string

const (
	Tenor1M Tenor = "1M"
	Tenor3M Tenor = "3M"
	Tenor6M Tenor = "6M"
	Tenor1Y Tenor = "1Y"

	FallbackFrequency = Tenor3M
)

var frequencies = map[string]Tenor{
	"MONTHLY":    Tenor1M,
	"QUARTERLY":  Tenor3M,
	"SEMIANNUAL": Tenor6M,
	"ANNUAL":     Tenor1Y,
}

// LookupFrequency reports the schedule tenor for a premium frequency, if mapped.
func LookupFrequency(s string) (Tenor, bool) {
	t, ok := frequencies[strings.ToUpper(strings.TrimSpace(s))]
	return t, ok
}

// MapFrequency resolves a premium frequency, falling back to quarterly.
func MapFrequency(s string) Tenor {
	if t, ok := LookupFrequency(s); ok {
		return t
	}
	return FallbackFrequency
}

// Calendar is an engine holiday-calendar token.
type Calendar string

const (
	CalendarUS     Calendar = "US"
	CalendarTarget Calendar = "TARGET"
	CalendarUK     Calendar = "UK"
)

var calendars = map[string]Calendar{
	"NYC":    CalendarUS,
	"NY":     CalendarUS,
	"US":     CalendarUS,
	"TARGET": CalendarTarget,
	"EUR":    CalendarTarget,
	"LONDON": CalendarUK,
	"LON":    CalendarUK,
	"GBP":    CalendarUK,
}

// LookupCalendar reports the engine calendar for a booking calendar code, if mapped.
func LookupCalendar(s string) (Calendar, bool) {
	c, ok := calendars[strings.ToUpper(strings.TrimSpace(s))]
	return c, ok
}

// MapCalendar resolves a booking calendar; empty or unmapped codes fall back
// to the trade currency, which the engine accepts as a calendar name.
func MapCalendar(s, currency string) Calendar {
	if c, ok := LookupCalendar(s); ok {
		return c
	}
	return Calendar(currency)
}
