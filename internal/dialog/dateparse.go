package dialog

import (
	"strconv"
	"strings"
	"time"
)

// ptMonths maps Portuguese month names (full and abbreviated, lowercase,
// accents optional) to month numbers.
var ptMonths = map[string]time.Month{
	"janeiro": time.January, "jan": time.January,
	"fevereiro": time.February, "fev": time.February,
	"março": time.March, "marco": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"maio": time.May, "mai": time.May,
	"junho": time.June, "jun": time.June,
	"julho": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"setembro": time.September, "set": time.September,
	"outubro": time.October, "out": time.October,
	"novembro": time.November, "nov": time.November,
	"dezembro": time.December, "dez": time.December,
}

// numericLayouts are tried in order of preference. Month/year forms come
// last so full dates are never truncated to the first of the month.
var numericLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2/1/06",
	"01/2006",
	"1/2006",
}

// ParseExpectedDate interprets the expected-surgery-date answer. It accepts
// year-month-day, day/month/year (2- or 4-digit year), month/year (first of
// the month) and Portuguese month-name + year forms. ok is false when the
// text is an unparsed free-form estimate; the function never fails on any
// input.
func ParseExpectedDate(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range numericLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}

	return parseMonthName(text, loc)
}

// parseMonthName handles forms like "abril 2026", "Abril de 2026" and
// "abr/2026".
func parseMonthName(text string, loc *time.Location) (time.Time, bool) {
	normalized := strings.ToLower(text)
	normalized = strings.ReplaceAll(normalized, "/", " ")
	fields := strings.Fields(normalized)

	tokens := fields[:0]
	for _, f := range fields {
		if f == "de" {
			continue
		}
		tokens = append(tokens, strings.TrimSuffix(f, "."))
	}
	if len(tokens) != 2 {
		return time.Time{}, false
	}

	month, ok := ptMonths[tokens[0]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(tokens[1])
	if err != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	if year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, loc), true
}

// beforeToday reports whether t falls on a calendar day strictly before now,
// comparing dates in now's location.
func beforeToday(t, now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	ty, tm, td := t.Date()
	day := time.Date(ty, tm, td, 0, 0, 0, 0, now.Location())
	return day.Before(today)
}
