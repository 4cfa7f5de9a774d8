package dates

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout is how dates are written to the store.
const Layout = "2006-01-02 15:04:05"

// ErrUnparsable is returned when no date can be read from the input.
var ErrUnparsable = errors.New("unparsable date")

// minYear rejects obviously wrong parses such as bare numbers read as years.
const minYear = 1990

// maxAgoMonths bounds "N months/years ago" so the arithmetic cannot wrap.
const maxAgoMonths = 12 * 1000

var (
	agoWords       = []string{"ago", "पहले"}
	todayWords     = []string{"today", "आज"}
	yesterdayWords = []string{"yesterday"}

	agoRe = regexp.MustCompile(`(?i)\bago\b`)

	relativeRe = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|h|months?|mos?|minutes?|mins?|m|days?|d|weeks?|wks?|w|years?|yrs?|y)\b`)
	hindiRelRe = regexp.MustCompile(`(\d+)\s*(घंटे|घंटा|मिनट|दिन|सप्ताह|हफ़्ते|हफ्ते|हफ्ता|महीने|महीना|साल|वर्ष)`)

	isoRe      = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	numericRe  = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)
	dmyRe      = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([\p{L}\p{M}]+)\.?(?:\s+(\d{4}))?`)
	mdyRe      = regexp.MustCompile(`(?i)([\p{L}\p{M}]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:\s+(\d{4}))?`)
	dayTokenRe = regexp.MustCompile(`(?i)^\d{1,2}(?:st|nd|rd|th)?$`)
	myRe       = regexp.MustCompile(`(?i)([\p{L}\p{M}]+)\.?,?\s+(\d{4})\b`)
)

type unit int

const (
	unitMinute unit = iota
	unitHour
	unitDay
	unitWeek
	unitMonth
	unitYear
)

var hindiUnits = map[string]unit{
	"घंटे":   unitHour,
	"घंटा":   unitHour,
	"मिनट":   unitMinute,
	"दिन":    unitDay,
	"सप्ताह": unitWeek,
	"हफ़्ते": unitWeek,
	"हफ्ते":  unitWeek,
	"हफ्ता":  unitWeek,
	"महीने":  unitMonth,
	"महीना":  unitMonth,
	"साल":    unitYear,
	"वर्ष":   unitYear,
}

// Parser turns listing-page date strings into timestamps in one canonical
// location.
type Parser struct {
	loc      *time.Location
	dayFirst bool
}

func NewParser(loc *time.Location, dayFirst bool) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc, dayFirst: dayFirst}
}

func (p *Parser) Location() *time.Location {
	return p.loc
}

// Normalize parses raw relative to now. Relative dates keep the clock time
// of now; everything else is pinned to 12:00:00 on its calendar day.
func (p *Parser) Normalize(raw string, now time.Time) (time.Time, error) {
	text := Clean(raw)
	if text == "" {
		return time.Time{}, ErrUnparsable
	}

	now = now.In(p.loc)
	lower := strings.ToLower(text)

	switch {
	case agoRe.MatchString(lower) || strings.Contains(lower, "पहले"):
		return p.relative(lower, now)
	case containsAny(lower, todayWords):
		return p.noon(now), nil
	case containsAny(lower, yesterdayWords):
		return p.noon(now.AddDate(0, 0, -1)), nil
	}

	t, err := p.absolute(text, now)
	if err != nil {
		return time.Time{}, err
	}
	return p.noon(t), nil
}

// ParseStored reads a date column written by Format, or any other common
// layout, without moving it to noon.
func (p *Parser) ParseStored(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparsable
	}

	if t, err := time.ParseInLocation(Layout, s, p.loc); err == nil {
		return t, nil
	}

	t, err := dateparse.ParseIn(s, p.loc, p.parseOptions()...)
	if err != nil || t.Year() < minYear {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, s)
	}
	return t.In(p.loc), nil
}

// Format renders t in the canonical location. The zero time renders as "".
func (p *Parser) Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(p.loc).Format(Layout)
}

func (p *Parser) relative(lower string, now time.Time) (time.Time, error) {
	n, u, ok := matchRelative(lower)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: no amount and unit in %q", ErrUnparsable, lower)
	}

	var step time.Duration
	switch u {
	case unitMinute:
		step = time.Minute
	case unitHour:
		step = time.Hour
	case unitDay:
		step = 24 * time.Hour
	case unitWeek:
		step = 7 * 24 * time.Hour
	case unitMonth:
		if n > maxAgoMonths {
			return time.Time{}, fmt.Errorf("%w: amount out of range in %q", ErrUnparsable, lower)
		}
		return SubMonths(now, n), nil
	default:
		if n > maxAgoMonths/12 {
			return time.Time{}, fmt.Errorf("%w: amount out of range in %q", ErrUnparsable, lower)
		}
		return SubMonths(now, 12*n), nil
	}

	if int64(n) > math.MaxInt64/int64(step) {
		return time.Time{}, fmt.Errorf("%w: amount out of range in %q", ErrUnparsable, lower)
	}
	return now.Add(-time.Duration(n) * step), nil
}

func matchRelative(lower string) (int, unit, bool) {
	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, false
		}
		return n, englishUnit(m[2]), true
	}
	if m := hindiRelRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, false
		}
		return n, hindiUnits[m[2]], true
	}
	return 0, 0, false
}

func englishUnit(s string) unit {
	switch {
	case strings.HasPrefix(s, "mo"):
		return unitMonth
	case strings.HasPrefix(s, "m"):
		return unitMinute
	case strings.HasPrefix(s, "h"):
		return unitHour
	case strings.HasPrefix(s, "d"):
		return unitDay
	case strings.HasPrefix(s, "w"):
		return unitWeek
	default:
		return unitYear
	}
}

// SubMonths moves t back n calendar months, clamping the day to the length
// of the target month (31 March minus one month is the last day of February).
func SubMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 - n
	y += total / 12
	mi := total % 12
	if mi < 0 {
		mi += 12
		y--
	}
	month := time.Month(mi + 1)
	if last := daysIn(y, month, t.Location()); d > last {
		d = last
	}
	return time.Date(y, month, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// absolute tries the locale-aware patterns first and falls back to dateparse.
func (p *Parser) absolute(text string, now time.Time) (time.Time, error) {
	if t, ok := p.matchISO(text); ok {
		return t, nil
	}
	if t, ok := p.matchNumeric(text, now); ok {
		return t, nil
	}
	if t, ok := p.matchDayMonth(text, now); ok {
		return t, nil
	}
	if t, ok := p.matchMonthDay(text, now); ok {
		return t, nil
	}
	if t, ok := p.matchMonthYear(text); ok {
		return t, nil
	}

	t, err := dateparse.ParseIn(text, p.loc, p.parseOptions()...)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}
	if t.Year() < minYear || t.Year() > now.Year()+1 {
		return time.Time{}, fmt.Errorf("%w: implausible year in %q", ErrUnparsable, text)
	}
	return t, nil
}

// parseOptions makes the dateparse fallback honour the configured
// day/month order for ambiguous numeric dates.
func (p *Parser) parseOptions() []dateparse.ParserOption {
	return []dateparse.ParserOption{
		dateparse.PreferMonthFirst(!p.dayFirst),
		dateparse.RetryAmbiguousDateWithSwap(true),
	}
}

func (p *Parser) matchISO(text string) (time.Time, bool) {
	m := isoRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return p.build(atoi(m[1]), atoi(m[2]), atoi(m[3]))
}

func (p *Parser) matchNumeric(text string, now time.Time) (time.Time, bool) {
	m := numericRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	a, b, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
	if len(m[3]) == 2 {
		year = expandYear(year, now)
	}

	day, month := b, a
	if p.dayFirst {
		day, month = a, b
	}
	// An unambiguous component wins over the configured order.
	if a > 12 && b <= 12 {
		day, month = a, b
	} else if b > 12 && a <= 12 {
		day, month = b, a
	}
	return p.build(year, month, day)
}

func (p *Parser) matchDayMonth(text string, now time.Time) (time.Time, bool) {
	for _, m := range dmyRe.FindAllStringSubmatch(text, -1) {
		month, ok := lookupMonth(strings.ToLower(m[2]))
		if !ok {
			continue
		}
		if t, ok := p.withYear(m[3], int(month), atoi(m[1]), now); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Parser) matchMonthDay(text string, now time.Time) (time.Time, bool) {
	for _, m := range mdyRe.FindAllStringSubmatch(text, -1) {
		month, ok := lookupMonth(strings.ToLower(m[1]))
		if !ok {
			continue
		}
		if t, ok := p.withYear(m[3], int(month), atoi(m[2]), now); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// matchMonthYear reads "June 2025" as the first of the month. A month
// preceded by a day number is left to matchDayMonth, so an invalid
// "31 Feb 2025" stays unparsable.
func (p *Parser) matchMonthYear(text string) (time.Time, bool) {
	for _, idx := range myRe.FindAllStringSubmatchIndex(text, -1) {
		if prev := strings.Fields(text[:idx[0]]); len(prev) > 0 && dayTokenRe.MatchString(prev[len(prev)-1]) {
			continue
		}
		month, ok := lookupMonth(strings.ToLower(text[idx[2]:idx[3]]))
		if !ok {
			continue
		}
		if t, ok := p.build(atoi(text[idx[4]:idx[5]]), int(month), 1); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// expandYear puts a two-digit year in the current century unless that is
// more than a year ahead of now.
func expandYear(yy int, now time.Time) int {
	year := 2000 + yy
	if year > now.Year()+1 {
		year -= 100
	}
	return year
}

// withYear builds the date, defaulting a missing year to now's year and
// stepping back a year if that would put the date in the future.
func (p *Parser) withYear(yearStr string, month, day int, now time.Time) (time.Time, bool) {
	if yearStr != "" {
		return p.build(atoi(yearStr), month, day)
	}

	t, ok := p.build(now.Year(), month, day)
	if !ok {
		return time.Time{}, false
	}
	if t.After(now.Add(24 * time.Hour)) {
		return p.build(now.Year()-1, month, day)
	}
	return t, true
}

func (p *Parser) build(year, month, day int) (time.Time, bool) {
	if year < minYear || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	if day > daysIn(year, time.Month(month), p.loc) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, p.loc), true
}

// noon keeps the calendar day as written and pins the clock to 12:00 in the
// canonical location.
func (p *Parser) noon(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, p.loc)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
