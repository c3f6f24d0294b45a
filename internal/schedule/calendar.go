// Package schedule turns spoken date and time phrases into bookable
// arrival windows on the company calendar.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the storage format for appointment dates.
const DateLayout = "2006-01-02"

// Window names an arrival window, e.g. "morning".
type Window string

// WindowAny means the caller has no preference.
const WindowAny Window = "any"

var (
	ErrUnrecognizedDate = errors.New("unrecognized date")
	ErrDateInPast       = errors.New("date is in the past")
	ErrBeyondHorizon    = errors.New("date is beyond the booking horizon")
	ErrClosed           = errors.New("closed on that day")
	ErrUnrecognizedTime = errors.New("unrecognized time")
	ErrOutsideHours     = errors.New("time is outside arrival windows")
)

// WindowSpec is an arrival window in local business hours.
type WindowSpec struct {
	Name      Window
	StartHour int
	EndHour   int
}

// Spoken renders the window as it should be read to a caller.
func (w WindowSpec) Spoken() string {
	return fmt.Sprintf("%s to %s", spokenHour(w.StartHour), spokenHour(w.EndHour))
}

// Config describes the bookable calendar.
type Config struct {
	Timezone          string
	HorizonDays       int
	ClosedDays        []string
	CapacityPerWindow int
	Windows           []WindowSpec
}

// Calendar resolves phrases against business days and windows.
type Calendar struct {
	loc      *time.Location
	horizon  int
	capacity int
	windows  []WindowSpec
	closed   map[time.Weekday]bool
}

// NewCalendar builds a calendar from configuration.
func NewCalendar(cfg Config) (*Calendar, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	if len(cfg.Windows) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}

	closed := make(map[time.Weekday]bool, len(cfg.ClosedDays))
	for _, d := range cfg.ClosedDays {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, fmt.Errorf("unknown closed day %q", d)
		}
		closed[wd] = true
	}

	return &Calendar{
		loc:      loc,
		horizon:  cfg.HorizonDays,
		capacity: cfg.CapacityPerWindow,
		windows:  cfg.Windows,
		closed:   closed,
	}, nil
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Capacity returns the number of visits bookable per window.
func (c *Calendar) Capacity() int { return c.capacity }

// HorizonDays returns how far ahead callers may book.
func (c *Calendar) HorizonDays() int { return c.horizon }

// Windows returns the configured arrival windows in order.
func (c *Calendar) Windows() []WindowSpec { return c.windows }

// Spec looks up a window by name.
func (c *Calendar) Spec(w Window) (WindowSpec, bool) {
	for _, s := range c.windows {
		if s.Name == w {
			return s, true
		}
	}
	return WindowSpec{}, false
}

// Today returns local midnight of now's business day.
func (c *Calendar) Today(now time.Time) time.Time {
	local := now.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// IsOpen reports whether visits can be booked on day d.
func (c *Calendar) IsOpen(d time.Time) bool {
	return !c.closed[d.Weekday()]
}

// OpenDates lists bookable days from today through the horizon.
func (c *Calendar) OpenDates(now time.Time) []time.Time {
	today := c.Today(now)
	dates := make([]time.Time, 0, c.horizon)
	for i := 0; i <= c.horizon; i++ {
		d := today.AddDate(0, 0, i)
		if c.IsOpen(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// WindowStarted reports whether window w on day d has already begun.
func (c *Calendar) WindowStarted(d time.Time, w WindowSpec, now time.Time) bool {
	start := time.Date(d.Year(), d.Month(), d.Day(), w.StartHour, 0, 0, 0, c.loc)
	return !now.Before(start)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "sixth": 6,
	"seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10, "eleventh": 11,
	"twelfth": 12, "thirteenth": 13, "fourteenth": 14, "fifteenth": 15,
	"sixteenth": 16, "seventeenth": 17, "eighteenth": 18, "nineteenth": 19,
	"twentieth": 20, "twenty first": 21, "twenty second": 22, "twenty third": 23,
	"twenty fourth": 24, "twenty fifth": 25, "twenty sixth": 26,
	"twenty seventh": 27, "twenty eighth": 28, "twenty ninth": 29,
	"thirtieth": 30, "thirty first": 31,
}

var (
	monthDayRe = regexp.MustCompile(`\b([a-z]+)\.?\s+(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe = regexp.MustCompile(`\bthe\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s+of\s+([a-z]+))?\b`)
	numericRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	clockRe    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?|o'?clock)?`)
)

// IsSoonest reports whether the phrase asks for the first available day.
func IsSoonest(phrase string) bool {
	p := normalize(phrase)
	for _, kw := range []string{"as soon as possible", "asap", "a s a p", "soonest", "earliest", "first available", "next available", "right away"} {
		if strings.Contains(p, kw) {
			return true
		}
	}
	return false
}

// ParseDate resolves a spoken date phrase relative to now and validates
// it against the booking horizon and closed days.
func (c *Calendar) ParseDate(phrase string, now time.Time) (time.Time, error) {
	d, err := c.resolveDate(normalize(phrase), now)
	if err != nil {
		return time.Time{}, err
	}

	today := c.Today(now)
	if d.Before(today) {
		return time.Time{}, ErrDateInPast
	}
	if d.After(today.AddDate(0, 0, c.horizon)) {
		return time.Time{}, ErrBeyondHorizon
	}
	if !c.IsOpen(d) {
		return d, ErrClosed
	}
	return d, nil
}

func (c *Calendar) resolveDate(p string, now time.Time) (time.Time, error) {
	today := c.Today(now)

	switch {
	case strings.Contains(p, "day after tomorrow"):
		return today.AddDate(0, 0, 2), nil
	case strings.Contains(p, "tomorrow"):
		return today.AddDate(0, 0, 1), nil
	case strings.Contains(p, "today"), strings.Contains(p, "this afternoon"), strings.Contains(p, "tonight"):
		return today, nil
	}

	if m := numericRe.FindStringSubmatch(p); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			return c.nextMonthDay(time.Month(month), day, today)
		}
	}

	for _, m := range monthDayRe.FindAllStringSubmatch(p, -1) {
		if month, ok := months[m[1]]; ok {
			day, _ := strconv.Atoi(m[2])
			return c.nextMonthDay(month, day, today)
		}
	}

	if month, day, ok := spelledMonthDay(p); ok {
		return c.nextMonthDay(month, day, today)
	}

	// The last weekday named wins: "not Monday, Tuesday works".
	if wd, ok := lastWeekday(p); ok {
		offset := (int(wd) - int(today.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return today.AddDate(0, 0, offset), nil
	}

	if m := dayMonthRe.FindStringSubmatch(p); m != nil {
		day, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			if month, ok := months[m[2]]; ok {
				return c.nextMonthDay(month, day, today)
			}
		}
		return c.nextDayOfMonth(day, today)
	}

	if strings.Contains(p, "the ") {
		if day, ok := ordinalIn(p[strings.Index(p, "the "):]); ok {
			return c.nextDayOfMonth(day, today)
		}
	}

	return time.Time{}, ErrUnrecognizedDate
}

// ordinalIn finds the first spelled-out ordinal in p, preferring the
// longest match at that position ("twenty first" over "first").
func ordinalIn(p string) (int, bool) {
	pos, best, day := -1, "", 0
	for word, d := range ordinalWords {
		i := strings.Index(p, word)
		if i < 0 {
			continue
		}
		if pos < 0 || i < pos || (i == pos && len(word) > len(best)) {
			pos, best, day = i, word, d
		}
	}
	return day, pos >= 0
}

// ordinalPrefix returns the ordinal p starts with.
func ordinalPrefix(p string) (int, bool) {
	best, day := "", 0
	for word, d := range ordinalWords {
		if len(word) > len(best) && (p == word || strings.HasPrefix(p, word+" ")) {
			best, day = word, d
		}
	}
	return day, best != ""
}

// ordinalSuffix returns the ordinal p ends with.
func ordinalSuffix(p string) (int, bool) {
	best, day := "", 0
	for word, d := range ordinalWords {
		if len(word) > len(best) && (p == word || strings.HasSuffix(p, " "+word)) {
			best, day = word, d
		}
	}
	return day, best != ""
}

// spelledMonthDay resolves "October twenty first" and "the fifth of May".
// Months are taken in the order spoken. "May" only counts as a month when
// an ordinal sits next to it, so "I may be home" is not a date.
func spelledMonthDay(p string) (time.Month, int, bool) {
	words := strings.Fields(p)
	for i, w := range words {
		name := strings.Trim(w, ".")
		month, ok := months[name]
		if !ok || (len(name) < 4 && name != "may") {
			continue
		}
		after := strings.TrimPrefix(strings.Join(words[i+1:], " "), "the ")
		if day, ok := ordinalPrefix(after); ok {
			return month, day, true
		}
		if i > 0 && words[i-1] == "of" {
			if day, ok := ordinalSuffix(strings.Join(words[:i-1], " ")); ok {
				return month, day, true
			}
		}
		if name == "may" {
			continue
		}
		if day, ok := ordinalIn(p); ok {
			return month, day, true
		}
	}
	return 0, 0, false
}

func lastWeekday(p string) (time.Weekday, bool) {
	words := strings.Fields(p)
	for i := len(words) - 1; i >= 0; i-- {
		if wd, ok := weekdays[strings.Trim(words[i], ".")]; ok {
			return wd, true
		}
	}
	return 0, false
}

// nextMonthDay picks this year's occurrence, or next year's if it has passed.
func (c *Calendar) nextMonthDay(month time.Month, day int, today time.Time) (time.Time, error) {
	if day < 1 || day > 31 {
		return time.Time{}, ErrUnrecognizedDate
	}
	d := time.Date(today.Year(), month, day, 0, 0, 0, 0, c.loc)
	if d.Month() != month {
		return time.Time{}, ErrUnrecognizedDate
	}
	if d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, nil
}

// nextDayOfMonth resolves "the 21st" to this month, or next month if passed.
func (c *Calendar) nextDayOfMonth(day int, today time.Time) (time.Time, error) {
	if day < 1 || day > 31 {
		return time.Time{}, ErrUnrecognizedDate
	}
	d := time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, c.loc)
	if d.Month() != today.Month() || d.Before(today) {
		next := time.Date(today.Year(), today.Month()+1, day, 0, 0, 0, 0, c.loc)
		if next.Day() != day {
			return time.Time{}, ErrUnrecognizedDate
		}
		d = next
	}
	return d, nil
}

// ParseWindow resolves a spoken time preference to an arrival window.
func (c *Calendar) ParseWindow(phrase string) (Window, error) {
	p := normalize(phrase)

	for _, kw := range []string{"any time", "anytime", "whenever", "doesn't matter", "does not matter", "don't care", "either", "no preference", "flexible"} {
		if strings.Contains(p, kw) {
			return WindowAny, nil
		}
	}

	for _, w := range c.windows {
		if containsWord(p, string(w.Name)) {
			return w.Name, nil
		}
	}

	if hour, ok := parseHour(p); ok {
		for _, w := range c.windows {
			if hour >= w.StartHour && hour < w.EndHour {
				return w.Name, nil
			}
		}
		return "", ErrOutsideHours
	}

	aliases := map[string][]string{
		"morning":   {"early", "a.m.", "before noon", "by noon", "first thing"},
		"afternoon": {"midday", "noon", "lunch", "after lunch", "p.m."},
		"evening":   {"after work", "late", "night", "end of the day"},
	}
	for _, w := range c.windows {
		for _, alias := range aliases[string(w.Name)] {
			if strings.Contains(p, alias) {
				return w.Name, nil
			}
		}
	}

	return "", ErrUnrecognizedTime
}

// parseHour extracts a 24h hour from phrases like "10 am", "2:30 pm", "3 o'clock".
func parseHour(p string) (int, bool) {
	if strings.Contains(p, "noon") && !strings.Contains(p, "afternoon") && !beforeNoon(p) {
		return 12, true
	}
	m := clockRe.FindStringSubmatch(p)
	if m == nil {
		return 0, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 23 {
		return 0, false
	}
	suffix := strings.ReplaceAll(m[3], ".", "")
	switch {
	case strings.HasPrefix(suffix, "pm"):
		if hour < 12 {
			hour += 12
		}
	case strings.HasPrefix(suffix, "am"):
		if hour == 12 {
			hour = 0
		}
	case hour <= 6:
		// Callers saying "three" mean the afternoon.
		hour += 12
	}
	return hour, true
}

func beforeNoon(p string) bool {
	return strings.Contains(p, "before noon") || strings.Contains(p, "by noon")
}

// SpokenDate renders a date for text-to-speech, e.g. "Tuesday, October 21st".
func SpokenDate(d time.Time) string {
	return fmt.Sprintf("%s, %s %s", d.Weekday(), d.Month(), ordinal(d.Day()))
}

// RelativeDate prefers "today" and "tomorrow" over the full spoken date.
func (c *Calendar) RelativeDate(d, now time.Time) string {
	today := c.Today(now)
	switch {
	case d.Equal(today):
		return "today"
	case d.Equal(today.AddDate(0, 0, 1)):
		return "tomorrow"
	default:
		return SpokenDate(d)
	}
}

func ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

func spokenHour(h int) string {
	switch {
	case h == 0 || h == 24:
		return "midnight"
	case h == 12:
		return "noon"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(",", " ", "?", " ", "!", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func containsWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if strings.Trim(f, ".") == word {
			return true
		}
	}
	return false
}
