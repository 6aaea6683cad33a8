package datesheet

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const isoDateLayout = "2006-01-02"

// BlockReason explains why a date cannot host exams.
type BlockReason string

const (
	BlockNone        BlockReason = ""
	BlockRestDay     BlockReason = "REST_DAY"
	BlockPartialRest BlockReason = "PARTIAL_REST_DAY"
	BlockHoliday     BlockReason = "HOLIDAY"
)

// CalendarRules describes the structurally blocked days of the school week.
// The partial rest weekday is blocked only when its day-of-month falls inside
// [PartialRestFrom, PartialRestTo], which for 8-14 is the second occurrence in the month.
type CalendarRules struct {
	FullRestDay     time.Weekday
	PartialRestDay  time.Weekday
	PartialRestFrom int
	PartialRestTo   int
}

// DefaultCalendarRules blocks every Sunday and the second Saturday of each month.
func DefaultCalendarRules() CalendarRules {
	return CalendarRules{
		FullRestDay:     time.Sunday,
		PartialRestDay:  time.Saturday,
		PartialRestFrom: 8,
		PartialRestTo:   14,
	}
}

func (r CalendarRules) isZero() bool {
	return r == CalendarRules{}
}

// HolidaySet is a set of calendar dates keyed by year, month and day.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from the provided dates.
func NewHolidaySet(dates ...time.Time) HolidaySet {
	set := make(HolidaySet, len(dates))
	for _, d := range dates {
		set.Add(d)
	}
	return set
}

// Add inserts the calendar date of d.
func (h HolidaySet) Add(d time.Time) {
	h[d.Format(isoDateLayout)] = struct{}{}
}

// AddRange inserts every date in the inclusive range [from, to].
func (h HolidaySet) AddRange(from, to time.Time) {
	from, to = DateOf(from), DateOf(to)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		h.Add(d)
	}
}

// Contains reports whether the calendar date of d is in the set.
func (h HolidaySet) Contains(d time.Time) bool {
	if h == nil {
		return false
	}
	_, ok := h[d.Format(isoDateLayout)]
	return ok
}

// Merge adds every date of other into h.
func (h HolidaySet) Merge(other HolidaySet) {
	for key := range other {
		h[key] = struct{}{}
	}
}

// Clone returns an independent copy.
func (h HolidaySet) Clone() HolidaySet {
	out := make(HolidaySet, len(h))
	out.Merge(h)
	return out
}

// Dates returns the members in increasing order.
func (h HolidaySet) Dates() []time.Time {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	dates := make([]time.Time, 0, len(keys))
	for _, key := range keys {
		d, err := time.Parse(isoDateLayout, key)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// Calendar answers availability questions for a fixed rule set and holiday set.
type Calendar struct {
	rules    CalendarRules
	holidays HolidaySet
}

// NewCalendar constructs a calendar. Zero rules fall back to DefaultCalendarRules.
func NewCalendar(rules CalendarRules, holidays HolidaySet) *Calendar {
	if rules.isZero() {
		rules = DefaultCalendarRules()
	}
	if holidays == nil {
		holidays = HolidaySet{}
	}
	return &Calendar{rules: rules, holidays: holidays}
}

// BlockReason returns why d is unavailable, or BlockNone.
func (c *Calendar) BlockReason(d time.Time) BlockReason {
	weekday := d.Weekday()
	if weekday == c.rules.FullRestDay {
		return BlockRestDay
	}
	if weekday == c.rules.PartialRestDay && d.Day() >= c.rules.PartialRestFrom && d.Day() <= c.rules.PartialRestTo {
		return BlockPartialRest
	}
	if c.holidays.Contains(d) {
		return BlockHoliday
	}
	return BlockNone
}

// Available reports whether exams may be scheduled on d.
func (c *Calendar) Available(d time.Time) bool {
	return c.BlockReason(d) == BlockNone
}

// DateOf strips the clock and location from t, keeping its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts ISO (2006-01-02) and day-first (02-01-2006) dates.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{isoDateLayout, DefaultDateFormat, "02/01/2006"} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
