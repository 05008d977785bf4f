package fees

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The school year runs April through March. A date in April 2025 or later
// belongs to "2025-2026"; a date in January-March 2025 belongs to "2024-2025".

// AcademicYearMonths is the number of payment slots in one academic year.
const AcademicYearMonths = 12

// ResolveAcademicYear maps a calendar date to its academic-year label.
func ResolveAcademicYear(date time.Time) string {
	year := date.Year()
	if date.Month() >= time.April {
		return fmt.Sprintf("%d-%d", year, year+1)
	}
	return fmt.Sprintf("%d-%d", year-1, year)
}

// ParseAcademicYear validates a "<Y>-<Y+1>" label and returns the start year.
func ParseAcademicYear(label string) (int, error) {
	parts := strings.Split(label, "-")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid academic year %q: expected <start>-<end>", label)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid academic year %q: %w", label, err)
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid academic year %q: %w", label, err)
	}
	if end != start+1 {
		return 0, fmt.Errorf("invalid academic year %q: years must be consecutive", label)
	}
	return start, nil
}

// MonthSequence returns the position (1-12) of a calendar month within the
// academic year: April is 1, March is 12. Chronological comparisons between
// slots must use this sequence, never the raw calendar month number.
func MonthSequence(calendarMonth int) int {
	return (calendarMonth+8)%12 + 1
}

// SequenceMonth is the inverse of MonthSequence: position 1-12 back to the
// calendar month (1 -> April, 12 -> March).
func SequenceMonth(sequence int) int {
	return (sequence+2)%12 + 1
}

// MonthCalendarYear returns the calendar year a slot's month falls in for an
// academic year starting in startYear. January through March roll into the
// following calendar year.
func MonthCalendarYear(startYear, calendarMonth int) int {
	if calendarMonth >= int(time.April) {
		return startYear
	}
	return startYear + 1
}

// DueDateFor computes the due date for a slot: the structure's due day
// applied to the slot's (year, month), clamped to the month's last day so a
// due day of 31 is valid in every month.
func DueDateFor(startYear, calendarMonth, dueDay int) time.Time {
	year := MonthCalendarYear(startYear, calendarMonth)
	lastDay := time.Date(year, time.Month(calendarMonth)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > lastDay {
		dueDay = lastDay
	}
	return time.Date(year, time.Month(calendarMonth), dueDay, 0, 0, 0, 0, time.UTC)
}
