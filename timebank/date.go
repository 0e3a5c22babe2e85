package timebank

import (
	"encoding/json"
	"time"
)

// =============================================================================
// DATE - Calendar date (no time component), always UTC
// =============================================================================

// Date is a calendar date. Range boundaries in this package are always dates;
// instants (time.Time) appear only inside entries.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) Next() Date         { return d.AddDays(1) }

// Properties
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) String() string        { return d.Time.Format("2006-01-02") }

// EndExclusive returns the first instant after the date, i.e. midnight of the
// next day. Instant filters on a date range use [Start.Time, End.EndExclusive).
func (d Date) EndExclusive() time.Time { return d.Time.AddDate(0, 0, 1) }

// JSON form is the plain YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive [Start, End] calendar range.
type DateRange struct {
	Start Date
	End   Date
}

func (r DateRange) Valid() bool { return !r.End.Before(r.Start) }

func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !(r.End.Before(other.Start) || r.Start.After(other.End))
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// WORKING DAYS
// =============================================================================

// WorkingDays counts the working days in [start, end]: Sundays never count,
// Saturdays only when includeSaturday is set.
func WorkingDays(start, end Date, includeSaturday bool) int64 {
	if end.Before(start) {
		return 0
	}
	var total int64
	for cursor := start; cursor.BeforeOrEqual(end); cursor = cursor.Next() {
		switch cursor.Weekday() {
		case time.Sunday:
			continue
		case time.Saturday:
			if !includeSaturday {
				continue
			}
		}
		total++
	}
	return total
}

// ExpectedSeconds converts a working-day count into expected seconds for the
// configured daily target.
func ExpectedSeconds(workingDays int64, settings PeriodSettings) int64 {
	return workingDays * int64(settings.TargetDailyMinutes) * 60
}
