package fluentsql

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999999"
)

// LocalDate is a calendar date without a time zone.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date t falls on in t's location.
func DateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// String renders the date as YYYY-MM-DD.
func (d LocalDate) String() string {
	return d.midnight().Format(dateLayout)
}

func (d LocalDate) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// LocalTime is a wall-clock time of day without a date or time zone.
type LocalTime struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// TimeOf returns the clock reading of t in t's location.
func TimeOf(t time.Time) LocalTime {
	return LocalTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

// String renders the time as HH:MM:SS with optional fractional seconds.
func (t LocalTime) String() string {
	return t.clock().Format(timeLayout)
}

func (t LocalTime) clock() time.Time {
	return time.Date(0, time.January, 1, t.Hour, t.Minute, t.Second, t.Nanosecond, time.UTC)
}

// LocalDateTime is a date and wall-clock time without a time zone.
type LocalDateTime struct {
	Date LocalDate
	Time LocalTime
}

// DateTimeOf returns the wall-clock reading of t in t's location.
func DateTimeOf(t time.Time) LocalDateTime {
	return LocalDateTime{Date: DateOf(t), Time: TimeOf(t)}
}

// String renders the value as YYYY-MM-DDTHH:MM:SS.
func (dt LocalDateTime) String() string {
	return dt.Date.String() + "T" + dt.Time.String()
}

func (dt LocalDateTime) wall() time.Time {
	return time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Nanosecond, time.UTC)
}

// Year is a calendar year. It binds as January 1st of that year.
type Year int

// YearMonth is a month of a calendar year. It binds as the first day of the
// month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// String renders the value as YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}
