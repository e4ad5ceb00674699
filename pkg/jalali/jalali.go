// Package jalali converts between the Jalali (Persian) calendar and the
// Gregorian calendar.
//
// Gregorian is the canonical storage form; Jalali is the display and input
// form. All arithmetic is integer day-number math: each calendar maps to a
// count of days relative to the Unix epoch, and conversion goes through that
// day number. The intercalation rule is the fixed 2820-year arithmetic cycle,
// so the mapping is a total bijection over the supported range and needs no
// tables or astronomical data.
//
// All functions are pure and safe for concurrent use.
package jalali

import (
	"fmt"
	"time"
)

// MinYear and MaxYear bound the supported Jalali year range.
const (
	MinYear = 1
	MaxYear = 3000
)

// persianEpochDays anchors the Jalali day-number formula to the Unix epoch.
// Calibrated against the reference conversion 1403/01/10 = 2024-03-30.
const persianEpochDays = -492267

// Date is a Jalali calendar date.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"` // 1-12 (1 = Farvardin)
	Day   int `json:"day"`
}

// InvalidDateError reports a Jalali date that does not exist in the calendar.
type InvalidDateError struct {
	Year  int
	Month int
	Day   int
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid jalali date %04d/%02d/%02d", e.Year, e.Month, e.Day)
}

// String formats the date as YYYY/MM/DD, e.g. "1403/01/10".
func (d Date) String() string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, d.Month, d.Day)
}

// Validate checks that the date exists in the Jalali calendar.
func (d Date) Validate() error {
	if d.Year < MinYear || d.Year > MaxYear {
		return &InvalidDateError{d.Year, d.Month, d.Day}
	}
	if d.Month < 1 || d.Month > 12 {
		return &InvalidDateError{d.Year, d.Month, d.Day}
	}
	if d.Day < 1 || d.Day > DaysInMonth(d.Year, d.Month) {
		return &InvalidDateError{d.Year, d.Month, d.Day}
	}
	return nil
}

// Parse parses a "YYYY/MM/DD" Jalali date string. A "YYYY-MM-DD" separator is
// accepted too since both appear in UI input.
func Parse(s string) (Date, error) {
	var y, m, d int
	if _, err := fmt.Sscanf(s, "%d/%d/%d", &y, &m, &d); err != nil {
		if _, err := fmt.Sscanf(s, "%d-%d-%d", &y, &m, &d); err != nil {
			return Date{}, &InvalidDateError{}
		}
	}
	date := Date{Year: y, Month: m, Day: d}
	if err := date.Validate(); err != nil {
		return Date{}, err
	}
	return date, nil
}

// IsLeapYear reports whether the given Jalali year is a leap year under the
// 2820-year cycle rule. Year 1403 is not leap; 1408 is.
func IsLeapYear(year int) bool {
	epyear := 474 + floorMod(year-474, 2820)
	return floorMod((epyear+38)*682, 2816) < 682
}

// DaysInMonth returns the number of days in the given Jalali month.
// Months 1-6 have 31 days, months 7-11 have 30, and month 12 has 30 in a
// leap year and 29 otherwise.
func DaysInMonth(year, month int) int {
	switch {
	case month >= 1 && month <= 6:
		return 31
	case month >= 7 && month <= 11:
		return 30
	case month == 12:
		if IsLeapYear(year) {
			return 30
		}
		return 29
	default:
		return 0
	}
}

// DayNumber returns the number of days between the Unix epoch (1970-01-01,
// Gregorian) and the given Jalali date. Negative before the epoch.
func (d Date) DayNumber() (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	return jalaliDayNumber(d.Year, d.Month, d.Day), nil
}

// FromDayNumber converts a day count relative to the Unix epoch to a Jalali
// date. It is the inverse of DayNumber.
func FromDayNumber(dn int) Date {
	depoch := dn - jalaliDayNumber(475, 1, 1)
	cycle := floorDiv(depoch, 1029983)
	cyear := floorMod(depoch, 1029983)

	var ycycle int
	if cyear == 1029982 {
		ycycle = 2820
	} else {
		aux1 := cyear / 366
		aux2 := cyear % 366
		ycycle = floorDiv(2134*aux1+2816*aux2+2815, 1028522) + aux1 + 1
	}

	year := ycycle + 2820*cycle + 474
	yday := dn - jalaliDayNumber(year, 1, 1) + 1

	var month int
	if yday <= 186 {
		month = (yday + 30) / 31
	} else {
		month = (yday - 6 + 29) / 30
	}
	day := dn - jalaliDayNumber(year, month, 1) + 1

	return Date{Year: year, Month: month, Day: day}
}

// ToGregorian converts the Jalali date to the equivalent Gregorian civil date
// at midnight UTC.
func (d Date) ToGregorian() (time.Time, error) {
	dn, err := d.DayNumber()
	if err != nil {
		return time.Time{}, err
	}
	gy, gm, gd := gregorianFromDayNumber(dn)
	return time.Date(gy, time.Month(gm), gd, 0, 0, 0, 0, time.UTC), nil
}

// FromTime converts the civil date of t (in t's own location) to Jalali.
func FromTime(t time.Time) Date {
	gy, gm, gd := t.Date()
	return FromDayNumber(gregorianDayNumber(gy, int(gm), gd))
}

// FromGregorian converts a Gregorian civil date to Jalali.
func FromGregorian(year, month, day int) Date {
	return FromDayNumber(gregorianDayNumber(year, month, day))
}

// Weekday returns the day of the week with Saturday=0 through Friday=6,
// matching the Persian week.
func (d Date) Weekday() (int, error) {
	dn, err := d.DayNumber()
	if err != nil {
		return 0, err
	}
	// 1970-01-01 was a Thursday (index 5 in a Saturday-based week).
	return floorMod(dn+5, 7), nil
}

// AddDays returns the Jalali date n days after d (n may be negative).
func (d Date) AddDays(n int) (Date, error) {
	dn, err := d.DayNumber()
	if err != nil {
		return Date{}, err
	}
	return FromDayNumber(dn + n), nil
}

// DayRange returns the half-open UTC interval [start, end) covering the
// given Jalali day. Used to bound storage queries in canonical Gregorian time.
func DayRange(d Date) (time.Time, time.Time, error) {
	start, err := d.ToGregorian()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// MonthRange returns the half-open UTC interval [start, end) covering the
// given Jalali month.
func MonthRange(year, month int) (time.Time, time.Time, error) {
	first := Date{Year: year, Month: month, Day: 1}
	start, err := first.ToGregorian()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last := Date{Year: year, Month: month, Day: DaysInMonth(year, month)}
	end, err := last.ToGregorian()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end.AddDate(0, 0, 1), nil
}

// jalaliDayNumber computes the epoch-relative day number of a Jalali date.
// Callers must validate the date; the formula itself is total.
func jalaliDayNumber(year, month, day int) int {
	epbase := year - 474
	epyear := 474 + floorMod(epbase, 2820)

	var mdays int
	if month <= 7 {
		mdays = (month - 1) * 31
	} else {
		mdays = (month-1)*30 + 6
	}

	return day + mdays +
		floorDiv(epyear*682-110, 2816) +
		(epyear-1)*365 +
		floorDiv(epbase, 2820)*1029983 +
		persianEpochDays
}

// gregorianDayNumber converts a Gregorian civil date to days since the Unix
// epoch (proleptic Gregorian, negative before 1970).
func gregorianDayNumber(year, month, day int) int {
	y := year
	if month <= 2 {
		y--
	}
	era := floorDiv(y, 400)
	yoe := y - era*400
	var mp int
	if month > 2 {
		mp = month - 3
	} else {
		mp = month + 9
	}
	doy := (153*mp+2)/5 + day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

// gregorianFromDayNumber is the inverse of gregorianDayNumber.
func gregorianFromDayNumber(dn int) (year, month, day int) {
	z := dn + 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		month = mp + 3
	} else {
		month = mp - 9
	}
	if month <= 2 {
		y++
	}
	return y, month, day
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}
