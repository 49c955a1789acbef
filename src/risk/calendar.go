package risk

import "time"

const (
	DaysPerWeek          = 7
	OffsetDaysForNewYear = 1
	NewYearDay           = 1
	ThirdMondayOffset    = 2
	FourthThursdayOffset = 3
)

// IsTradingDay reports whether US equity markets are open on t's New York date.
func IsTradingDay(t time.Time) bool {
	return IsTradingDate(getEasternTime(t))
}

// IsTradingDate is IsTradingDay for a calendar date taken as-is, such as a
// daily bar date stored at UTC midnight.
func IsTradingDate(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(t)
}

// MarketDate returns t's New York calendar date at UTC midnight, the form
// daily bars are stored in.
func MarketDate(t time.Time) time.Time {
	et := getEasternTime(t)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, time.UTC)
}

// NextTradingDay returns the first trading day strictly after t, at t's clock time.
func NextTradingDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for !IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func getEasternTime(t time.Time) time.Time {
	nyLocation, err := time.LoadLocation("America/New_York")
	if err != nil {
		return t.UTC()
	}
	return t.In(nyLocation)
}

func isHoliday(t time.Time) bool {
	year := t.Year()

	// New Year's Day, moved to Monday when it falls on a Sunday
	newYearsDay := time.Date(year, time.January, NewYearDay, 0, 0, 0, 0, time.UTC)
	if newYearsDay.Weekday() == time.Sunday {
		newYearsDay = newYearsDay.AddDate(0, 0, OffsetDaysForNewYear)
	}

	mlkDay := calculateSpecificMonday(year, time.January, ThirdMondayOffset)
	presidentsDay := calculateSpecificMonday(year, time.February, ThirdMondayOffset)
	goodFriday := easterSunday(year).AddDate(0, 0, -2)

	// Memorial Day, last Monday of May
	memorialDay := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorialDay.Weekday() != time.Monday {
		memorialDay = memorialDay.AddDate(0, 0, -1)
	}

	juneteenth := observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC))
	independenceDay := observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC))
	laborDay := calculateSpecificMonday(year, time.September, 0)
	thanksgivingDay := calculateSpecificThursday(year, time.November, FourthThursdayOffset)
	christmasDay := observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))

	holidays := []time.Time{
		newYearsDay,
		mlkDay,
		presidentsDay,
		goodFriday,
		memorialDay,
		independenceDay,
		laborDay,
		thanksgivingDay,
		christmasDay,
	}
	if year >= 2022 {
		holidays = append(holidays, juneteenth)
	}
	return isDateAmong(t, holidays)
}

// observed shifts a fixed-date holiday off the weekend.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// easterSunday uses the anonymous Gregorian algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// calculateSpecificMonday calculates the specific Monday of a month (like the third Monday).
func calculateSpecificMonday(year int, month time.Month, mondayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Monday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+mondayOffset*DaysPerWeek)
}

// calculateSpecificThursday calculates the specific Thursday of a month (like the fourth Thursday).
func calculateSpecificThursday(year int, month time.Month, thursdayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Thursday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+thursdayOffset*DaysPerWeek)
}

// isDateAmong checks if the given date matches any date in the list.
func isDateAmong(t time.Time, dates []time.Time) bool {
	for _, d := range dates {
		if t.Format("2006-01-02") == d.Format("2006-01-02") {
			return true
		}
	}
	return false
}
