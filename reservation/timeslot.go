package reservation

import (
	"time"

	"gameplace/models"
)

const (
	// DateLayout is the wire format of reservation dates.
	DateLayout = "2006-01-02"
	// MaxHour bounds the continuous timeline: hours 24-29 are the next day's 00-05.
	MaxHour = 30
)

// ValidateSlot checks 0 <= start < end <= MaxHour.
func ValidateSlot(s models.TimeSlot) error {
	if s.StartHour < 0 || s.StartHour >= MaxHour {
		return validationError("startHour %d outside [0,%d)", s.StartHour, MaxHour)
	}
	if s.EndHour <= s.StartHour {
		return validationError("endHour %d must be after startHour %d", s.EndHour, s.StartHour)
	}
	if s.EndHour > MaxHour {
		return validationError("endHour %d beyond %d", s.EndHour, MaxHour)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD reservation date.
func ParseDate(date string) (time.Time, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, validationError("invalid date %q, want YYYY-MM-DD", date)
	}
	return d, nil
}

func shiftDate(date string, days int) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, days).Format(DateLayout)
}

// dayOffset is the number of calendar days from ref to date.
func dayOffset(ref, date string) int {
	r, err1 := time.Parse(DateLayout, ref)
	d, err2 := time.Parse(DateLayout, date)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(d.Sub(r).Hours() / 24)
}

// SlotsOverlap places both slots on one continuous hour timeline anchored at
// aDate and applies the half-open overlap test.
func SlotsOverlap(aDate string, a models.TimeSlot, bDate string, b models.TimeSlot) bool {
	shift := dayOffset(aDate, bDate) * 24
	bStart, bEnd := b.StartHour+shift, b.EndHour+shift
	return a.StartHour < bEnd && bStart < a.EndHour
}

// NeighbourDates are the dates whose slots can share an instant with a slot on date.
func NeighbourDates(date string) []string {
	return []string{shiftDate(date, -1), date, shiftDate(date, 1)}
}

// touchedDates are the calendar days a slot actually occupies.
func touchedDates(date string, s models.TimeSlot) []string {
	var out []string
	if s.StartHour < 24 {
		out = append(out, date)
	}
	if s.EndHour > 24 {
		out = append(out, shiftDate(date, 1))
	}
	return out
}

// SlotStart is the wall-clock start of the slot in loc.
func SlotStart(date string, s models.TimeSlot, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), s.StartHour, 0, 0, 0, loc), nil
}
