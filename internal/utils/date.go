package utils

import (
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const DateLayout = "2006-01-02"

// DateOf returns the calendar day of t as seen in loc, stored as UTC midnight
// so the same day always compares equal regardless of the server zone.
func DateOf(t time.Time, loc *time.Location) datatypes.Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func ParseDate(raw string) (datatypes.Date, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return DateOf(parsed, nil), nil
		}
	}
	return datatypes.Date{}, errors.New("invalid date format")
}

// MonthRange returns [first day of the month, first day of next month).
func MonthRange(day datatypes.Date) (datatypes.Date, datatypes.Date) {
	y, m, _ := time.Time(day).Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return datatypes.Date(start), datatypes.Date(start.AddDate(0, 1, 0))
}
