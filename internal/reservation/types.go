package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layouts used by Resy for calendar days and naive slot timestamps.
const (
	DayLayout      = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// TargetParameters describes what a snipe is looking for. It is a value type:
// every attempt receives its own copy.
type TargetParameters struct {
	VenueID      int
	Date         time.Time     // calendar day, midnight UTC
	EarliestTime time.Duration // offset from midnight
	PartySize    int
}

func (p TargetParameters) Validate() error {
	if p.VenueID <= 0 {
		return errors.New("venue_id must be > 0")
	}
	if p.Date.IsZero() {
		return errors.New("date required")
	}
	if p.PartySize < 1 {
		return errors.New("party_size must be >= 1")
	}
	if p.EarliestTime < 0 || p.EarliestTime >= 24*time.Hour {
		return fmt.Errorf("earliest_time out of range: %s", p.EarliestTime)
	}
	return nil
}

// Day formats the target date the way Resy's query parameters expect.
func (p TargetParameters) Day() string {
	return p.Date.Format(DayLayout)
}

// EarliestStart is the first acceptable slot start on the target date.
func (p TargetParameters) EarliestStart() time.Time {
	y, m, d := p.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(p.EarliestTime)
}

// Slot is one unit of availability returned by Resy.
type Slot struct {
	MaxSize int
	Start   time.Time

	// ConfigToken and Type are opaque Resy values, only needed to book.
	ConfigToken string
	Type        string
}

func (s Slot) String() string {
	return fmt.Sprintf("%s (max %d)", s.Start.Format(DateTimeLayout), s.MaxSize)
}

// ParseDay parses YYYY-MM-DD into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseClock parses HH:MM or HH:MM:SS into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	// normalize to HH:MM:SS
	if len(s) == 5 && strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM or HH:MM:SS)", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(d time.Duration) string {
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format("15:04:05")
}

// ParseSlotStart parses Resy's naive slot timestamp. Naive venue-local
// times are kept in UTC so they compare with EarliestStart.
func ParseSlotStart(s string) (time.Time, error) {
	return time.ParseInLocation(DateTimeLayout, strings.TrimSpace(s), time.UTC)
}
