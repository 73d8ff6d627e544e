package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-sniper/internal/jobs"
	"github.com/example/resy-sniper/internal/reservation"
)

// datetime-local inputs send minutes, and seconds when step allows them
var wakeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", reservation.DateTimeLayout}

// jobForm holds the raw form values so a rejected form can be shown again.
type jobForm struct {
	Name             string
	VenueID          string
	PartySize        string
	ReservationDate  string
	EarliestTime     string
	WakeAt           string
	IntervalMS       string
	MaxAttempts      string
	AttemptTimeoutMS string
	Book             bool
}

func defaultJobForm() jobForm {
	return jobForm{
		PartySize:        "2",
		EarliestTime:     "19:00",
		IntervalMS:       "250",
		MaxAttempts:      "8",
		AttemptTimeoutMS: "0",
	}
}

func jobFormFrom(v url.Values) jobForm {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }
	return jobForm{
		Name:             get("name"),
		VenueID:          get("venue_id"),
		PartySize:        get("party_size"),
		ReservationDate:  get("reservation_date"),
		EarliestTime:     get("earliest_time"),
		WakeAt:           get("wake_at"),
		IntervalMS:       get("interval_ms"),
		MaxAttempts:      get("max_attempts"),
		AttemptTimeoutMS: get("attempt_timeout_ms"),
		Book:             v.Get("book") != "",
	}
}

func (f jobForm) job(userID int64, loc *time.Location) (jobs.Job, error) {
	atoi := func(field, s string, def int) (int, error) {
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", field)
		}
		return n, nil
	}

	j := jobs.Job{UserID: userID, Name: f.Name, Book: f.Book}
	var err error
	if j.VenueID, err = atoi("venue_id", f.VenueID, 0); err != nil {
		return jobs.Job{}, err
	}
	if j.PartySize, err = atoi("party_size", f.PartySize, 0); err != nil {
		return jobs.Job{}, err
	}
	if j.IntervalMS, err = atoi("interval_ms", f.IntervalMS, 0); err != nil {
		return jobs.Job{}, err
	}
	if j.MaxAttempts, err = atoi("max_attempts", f.MaxAttempts, 0); err != nil {
		return jobs.Job{}, err
	}
	if j.AttemptTimeoutMS, err = atoi("attempt_timeout_ms", f.AttemptTimeoutMS, 0); err != nil {
		return jobs.Job{}, err
	}
	if j.ReservationDate, err = reservation.ParseDay(f.ReservationDate); err != nil {
		return jobs.Job{}, err
	}
	earliest := f.EarliestTime
	if earliest == "" {
		earliest = "00:00"
	}
	if j.EarliestTime, err = reservation.ParseClock(earliest); err != nil {
		return jobs.Job{}, err
	}
	if j.WakeAt, err = parseWake(f.WakeAt, loc); err != nil {
		return jobs.Job{}, err
	}
	if err := j.Validate(); err != nil {
		return jobs.Job{}, err
	}
	return j, nil
}

func parseWake(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range wakeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid wake time %q", s)
}
