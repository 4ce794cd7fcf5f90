package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid watcher")

// Clock is a 24-hour wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (a single-digit hour is accepted).
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return Clock{}, fmt.Errorf("%w: check time %q is not HH:MM", ErrInvalid, s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: check time %q has a bad hour", ErrInvalid, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: check time %q has a bad minute", ErrInvalid, s)
	}

	c := Clock{Hour: h, Minute: m}
	if err := c.Validate(); err != nil {
		return Clock{}, err
	}
	return c, nil
}

// Validate checks that the clock is within 00:00..23:59.
func (c Clock) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalid, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalid, c.Minute)
	}
	return nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: check time must be a string", ErrInvalid)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Watcher is a persisted registration of interest in one campground.
type Watcher struct {
	ID           int64     `json:"id"`
	CampgroundID string    `json:"campground_id"`
	SiteType     string    `json:"site_type,omitempty"`
	TentOnly     bool      `json:"tent_only"`
	NoRV         bool      `json:"no_rv"`
	Loop         string    `json:"loop,omitempty"`
	CheckTime    Clock     `json:"check_time"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate reports whether the watcher can be stored and scheduled.
func (w Watcher) Validate() error {
	if strings.TrimSpace(w.CampgroundID) == "" {
		return fmt.Errorf("%w: campground id is required", ErrInvalid)
	}
	return w.CheckTime.Validate()
}
