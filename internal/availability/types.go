package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StatusAvailable is the upstream status of a bookable site-day.
const StatusAvailable = "Available"

// StatusUnknown stands in for a day whose upstream status is not a string.
// The day still counts toward totals but is never available.
const StatusUnknown = "Unknown"

// Record is a single site-day from the availability feed.
type Record struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name,omitempty"`
	Date     string `json:"date"`
	Status   string `json:"status"`
	SiteType string `json:"site_type,omitempty"`
	Loop     string `json:"loop,omitempty"`
	TentOnly bool   `json:"tent_only"`
	NoRV     bool   `json:"no_rv"`
}

// Available reports whether the record carries the exact upstream "Available" status.
func (r Record) Available() bool {
	return r.Status == StatusAvailable
}

// Day is the status of one site on one date.
type Day struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

// Site holds the normalized days of one campsite together with the
// attributes derived from its site-type label.
type Site struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Loop     string `json:"loop,omitempty"`
	TentOnly bool   `json:"tent_only"`
	NoRV     bool   `json:"no_rv"`
	Days     []Day  `json:"days"`
}

// Payload is the normalized availability of one campground for one month.
// Sites are ordered by ascending id and days by ascending date.
type Payload struct {
	CampgroundID string    `json:"campground_id"`
	Month        time.Time `json:"month"`
	Sites        []Site    `json:"sites"`
}

// Records flattens the payload into one record per site-day.
func (p *Payload) Records() []Record {
	if p == nil {
		return nil
	}

	var out []Record
	for _, s := range p.Sites {
		for _, d := range s.Days {
			out = append(out, Record{
				SiteID:   s.ID,
				SiteName: s.Name,
				Date:     d.Date,
				Status:   d.Status,
				SiteType: s.Type,
				Loop:     s.Loop,
				TentOnly: s.TentOnly,
				NoRV:     s.NoRV,
			})
		}
	}
	return out
}

// SiteAttributes derives the tent-only and no-RV flags from a free-text
// site-type label. Matching is case-insensitive.
func SiteAttributes(label string) (tentOnly, noRV bool) {
	upper := strings.ToUpper(label)
	noRV = !strings.Contains(upper, "RV")
	tentOnly = strings.Contains(upper, "TENT") && noRV
	return tentOnly, noRV
}

// Campground is one facility returned by the search endpoint.
type Campground struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ErrFetchFailed matches every *FetchFailedError via errors.Is.
var ErrFetchFailed = errors.New("availability fetch failed")

// FetchFailedError reports a transport error, a non-2xx response or an
// undecodable body from the availability feed.
type FetchFailedError struct {
	CampgroundID string
	Month        time.Time
	StatusCode   int // zero when no HTTP response was received
	Err          error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetching availability for campground %s (%s): %v",
		e.CampgroundID, FormatMonth(e.Month), e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }
