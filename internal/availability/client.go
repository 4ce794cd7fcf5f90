package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRPS     = 2
	defaultBurst   = 2

	// DefaultAvailabilityURL is the recreation.gov month availability endpoint.
	DefaultAvailabilityURL = "https://www.recreation.gov/api/camps/availability/campground/{campground_id}/month"
	// DefaultSearchURL is the recreation.gov facility search endpoint.
	DefaultSearchURL = "https://www.recreation.gov/api/facilities"

	campgroundPlaceholder = "{campground_id}"
)

// Client fetches campground availability and facility search results from
// the upstream feed.
type Client struct {
	availabilityURL string
	searchURL       string
	apiKey          string
	client          *http.Client
	limiter         *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every upstream request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAPIKey sends the key in the "apikey" header on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// NewClient constructs a Client using the production recreation.gov URLs.
func NewClient(opts ...Option) *Client {
	return NewClientWithURLs(DefaultAvailabilityURL, DefaultSearchURL, opts...)
}

// NewClientWithURLs constructs a Client pointing at custom endpoints.
// availabilityURL may contain "{campground_id}"; when it does not, the id is
// appended as a path segment.
func NewClientWithURLs(availabilityURL, searchURL string, opts ...Option) *Client {
	c := &Client{
		availabilityURL: availabilityURL,
		searchURL:       searchURL,
		client:          &http.Client{Timeout: defaultTimeout},
		limiter:         rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statusError is returned by getJSON for non-2xx responses.
type statusError struct {
	url  string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.url, e.code, e.body)
}

// getJSON performs a rate-limited GET request and decodes the JSON response into dst.
func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &statusError{url: rawURL, code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}

	return nil
}

// rawAvailability mirrors the upstream month document. Campsites is kept raw
// so a malformed site map degrades to zero sites instead of failing the fetch.
type rawAvailability struct {
	Campsites json.RawMessage `json:"campsites"`
}

type rawSite struct {
	Site           string         `json:"site"`
	Loop           string         `json:"loop"`
	CampsiteType   string         `json:"campsite_type"`
	Availabilities map[string]any `json:"availabilities"`
}

// Fetch retrieves and normalizes availability for a campground and month.
// Any failure is returned as a *FetchFailedError.
func (c *Client) Fetch(ctx context.Context, campgroundID string, month time.Time) (*Payload, error) {
	month = MonthStart(month)
	endpoint := c.availabilityEndpoint(campgroundID) + "?start_date=" + url.QueryEscape(StartDate(month))

	var raw rawAvailability
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		ferr := &FetchFailedError{CampgroundID: campgroundID, Month: month, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			ferr.StatusCode = se.code
		}
		return nil, ferr
	}

	return normalize(campgroundID, month, raw), nil
}

func (c *Client) availabilityEndpoint(campgroundID string) string {
	id := url.PathEscape(campgroundID)
	if strings.Contains(c.availabilityURL, campgroundPlaceholder) {
		return strings.ReplaceAll(c.availabilityURL, campgroundPlaceholder, id)
	}
	return strings.TrimRight(c.availabilityURL, "/") + "/" + id
}

// normalize flattens the site-keyed upstream document into sorted sites.
// Missing or malformed parts yield fewer sites or days, never an error.
func normalize(campgroundID string, month time.Time, raw rawAvailability) *Payload {
	p := &Payload{CampgroundID: campgroundID, Month: month}

	var campsites map[string]json.RawMessage
	if len(raw.Campsites) == 0 || json.Unmarshal(raw.Campsites, &campsites) != nil {
		return p
	}

	ids := make([]string, 0, len(campsites))
	for id := range campsites {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var rs rawSite
		if err := json.Unmarshal(campsites[id], &rs); err != nil {
			continue
		}

		tentOnly, noRV := SiteAttributes(rs.CampsiteType)
		site := Site{
			ID:       id,
			Name:     rs.Site,
			Type:     rs.CampsiteType,
			Loop:     rs.Loop,
			TentOnly: tentOnly,
			NoRV:     noRV,
		}

		dates := make([]string, 0, len(rs.Availabilities))
		for date := range rs.Availabilities {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		for _, date := range dates {
			status, ok := rs.Availabilities[date].(string)
			if !ok {
				status = StatusUnknown
			}
			site.Days = append(site.Days, Day{Date: date, Status: status})
		}

		p.Sites = append(p.Sites, site)
	}

	return p
}

type rawSearch struct {
	RecData []struct {
		FacilityID   json.RawMessage `json:"FacilityID"`
		FacilityName string          `json:"FacilityName"`
	} `json:"RECDATA"`
}

// Search looks up campgrounds by free-text query, optionally near a coordinate.
func (c *Client) Search(ctx context.Context, query, lat, lon string) ([]Campground, error) {
	params := url.Values{}
	params.Set("query", query)
	if lat != "" && lon != "" {
		params.Set("latitude", lat)
		params.Set("longitude", lon)
	}

	var raw rawSearch
	if err := c.getJSON(ctx, c.searchURL+"?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("searching campgrounds for %q: %w", query, err)
	}

	out := make([]Campground, 0, len(raw.RecData))
	for _, r := range raw.RecData {
		id := strings.Trim(string(r.FacilityID), `"`)
		if id == "" || id == "null" {
			continue
		}
		out = append(out, Campground{ID: id, Name: r.FacilityName})
	}
	return out, nil
}
