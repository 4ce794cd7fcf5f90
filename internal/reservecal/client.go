// Package reservecal reads ReserveCalifornia park availability and the time
// the next block of inventory is released.
package reservecal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRPS     = 1
	defaultBurst   = 1

	// DefaultAvailabilityURL is the UseDirect park availability endpoint.
	DefaultAvailabilityURL = "https://calirdr.usedirect.com/RDR/rdr/availability/park"
	// DefaultParkPageURL is the public park page that embeds the release time.
	DefaultParkPageURL = "https://www.reservecalifornia.com/Web/#!park/{park_id}/{facility_id}"

	parkPlaceholder     = "{park_id}"
	facilityPlaceholder = "{facility_id}"
)

// ErrUpstream marks failures talking to ReserveCalifornia.
var ErrUpstream = errors.New("reservecal upstream failed")

var nextUpdatePattern = regexp.MustCompile(`"nextAvailabilityUpdate"\s*:\s*"([^"]+)"`)

// Layouts accepted for the embedded release time, most specific first.
var updateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Client talks to ReserveCalifornia.
type Client struct {
	availabilityURL string
	parkPageURL     string
	loc             *time.Location
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

// WithLocation sets the zone for release times published without an offset.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewClient constructs a Client using the production URLs.
func NewClient(opts ...Option) *Client {
	return NewClientWithURLs(DefaultAvailabilityURL, DefaultParkPageURL, opts...)
}

// NewClientWithURLs constructs a Client pointing at custom endpoints.
// parkPageURL may contain "{park_id}" and "{facility_id}".
func NewClientWithURLs(availabilityURL, parkPageURL string, opts ...Option) *Client {
	c := &Client{
		availabilityURL: availabilityURL,
		parkPageURL:     parkPageURL,
		loc:             time.UTC,
		client:          &http.Client{Timeout: defaultTimeout},
		limiter:         rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate-limited GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, rawURL, accept string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUpstream, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%w: GET %s returned status %d: %s", ErrUpstream, rawURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp.Body, nil
}

// Availability returns the raw availability document for a park facility
// starting at start.
func (c *Client) Availability(ctx context.Context, parkID, facilityID string, start time.Time) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("parkId", parkID)
	params.Set("facilityId", facilityID)
	params.Set("startDate", start.Format(time.DateOnly))
	endpoint := c.availabilityURL + "?" + params.Encode()

	body, err := c.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var doc json.RawMessage
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding response from %s: %w", ErrUpstream, endpoint, err)
	}
	return doc, nil
}

// NextUpdate reads the park page and returns when new availability is next
// released. It returns nil, nil when the page does not publish a time.
func (c *Client) NextUpdate(ctx context.Context, parkID, facilityID string) (*time.Time, error) {
	endpoint := strings.NewReplacer(
		parkPlaceholder, url.PathEscape(parkID),
		facilityPlaceholder, url.PathEscape(facilityID),
	).Replace(c.parkPageURL)

	body, err := c.get(ctx, endpoint, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing park page %s: %w", ErrUpstream, endpoint, err)
	}

	for _, script := range scripts(doc) {
		m := nextUpdatePattern.FindStringSubmatch(script)
		if m == nil {
			continue
		}
		if t, ok := c.parseUpdateTime(m[1]); ok {
			return &t, nil
		}
	}
	return nil, nil
}

func (c *Client) parseUpdateTime(s string) (time.Time, bool) {
	for _, layout := range updateLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// scripts returns the inline text of every <script> element in document order.
func scripts(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			var b strings.Builder
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.TextNode {
					b.WriteString(child.Data)
				}
			}
			if b.Len() > 0 {
				out = append(out, b.String())
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return out
}
