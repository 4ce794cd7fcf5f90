package availability_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campwatch/internal/availability"
)

var june = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

func newTestClient(srvURL string, opts ...availability.Option) *availability.Client {
	opts = append([]availability.Option{availability.WithRateLimit(0, 0)}, opts...)
	return availability.NewClientWithURLs(
		srvURL+"/campground/{campground_id}/month",
		srvURL+"/facilities",
		opts...,
	)
}

func twoSiteHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"campsites": map[string]any{
				"002": map[string]any{
					"site":          "B02",
					"loop":          "B",
					"campsite_type": "RV",
					"availabilities": map[string]any{
						"2024-06-01T00:00:00Z": "Available",
					},
				},
				"001": map[string]any{
					"site":          "A01",
					"loop":          "A",
					"campsite_type": "TENT ONLY NONELECTRIC",
					"availabilities": map[string]any{
						"2024-06-02T00:00:00Z": "Reserved",
						"2024-06-01T00:00:00Z": "Available",
					},
				},
			},
		})
	}
}

func TestFetch_NormalizesSites(t *testing.T) {
	var gotPath, gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("start_date")
		twoSiteHandler(t)(w, r)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	p, err := c.Fetch(context.Background(), "232447", time.Date(2024, time.June, 17, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/campground/232447/month", gotPath)
	assert.Equal(t, "2024-06-01T00:00:00.000Z", gotStart)
	assert.Equal(t, "232447", p.CampgroundID)
	assert.Equal(t, june, p.Month)

	require.Len(t, p.Sites, 2)
	assert.Equal(t, "001", p.Sites[0].ID)
	assert.Equal(t, "A01", p.Sites[0].Name)
	assert.True(t, p.Sites[0].TentOnly)
	assert.True(t, p.Sites[0].NoRV)
	assert.Equal(t, []availability.Day{
		{Date: "2024-06-01T00:00:00Z", Status: "Available"},
		{Date: "2024-06-02T00:00:00Z", Status: "Reserved"},
	}, p.Sites[0].Days)

	assert.Equal(t, "002", p.Sites[1].ID)
	assert.False(t, p.Sites[1].TentOnly)
	assert.False(t, p.Sites[1].NoRV)
}

func TestFetch_ServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	p, err := c.Fetch(context.Background(), "232447", june)
	require.Error(t, err)
	assert.Nil(t, p, "a failed fetch must not degrade to an empty payload")
	assert.True(t, errors.Is(err, availability.ErrFetchFailed))

	var ferr *availability.FetchFailedError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, http.StatusServiceUnavailable, ferr.StatusCode)
	assert.Equal(t, "232447", ferr.CampgroundID)
	assert.Contains(t, err.Error(), "2024-06")
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(twoSiteHandler(t))
	url := srv.URL
	srv.Close()

	c := newTestClient(url)
	_, err := c.Fetch(context.Background(), "232447", june)
	require.Error(t, err)

	var ferr *availability.FetchFailedError
	require.True(t, errors.As(err, &ferr))
	assert.Zero(t, ferr.StatusCode)
}

func TestFetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), "232447", june)
	assert.ErrorIs(t, err, availability.ErrFetchFailed)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, availability.WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.Fetch(context.Background(), "232447", june)
	assert.ErrorIs(t, err, availability.ErrFetchFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetch_MalformedPayloadDegrades(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantSites int
		wantDays  int
	}{
		{name: "missing campsites", body: `{}`, wantSites: 0},
		{name: "campsites wrong type", body: `{"campsites": []}`, wantSites: 0},
		{name: "site wrong type", body: `{"campsites": {"001": "oops", "002": {"availabilities": {"2024-06-01T00:00:00Z": "Available"}}}}`, wantSites: 1, wantDays: 1},
		{name: "missing availabilities", body: `{"campsites": {"001": {"campsite_type": "STANDARD"}}}`, wantSites: 1, wantDays: 0},
		{name: "non-string status", body: `{"campsites": {"001": {"availabilities": {"2024-06-01T00:00:00Z": 3, "2024-06-02T00:00:00Z": "Available"}}}}`, wantSites: 1, wantDays: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, err := newTestClient(srv.URL).Fetch(context.Background(), "1", june)
			require.NoError(t, err)
			require.Len(t, p.Sites, tc.wantSites)
			assert.Len(t, p.Records(), tc.wantDays)
		})
	}
}

func TestFetch_NonStringStatusCountsAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"campsites": {"001": {"availabilities": {
			"2024-06-01T00:00:00Z": 3,
			"2024-06-02T00:00:00Z": null,
			"2024-06-03T00:00:00Z": "Available"
		}}}}`))
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).Fetch(context.Background(), "1", june)
	require.NoError(t, err)

	records := p.Records()
	require.Len(t, records, 3)
	assert.Equal(t, availability.StatusUnknown, records[0].Status)
	assert.Equal(t, availability.StatusUnknown, records[1].Status)
	assert.False(t, records[0].Available())
	assert.True(t, records[2].Available())
}

func TestSiteAttributes(t *testing.T) {
	cases := []struct {
		label    string
		tentOnly bool
		noRV     bool
	}{
		{"TENT ONLY NONELECTRIC", true, true},
		{"tent only", true, true},
		{"RV NONELECTRIC", false, false},
		{"Tent or RV", false, false},
		{"STANDARD NONELECTRIC", false, true},
		{"", false, true},
	}
	for _, tc := range cases {
		tentOnly, noRV := availability.SiteAttributes(tc.label)
		assert.Equal(t, tc.tentOnly, tentOnly, tc.label)
		assert.Equal(t, tc.noRV, noRV, tc.label)
	}
}

func TestPayload_Records(t *testing.T) {
	p := &availability.Payload{
		Sites: []availability.Site{
			{ID: "001", Type: "TENT ONLY", Loop: "A", TentOnly: true, NoRV: true, Days: []availability.Day{
				{Date: "2024-06-01", Status: "Available"},
				{Date: "2024-06-02", Status: "Reserved"},
			}},
			{ID: "002", Days: []availability.Day{{Date: "2024-06-01", Status: "Available"}}},
		},
	}

	recs := p.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, availability.Record{
		SiteID: "001", Date: "2024-06-01", Status: "Available", SiteType: "TENT ONLY", Loop: "A", TentOnly: true, NoRV: true,
	}, recs[0])
	assert.Equal(t, "002", recs[2].SiteID)

	var nilPayload *availability.Payload
	assert.Nil(t, nilPayload.Records())
}

func TestSearch(t *testing.T) {
	var gotQuery, gotLat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotLat = r.URL.Query().Get("latitude")
		_, _ = w.Write([]byte(`{"RECDATA": [
			{"FacilityID": "232447", "FacilityName": "Upper Pines"},
			{"FacilityID": 232449, "FacilityName": "North Pines"},
			{"FacilityID": null, "FacilityName": "Broken"}
		]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Search(context.Background(), "pines", "37.7", "-119.5")
	require.NoError(t, err)
	assert.Equal(t, "pines", gotQuery)
	assert.Equal(t, "37.7", gotLat)
	assert.Equal(t, []availability.Campground{
		{ID: "232447", Name: "Upper Pines"},
		{ID: "232449", Name: "North Pines"},
	}, got)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "pines", "", "")
	require.Error(t, err)
}

func TestMonthHelpers(t *testing.T) {
	assert.Equal(t, june, availability.MonthStart(time.Date(2024, time.June, 30, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2024-06-01T00:00:00.000Z", availability.StartDate(june))
	assert.Equal(t, "2024-06", availability.FormatMonth(june))

	m, err := availability.ParseMonth("2024-06", time.Now())
	require.NoError(t, err)
	assert.Equal(t, june, m)

	m, err = availability.ParseMonth("", time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, june, m)

	_, err = availability.ParseMonth("June", time.Now())
	assert.Error(t, err)
}

func TestAvailableWeekends(t *testing.T) {
	recs := []availability.Record{
		{SiteID: "1", Date: "2024-06-06T00:00:00Z", Status: "Available"}, // Thursday
		{SiteID: "1", Date: "2024-06-07T00:00:00Z", Status: "Available"}, // Friday
		{SiteID: "1", Date: "2024-06-08", Status: "Available"},           // Saturday
		{SiteID: "2", Date: "2024-06-08T00:00:00Z", Status: "Reserved"},
		{SiteID: "3", Date: "not a date", Status: "Available"},
	}

	got := availability.AvailableWeekends(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-07T00:00:00Z", got[0].Date)
	assert.Equal(t, "2024-06-08", got[1].Date)
}
