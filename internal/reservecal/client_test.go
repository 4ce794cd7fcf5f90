package reservecal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campwatch/internal/reservecal"
)

func newTestClient(srvURL string, opts ...reservecal.Option) *reservecal.Client {
	opts = append([]reservecal.Option{reservecal.WithRateLimit(0, 0)}, opts...)
	return reservecal.NewClientWithURLs(
		srvURL+"/availability/park",
		srvURL+"/Web/park/{park_id}/{facility_id}",
		opts...,
	)
}

func TestAvailability_PassesQueryAndReturnsDocument(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/availability/park", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{
			"parkId":     q.Get("parkId"),
			"facilityId": q.Get("facilityId"),
			"startDate":  q.Get("startDate"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Facility":{"Units":{"101":{"Name":"Site 1"}}}}`))
	}))
	defer srv.Close()

	start := time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)
	doc, err := newTestClient(srv.URL).Availability(context.Background(), "718", "2145", start)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"parkId": "718", "facilityId": "2145", "startDate": "2024-07-04"}, gotQuery)
	assert.JSONEq(t, `{"Facility":{"Units":{"101":{"Name":"Site 1"}}}}`, string(doc))
}

func TestAvailability_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Availability(context.Background(), "718", "2145", time.Now())
	require.ErrorIs(t, err, reservecal.ErrUpstream)
	assert.Contains(t, err.Error(), "503")
}

func TestAvailability_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Facility":`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Availability(context.Background(), "718", "2145", time.Now())
	require.ErrorIs(t, err, reservecal.ErrUpstream)
}

func TestNextUpdate(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	cases := []struct {
		name string
		page string
		loc  *time.Location
		want *time.Time
	}{
		{
			name: "offset timestamp",
			page: `<html><head><script>var cfg = {"nextAvailabilityUpdate": "2024-06-01T08:00:00-07:00"};</script></head></html>`,
			want: ptr(time.Date(2024, time.June, 1, 15, 0, 0, 0, time.UTC)),
		},
		{
			name: "naive timestamp uses location",
			page: `<html><body><script>{"nextAvailabilityUpdate":"2024-06-01T08:00:00"}</script></body></html>`,
			loc:  la,
			want: ptr(time.Date(2024, time.June, 1, 8, 0, 0, 0, la)),
		},
		{
			name: "unparseable value skipped",
			page: `<script>{"nextAvailabilityUpdate":"soon"}</script><script>{"nextAvailabilityUpdate":"2024-06-02"}</script>`,
			want: ptr(time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "outside script ignored",
			page: `<html><body><p>"nextAvailabilityUpdate": "2024-06-01T08:00:00Z"</p><script src="app.js"></script></body></html>`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(tc.page))
			}))
			defer srv.Close()

			got, err := newTestClient(srv.URL, reservecal.WithLocation(tc.loc)).NextUpdate(context.Background(), "718", "2145")
			require.NoError(t, err)
			assert.Equal(t, "/Web/park/718/2145", gotPath)

			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tc.want.Equal(*got), "got %s, want %s", got, tc.want)
		})
	}
}

func TestNextUpdate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).NextUpdate(context.Background(), "718", "2145")
	require.ErrorIs(t, err, reservecal.ErrUpstream)
}

func TestNextUpdate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<script>{"nextAvailabilityUpdate":"2024-06-02"}</script>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).NextUpdate(ctx, "718", "2145")
	require.ErrorIs(t, err, context.Canceled)
}

func ptr(t time.Time) *time.Time { return &t }
