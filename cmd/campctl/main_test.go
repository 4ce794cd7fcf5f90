package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream serves one campground month: site 001 is tent-only in loop A and
// free on two of three days, site 002 is an RV site free on one. 2024-06-07
// is a Friday.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/campground/232447/month":
			assert.Equal(t, "2024-06-01T00:00:00.000Z", r.URL.Query().Get("start_date"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"campsites": map[string]any{
					"001": map[string]any{
						"site": "A01", "loop": "A", "campsite_type": "TENT ONLY NONELECTRIC",
						"availabilities": map[string]any{
							"2024-06-06T00:00:00Z": "Available",
							"2024-06-07T00:00:00Z": "Available",
							"2024-06-08T00:00:00Z": "Reserved",
						},
					},
					"002": map[string]any{
						"site": "B01", "loop": "B", "campsite_type": "RV NONELECTRIC",
						"availabilities": map[string]any{
							"2024-06-06T00:00:00Z": "Reserved",
							"2024-06-07T00:00:00Z": "Reserved",
							"2024-06-08T00:00:00Z": "Available",
						},
					},
				},
			})
		case r.URL.Path == "/facilities":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"RECDATA": []map[string]any{
					{"FacilityID": "232447", "FacilityName": "UPPER PINES"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv("AVAILABILITY_URL", srv.URL+"/campground/{campground_id}/month")
	t.Setenv("SEARCH_URL", srv.URL+"/facilities")
	t.Setenv("UPSTREAM_RPS", "0")
	t.Setenv("CONFIG_FILE", "")
	return srv
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCmd(t *testing.T) {
	upstream(t)

	out, err := run(t, checkCmd(), "232447", "--month", "2024-06", "--tent-only", "--loop", "A")
	require.NoError(t, err)

	var got struct {
		CampgroundID string  `json:"campground_id"`
		Month        string  `json:"month"`
		Score        float64 `json:"score"`
		Matches      []struct {
			SiteID string `json:"site_id"`
			Date   string `json:"date"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "232447", got.CampgroundID)
	assert.Equal(t, "2024-06", got.Month)
	assert.InDelta(t, 0.5, got.Score, 1e-9)
	require.Len(t, got.Matches, 2)
	assert.Equal(t, "001", got.Matches[0].SiteID)
	assert.Equal(t, "2024-06-06T00:00:00Z", got.Matches[0].Date)
}

func TestCheckCmd_UpstreamFailure(t *testing.T) {
	upstream(t)

	_, err := run(t, checkCmd(), "missing", "--month", "2024-06")
	require.Error(t, err)
}

func TestCheckCmd_BadMonth(t *testing.T) {
	upstream(t)

	_, err := run(t, checkCmd(), "232447", "--month", "June")
	require.Error(t, err)
}

func TestScoreCmd(t *testing.T) {
	upstream(t)

	out, err := run(t, scoreCmd(), "232447", "--month", "2024-06")
	require.NoError(t, err)
	assert.Contains(t, out, `"score": 0.5`)
}

func TestWeekendsCmd(t *testing.T) {
	upstream(t)

	out, err := run(t, weekendsCmd(), "232447", "--month", "2024-06")
	require.NoError(t, err)

	var got []struct {
		SiteID string `json:"site_id"`
		Date   string `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-07T00:00:00Z", got[0].Date)
	assert.Equal(t, "2024-06-08T00:00:00Z", got[1].Date)
}

func TestSearchCmd(t *testing.T) {
	upstream(t)

	out, err := run(t, searchCmd(), "upper pines")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"232447","name":"UPPER PINES"}]`, out)
}

func TestCheckCmd_RequiresCampground(t *testing.T) {
	_, err := run(t, checkCmd())
	require.Error(t, err)
}
