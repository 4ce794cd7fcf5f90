package difficulty

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/campwatch/internal/availability"
)

// maxParallelFetches bounds concurrent upstream calls in RankCampgrounds.
const maxParallelFetches = 4

// SiteScore is the availability of one site over the payload's month.
type SiteScore struct {
	SiteID    string  `json:"site_id"`
	SiteName  string  `json:"site_name,omitempty"`
	Available int     `json:"available"`
	Total     int     `json:"total"`
	Ratio     float64 `json:"ratio"`
}

// CampgroundScore is the booking difficulty of one campground.
type CampgroundScore struct {
	CampgroundID string  `json:"campground_id"`
	Score        float64 `json:"score"`
}

// Score returns 1 - available/total over every site-day in p.
// A payload with no site-days scores 1.0.
func Score(p *availability.Payload) float64 {
	var available, total int
	if p != nil {
		for _, s := range p.Sites {
			a, t := count(s)
			available += a
			total += t
		}
	}
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(available)/float64(total)
}

// RankSites orders sites by ascending availability ratio, scarcest first.
// Ties keep payload order. A site with no days has ratio 0.
func RankSites(p *availability.Payload) []SiteScore {
	if p == nil {
		return nil
	}

	out := make([]SiteScore, 0, len(p.Sites))
	for _, s := range p.Sites {
		a, t := count(s)
		ss := SiteScore{SiteID: s.ID, SiteName: s.Name, Available: a, Total: t}
		if t > 0 {
			ss.Ratio = float64(a) / float64(t)
		}
		out = append(out, ss)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio < out[j].Ratio })
	return out
}

// SortByDifficulty returns a copy of scores ordered hardest first.
// Ties keep input order.
func SortByDifficulty(scores []CampgroundScore) []CampgroundScore {
	out := make([]CampgroundScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// RankCampgrounds scores every campground for month and ranks them hardest
// first. Any fetch failure fails the whole ranking.
func RankCampgrounds(ctx context.Context, f availability.Fetcher, ids []string, month time.Time) ([]CampgroundScore, error) {
	scores := make([]CampgroundScore, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			p, err := f.Fetch(gCtx, id, month)
			if err != nil {
				return fmt.Errorf("ranking campground %s: %w", id, err)
			}
			scores[i] = CampgroundScore{CampgroundID: id, Score: Score(p)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return SortByDifficulty(scores), nil
}

func count(s availability.Site) (available, total int) {
	for _, d := range s.Days {
		if d.Status == availability.StatusAvailable {
			available++
		}
	}
	return available, len(s.Days)
}
