package watcher

import "github.com/neexbeast/campwatch/internal/availability"

// Match returns the records of p that satisfy w's filters, in payload order.
func Match(w Watcher, p *availability.Payload) []availability.Record {
	return Filter(w, p.Records())
}

// Filter applies w's filters to records. The checks run in a fixed order and
// stop at the first failure: status, site type, tent only, no RV, loop.
func Filter(w Watcher, records []availability.Record) []availability.Record {
	var out []availability.Record
	for _, r := range records {
		if accepts(w, r) {
			out = append(out, r)
		}
	}
	return out
}

func accepts(w Watcher, r availability.Record) bool {
	if !r.Available() {
		return false
	}
	if w.SiteType != "" && r.SiteType != w.SiteType {
		return false
	}
	if w.TentOnly && !r.TentOnly {
		return false
	}
	if w.NoRV && !r.NoRV {
		return false
	}
	if w.Loop != "" && r.Loop != w.Loop {
		return false
	}
	return true
}
