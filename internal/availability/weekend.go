package availability

import "time"

// AvailableWeekends keeps the available records whose date is a Friday or
// Saturday night. Records with an unparseable date are dropped.
func AvailableWeekends(records []Record) []Record {
	var out []Record
	for _, r := range records {
		if !r.Available() {
			continue
		}
		d, ok := parseDate(r.Date)
		if !ok {
			continue
		}
		if wd := d.Weekday(); wd == time.Friday || wd == time.Saturday {
			out = append(out, r)
		}
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
