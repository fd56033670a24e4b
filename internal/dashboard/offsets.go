package dashboard

import "time"

// StaticOffsets are pre-migration totals that were never backfilled into the
// live store, one constant per metric family. They are added on top of live
// aggregates for requests whose date boundary falls in a past calendar year.
// The constants were hand-tuned against the year-comparison rule below;
// do not replace the rule with a range-overlap computation.
type StaticOffsets struct {
	MinutesSpent  int64
	ScreeningTool int64
	Chatbot       int64
}

// appliesTo reports whether the historical offset should be added for the
// given filter: true iff fromDate (or, failing that, toDate) parses and its
// calendar year differs from the current year. A fromDate in the current
// year whose window reaches back into a past year intentionally does NOT
// qualify.
func (o StaticOffsets) appliesTo(f Filter, now time.Time, loc *time.Location) bool {
	if f.FromDate != "" {
		if from, err := parseDate(f.FromDate, loc); err == nil {
			return from.Year() != now.In(loc).Year()
		}
	}
	if f.ToDate != "" {
		if to, err := parseDate(f.ToDate, loc); err == nil {
			return to.Year() != now.In(loc).Year()
		}
	}
	return false
}

// Adjust returns count plus the given offset when the filter's date boundary
// is in a past year, and count unchanged otherwise.
func (o StaticOffsets) Adjust(count, offset int64, f Filter, now time.Time, loc *time.Location) int64 {
	if o.appliesTo(f, now, loc) {
		return count + offset
	}
	return count
}
