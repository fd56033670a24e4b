package dashboard

import "time"

// Granularity is the time-bucket width of a counted series.
type Granularity string

const (
	// GranularityHour buckets by 2-digit hour ("00".."23") of the current day.
	GranularityHour Granularity = "hour"
	// GranularityDay buckets by calendar day ("2006-01-02").
	GranularityDay Granularity = "day"
	// GranularityMonth buckets by calendar month ("2006-01").
	GranularityMonth Granularity = "month"
)

// RequestTypeToday selects hourly buckets over the current local day.
const RequestTypeToday = "today"

// dateToString formats for each granularity, in MongoDB $dateToString syntax.
var bucketFormats = map[Granularity]string{
	GranularityHour:  "%H",
	GranularityDay:   "%Y-%m-%d",
	GranularityMonth: "%Y-%m",
}

// GranularityFor selects the bucket width implied by the request type and
// filter: "today" is always hourly; otherwise a date filter that narrows to
// a single calendar day yields daily buckets, and anything else monthly.
func GranularityFor(requestType string, f Filter, loc *time.Location) Granularity {
	if requestType == RequestTypeToday {
		return GranularityHour
	}
	if f.FromDate != "" && f.ToDate != "" {
		from, errFrom := parseDate(f.FromDate, loc)
		to, errTo := parseDate(f.ToDate, loc)
		if errFrom == nil && errTo == nil && sameDay(from, to) {
			return GranularityDay
		}
	}
	return GranularityMonth
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Format returns the $dateToString format for the granularity.
func (g Granularity) Format() string {
	if f, ok := bucketFormats[g]; ok {
		return f
	}
	return bucketFormats[GranularityMonth]
}

// TodayRange returns [local midnight, local midnight + 1 day) computed at
// call time. The window is never persisted.
func TodayRange(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
