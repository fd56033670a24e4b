// Package dashboard implements the reporting aggregation engine for the
// admin panel: time-windowed counts, leaderboards, geo drill-downs, and
// merged multi-source statistics computed over the document store.
package dashboard

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Date layouts accepted on the query string. RFC3339 is tried first so
// clients sending full timestamps keep their time-of-day on fromDate.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Filter is the raw geo/date filter supplied by dashboard endpoints.
// All fields are optional; empty values are omitted from the built query.
type Filter struct {
	State    string   `json:"state,omitempty"`
	District string   `json:"district,omitempty"`
	Blocks   []string `json:"blocks,omitempty"`
	FromDate string   `json:"fromDate,omitempty"`
	ToDate   string   `json:"toDate,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return f.State == "" && f.District == "" && len(f.Blocks) == 0 &&
		f.FromDate == "" && f.ToDate == ""
}

// Direct builds a query against documents that carry geo fields at the top
// level (subscribers). Geo values are parsed into ObjectIDs; a malformed id
// returns the driver's cast error unmodified so the caller surfaces it.
// toDate is widened to the end of the day (23:59:59.999) so the range is
// inclusive of the final day.
func (f Filter) Direct(loc *time.Location) (bson.M, error) {
	return f.build("", loc)
}

// Joined builds the same query for documents that gained the subscriber
// profile under a "user" sub-object through a lookup stage, so geo paths
// are prefixed with "user.".
func (f Filter) Joined(loc *time.Location) (bson.M, error) {
	return f.build("user.", loc)
}

func (f Filter) build(prefix string, loc *time.Location) (bson.M, error) {
	query := bson.M{}

	if f.State != "" {
		id, err := primitive.ObjectIDFromHex(f.State)
		if err != nil {
			return nil, err
		}
		query[prefix+"stateId"] = id
	}
	if f.District != "" {
		id, err := primitive.ObjectIDFromHex(f.District)
		if err != nil {
			return nil, err
		}
		query[prefix+"districtId"] = id
	}
	if len(f.Blocks) > 0 {
		ids := make([]primitive.ObjectID, 0, len(f.Blocks))
		for _, b := range f.Blocks {
			id, err := primitive.ObjectIDFromHex(b)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if len(ids) == 1 {
			query[prefix+"blockId"] = ids[0]
		} else {
			query[prefix+"blockId"] = bson.M{"$in": ids}
		}
	}

	dateRange, err := f.dateRange(loc)
	if err != nil {
		return nil, err
	}
	if len(dateRange) > 0 {
		query["createdAt"] = dateRange
	}

	return query, nil
}

// dateRange builds the createdAt predicate. fromDate maps to $gte as parsed;
// toDate maps to $lte at 23:59:59.999 local time, never the bare midnight.
func (f Filter) dateRange(loc *time.Location) (bson.M, error) {
	r := bson.M{}
	if f.FromDate != "" {
		from, err := parseDate(f.FromDate, loc)
		if err != nil {
			return nil, err
		}
		r["$gte"] = from
	}
	if f.ToDate != "" {
		to, err := parseDate(f.ToDate, loc)
		if err != nil {
			return nil, err
		}
		y, m, d := to.Date()
		r["$lte"] = time.Date(y, m, d, 23, 59, 59, 999e6, to.Location())
	}
	return r, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected RFC3339 or YYYY-MM-DD", value)
}
