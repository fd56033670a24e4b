package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Window types accepted by the app-opened metric.
const (
	WindowWeek  = "week"
	WindowMonth = "month"
)

// appOpenedWindows is how many trailing windows the metric reports.
const appOpenedWindows = 4

// Visit-frequency ranges users are bucketed into per window.
var visitFrequencyRanges = []struct {
	label string
	min   int64
	max   int64 // 0 means unbounded
}{
	{"1-5", 1, 5},
	{"6-10", 6, 10},
	{"11-20", 11, 20},
	{"21+", 21, 0},
}

// VisitFrequencyBucket counts users whose app-open tally fell in a range.
type VisitFrequencyBucket struct {
	Range string `bson:"_id" json:"range"`
	Users int64  `bson:"count" json:"users"`
}

// AppOpenedWindow is one trailing week or month with its frequency split.
type AppOpenedWindow struct {
	Label   string                 `json:"label"`
	From    time.Time              `json:"from"`
	To      time.Time              `json:"to"`
	Buckets []VisitFrequencyBucket `json:"buckets"`
}

// AppOpenedCount reports, for each of the 4 most recent weeks or months,
// how many users opened the app 1-5, 6-10, 11-20, or 21+ times. windowType
// must be "week" or "month".
func (s *Service) AppOpenedCount(ctx context.Context, windowType string) ([]AppOpenedWindow, error) {
	if windowType != WindowWeek && windowType != WindowMonth {
		return nil, fmt.Errorf("invalid window type %q: expected %q or %q", windowType, WindowWeek, WindowMonth)
	}

	defer s.metrics.ObserveAggregation("app-opened", s.now())

	windows := s.trailingWindows(windowType)
	results := make([]AppOpenedWindow, 0, len(windows))
	for _, w := range windows {
		buckets, err := s.visitFrequency(ctx, w.From, w.To)
		if err != nil {
			return nil, err
		}
		w.Buckets = buckets
		results = append(results, w)
	}
	return results, nil
}

// trailingWindows computes the 4 most recent windows, oldest first. Weeks
// start on Monday; months on the 1st.
func (s *Service) trailingWindows(windowType string) []AppOpenedWindow {
	now := s.now().In(s.loc)
	windows := make([]AppOpenedWindow, 0, appOpenedWindows)

	if windowType == WindowWeek {
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday closes the week
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).
			AddDate(0, 0, -(weekday - 1))
		for i := appOpenedWindows - 1; i >= 0; i-- {
			from := start.AddDate(0, 0, -7*i)
			windows = append(windows, AppOpenedWindow{
				Label: from.Format("2006-01-02"),
				From:  from,
				To:    from.AddDate(0, 0, 7),
			})
		}
		return windows
	}

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	for i := appOpenedWindows - 1; i >= 0; i-- {
		from := start.AddDate(0, -i, 0)
		windows = append(windows, AppOpenedWindow{
			Label: from.Format("2006-01"),
			From:  from,
			To:    from.AddDate(0, 1, 0),
		})
	}
	return windows
}

// visitFrequency counts app-open events per user inside the window, then
// buckets the per-user tallies into the frequency ranges.
func (s *Service) visitFrequency(ctx context.Context, from, to time.Time) ([]VisitFrequencyBucket, error) {
	branches := make(bson.A, 0, len(visitFrequencyRanges))
	for _, r := range visitFrequencyRanges {
		cond := bson.M{"$gte": bson.A{"$opens", r.min}}
		if r.max > 0 {
			cond = bson.M{"$and": bson.A{
				bson.M{"$gte": bson.A{"$opens", r.min}},
				bson.M{"$lte": bson.A{"$opens", r.max}},
			}}
		}
		branches = append(branches, bson.M{"case": cond, "then": r.label})
	}

	pipeline := mongo.Pipeline{
		matchStage(bson.M{
			"module":    ModuleOverallApp,
			"createdAt": bson.M{"$gte": from, "$lt": to},
		}),
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$userId",
			"opens": bson.M{"$sum": 1},
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"range": bson.M{"$switch": bson.M{
				"branches": branches,
				"default":  visitFrequencyRanges[0].label,
			}},
		}}},
		groupByFieldCountStage("range"),
		sortByLabelStage(),
	}

	var buckets []VisitFrequencyBucket
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}
