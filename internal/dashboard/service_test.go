package dashboard

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vitalpath/pulseboard/internal/cache"
)

// TestSubscriberSeries_Today verifies the canonical today shape: hourly
// buckets over the current local day, with the scalar from CountDocuments.
func TestSubscriberSeries_Today(t *testing.T) {
	store := &fakeStore{
		counts: map[string]int64{CollectionSubscribers: 5},
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			if collection != CollectionSubscribers {
				t.Errorf("unexpected collection %q", collection)
			}
			return []BucketCount{{Label: "10", Count: 2}, {Label: "11", Count: 3}}, nil
		},
	}
	svc := newTestService(t, store)

	got, err := svc.SubscriberSeries(context.Background(), Filter{}, RequestTypeToday)
	if err != nil {
		t.Fatalf("SubscriberSeries: %v", err)
	}
	if got.Count != 5 {
		t.Errorf("Count = %d, want 5", got.Count)
	}
	want := []BucketCount{{Label: "10", Count: 2}, {Label: "11", Count: 3}}
	if !reflect.DeepEqual(got.Series, want) {
		t.Errorf("Series = %v, want %v", got.Series, want)
	}

	// The match stage must carry the current local day window.
	match, ok := stageValue(store.aggregateCalls[0].pipeline, "$match").(bson.M)
	if !ok {
		t.Fatal("no $match stage in subscriber pipeline")
	}
	if _, ok := match["createdAt"]; !ok {
		t.Errorf("today request missing createdAt window: %v", match)
	}

	// The bucket label must be formatted as a 2-digit hour.
	addFields, ok := stageValue(store.aggregateCalls[0].pipeline, "$addFields").(bson.M)
	if !ok {
		t.Fatal("no $addFields stage in subscriber pipeline")
	}
	bucket := addFields["bucket"].(bson.M)["$dateToString"].(bson.M)
	if bucket["format"] != "%H" {
		t.Errorf("bucket format = %v, want %%H", bucket["format"])
	}
	if bucket["timezone"] != DefaultTimezone {
		t.Errorf("bucket timezone = %v, want %s", bucket["timezone"], DefaultTimezone)
	}
}

// TestSubscriberSeries_FilterError verifies a malformed id fails the call.
func TestSubscriberSeries_FilterError(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	if _, err := svc.SubscriberSeries(context.Background(), Filter{State: "bogus"}, ""); err == nil {
		t.Error("expected cast error to propagate")
	}
}

// TestSubscriberSeries_StoreErrorPropagates verifies aggregation failures
// surface unmodified with no partial result.
func TestSubscriberSeries_StoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("aggregation rejected")
	store := &fakeStore{
		onAggregate: func(string, mongo.Pipeline) (any, error) { return nil, storeErr },
	}
	svc := newTestService(t, store)

	_, err := svc.SubscriberSeries(context.Background(), Filter{}, "month")
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want %v", err, storeErr)
	}
}

// TestAssessmentSeries_MergesThreeSources verifies current + pro + legacy
// counts sum into one total.
func TestAssessmentSeries_MergesThreeSources(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			switch collection {
			case CollectionAssessmentResults:
				return []BucketCount{{Label: "2025-05", Count: 5}}, nil
			case CollectionProAssessments:
				return []BucketCount{{Label: "2025-05", Count: 3}}, nil
			default:
				t.Errorf("unexpected collection %q", collection)
				return nil, nil
			}
		},
	}
	legacy := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []BucketCount{{Label: "2025-04", Count: 2}}, nil
		},
	}
	svc := newTestService(t, store, func(c *Config) { c.Legacy = legacy })

	got, err := svc.AssessmentSeries(context.Background(), Filter{FromDate: "2025-04-01", ToDate: "2025-06-01"}, "month")
	if err != nil {
		t.Fatalf("AssessmentSeries: %v", err)
	}
	if got.TotalCompletedAssessment != 10 {
		t.Errorf("TotalCompletedAssessment = %d, want 10", got.TotalCompletedAssessment)
	}
	want := []BucketCount{{Label: "2025-04", Count: 2}, {Label: "2025-05", Count: 8}}
	if !reflect.DeepEqual(got.Series, want) {
		t.Errorf("Series = %v, want %v", got.Series, want)
	}

	// Completed assessments only.
	match := stageValue(store.aggregateCalls[0].pipeline, "$match").(bson.M)
	if match["isCalculated"] != true {
		t.Errorf("expected isCalculated filter, got %v", match)
	}
}

// TestAssessmentSeries_LegacyFailureDegrades verifies a legacy-store error
// degrades to the live sources instead of failing the request.
func TestAssessmentSeries_LegacyFailureDegrades(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []BucketCount{{Label: "2025-05", Count: 4}}, nil
		},
	}
	legacy := &fakeStore{
		onAggregate: func(string, mongo.Pipeline) (any, error) {
			return nil, errors.New("legacy store unreachable")
		},
	}
	svc := newTestService(t, store, func(c *Config) { c.Legacy = legacy })

	got, err := svc.AssessmentSeries(context.Background(), Filter{}, "month")
	if err != nil {
		t.Fatalf("AssessmentSeries: %v", err)
	}
	if got.TotalCompletedAssessment != 8 {
		t.Errorf("TotalCompletedAssessment = %d, want 8 (current + pro only)", got.TotalCompletedAssessment)
	}
}

// TestLegacyAssessmentForUser verifies the per-user lookup hits the legacy
// store keyed by user_id and surfaces ErrNotFound for unmigrated users.
func TestLegacyAssessmentForUser(t *testing.T) {
	userID := primitive.NewObjectID()
	rec := LegacyAssessment{UserID: userID, ObtainedMarks: 7, TotalMarks: 10, IsCalculated: true}
	legacy := &fakeStore{
		findOne: func(collection string, filter bson.M) (any, error) {
			if collection != CollectionLegacyAssessments {
				t.Errorf("unexpected collection %q", collection)
			}
			if filter["user_id"] != userID {
				t.Errorf("filter = %v, want user_id %v", filter, userID)
			}
			return rec, nil
		},
	}
	svc := newTestService(t, &fakeStore{}, func(c *Config) { c.Legacy = legacy })

	got, err := svc.LegacyAssessmentForUser(context.Background(), userID.Hex())
	if err != nil {
		t.Fatalf("LegacyAssessmentForUser: %v", err)
	}
	if got.ObtainedMarks != 7 || got.UserID != userID {
		t.Errorf("record = %+v, want %+v", got, rec)
	}

	// Unmigrated user: the fake's zero behavior is ErrNotFound.
	svc = newTestService(t, &fakeStore{}, func(c *Config) { c.Legacy = &fakeStore{} })
	if _, err := svc.LegacyAssessmentForUser(context.Background(), userID.Hex()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// No legacy store configured behaves like an unmigrated user.
	svc = newTestService(t, &fakeStore{})
	if _, err := svc.LegacyAssessmentForUser(context.Background(), userID.Hex()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound without legacy store", err)
	}

	// Malformed ids fail at the cast boundary.
	svc = newTestService(t, &fakeStore{}, func(c *Config) { c.Legacy = &fakeStore{} })
	if _, err := svc.LegacyAssessmentForUser(context.Background(), "not-an-objectid"); err == nil {
		t.Error("expected cast error for malformed user id")
	}
}

// TestAssessmentSeries_CurrentFailureFails verifies live-source errors are
// not degraded.
func TestAssessmentSeries_CurrentFailureFails(t *testing.T) {
	storeErr := errors.New("primary down")
	store := &fakeStore{
		onAggregate: func(string, mongo.Pipeline) (any, error) { return nil, storeErr },
	}
	svc := newTestService(t, store)

	if _, err := svc.AssessmentSeries(context.Background(), Filter{}, "month"); !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want %v", err, storeErr)
	}
}

// TestCadreWiseGraph_PercentOfTopFive verifies shares divide by the sum of
// the displayed cadres, not the full population.
func TestCadreWiseGraph_PercentOfTopFive(t *testing.T) {
	store := &fakeStore{
		counts: map[string]int64{CollectionSubscribers: 100000},
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []CadreShare{
				{CadreType: "National", Count: 30},
				{CadreType: "District", Count: 20},
			}, nil
		},
	}
	svc := newTestService(t, store)

	got, err := svc.CadreWiseGraph(context.Background(), Filter{}, "")
	if err != nil {
		t.Fatalf("CadreWiseGraph: %v", err)
	}
	if got[0].Percentage != 60 || got[1].Percentage != 40 {
		t.Errorf("percentages = %v/%v, want 60/40 of the top-5 sum", got[0].Percentage, got[1].Percentage)
	}

	// Top-5 cap must be part of the pipeline.
	if limit := stageValue(store.aggregateCalls[0].pipeline, "$limit"); limit != topCadres {
		t.Errorf("$limit = %v, want %d", limit, topCadres)
	}
}

// TestModuleCount_GeoFilterUsesJoin verifies geo-filtered scalar counts run
// through the subscriber join while unfiltered ones use CountDocuments.
func TestModuleCount_GeoFilterUsesJoin(t *testing.T) {
	state := "656f1b2a3c4d5e6f708192a3"

	store := &fakeStore{
		counts: map[string]int64{CollectionActivityEvents: 7},
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []struct {
				Count int64 `bson:"count"`
			}{{Count: 3}}, nil
		},
	}
	svc := newTestService(t, store)

	// No geo: the cheap CountDocuments path.
	n, err := svc.ChatbotCount(context.Background(), Filter{}, "")
	if err != nil {
		t.Fatalf("ChatbotCount: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
	if len(store.aggregateCalls) != 0 {
		t.Errorf("expected no aggregation without geo filter")
	}

	// Geo filter: must join.
	n, err = svc.ChatbotCount(context.Background(), Filter{State: state}, "")
	if err != nil {
		t.Fatalf("ChatbotCount with geo: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	stages := pipelineStages(store.aggregateCalls[0].pipeline)
	if stages[0] != "$lookup" {
		t.Errorf("expected $lookup first, got %v", stages)
	}
}

// TestChatbotCount_OffsetApplied verifies a past-year fromDate adds the
// configured historical constant.
func TestChatbotCount_OffsetApplied(t *testing.T) {
	store := &fakeStore{counts: map[string]int64{CollectionActivityEvents: 10}}
	svc := newTestService(t, store, func(c *Config) {
		c.Offsets = StaticOffsets{Chatbot: 250}
	})

	n, err := svc.ChatbotCount(context.Background(), Filter{FromDate: "2022-01-01"}, "")
	if err != nil {
		t.Fatalf("ChatbotCount: %v", err)
	}
	if n != 260 {
		t.Errorf("count = %d, want 260 (live 10 + offset 250)", n)
	}

	n, err = svc.ChatbotCount(context.Background(), Filter{FromDate: "2025-01-01"}, "")
	if err != nil {
		t.Fatalf("ChatbotCount: %v", err)
	}
	if n != 10 {
		t.Errorf("count = %d, want 10 (current year, no offset)", n)
	}
}

// TestAdminPanelDashboard assembles all sub-aggregations.
func TestAdminPanelDashboard(t *testing.T) {
	store := &fakeStore{
		counts: map[string]int64{
			CollectionSubscribers:    40,
			CollectionActivityEvents: 12,
		},
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			switch collection {
			case CollectionAssessmentResults, CollectionProAssessments:
				return []BucketCount{{Label: "2025-06", Count: 2}}, nil
			case CollectionActivityEvents:
				return []BucketCount{{Label: "2025-06", Count: 6}}, nil
			default:
				return []BucketCount{}, nil
			}
		},
	}
	svc := newTestService(t, store)

	panel, err := svc.AdminPanelDashboard(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("AdminPanelDashboard: %v", err)
	}
	if panel.TotalSubscriberCount != 40 {
		t.Errorf("TotalSubscriberCount = %d, want 40", panel.TotalSubscriberCount)
	}
	if panel.TodaysSubscriberCount != 40 {
		t.Errorf("TodaysSubscriberCount = %d, want 40", panel.TodaysSubscriberCount)
	}
	if panel.TotalCompletedAssessment != 4 {
		t.Errorf("TotalCompletedAssessment = %d, want 4", panel.TotalCompletedAssessment)
	}
	if panel.ScreeningToolCount != 12 || panel.ChatbotCount != 12 {
		t.Errorf("module counts = %d/%d, want 12/12", panel.ScreeningToolCount, panel.ChatbotCount)
	}
}

// TestAdminPanelDashboard_ErrorFailsWhole verifies one failing
// sub-aggregation fails the composite.
func TestAdminPanelDashboard_ErrorFailsWhole(t *testing.T) {
	storeErr := errors.New("boom")
	store := &fakeStore{countErr: storeErr}
	svc := newTestService(t, store)

	if _, err := svc.AdminPanelDashboard(context.Background(), Filter{}); !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want %v", err, storeErr)
	}
}

// TestLeaderboard_GroupsByCadreType verifies the cadre×level reshaping.
func TestLeaderboard_GroupsByCadreType(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			if collection != CollectionProgressHistories {
				t.Errorf("unexpected collection %q", collection)
			}
			rows := []leaderboardRow{}
			for _, r := range []struct {
				cadre, level string
				count        int64
			}{
				{"National", "Advanced", 12},
				{"National", "Beginner", 8},
				{"Block", "Beginner", 5},
			} {
				var row leaderboardRow
				row.ID.CadreType = r.cadre
				row.ID.LevelID = primitive.NewObjectID()
				row.Level = r.level
				row.Count = r.count
				rows = append(rows, row)
			}
			return rows, nil
		},
	}
	svc := newTestService(t, store)

	groups, err := svc.Leaderboard(context.Background(), Filter{}, "")
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %v", len(groups), groups)
	}
	if groups[0].CadreType != "National" || len(groups[0].Levels) != 2 {
		t.Errorf("first group = %+v, want National with 2 levels", groups[0])
	}
	if groups[1].CadreType != "Block" || groups[1].Levels[0].Count != 5 {
		t.Errorf("second group = %+v, want Block/Beginner=5", groups[1])
	}
}

// TestLeaderboard_GroupsOnLevelID verifies the pipeline groups progress
// records on the levelId reference and resolves the display name from the
// levels collection, since progress documents carry no name string.
func TestLeaderboard_GroupsOnLevelID(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []leaderboardRow{}, nil
		},
	}
	svc := newTestService(t, store)

	if _, err := svc.Leaderboard(context.Background(), Filter{}, ""); err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}

	p := store.aggregateCalls[0].pipeline
	group, ok := stageValue(p, "$group").(bson.M)
	if !ok {
		t.Fatalf("missing $group stage in %v", p)
	}
	id, ok := group["_id"].(bson.M)
	if !ok {
		t.Fatalf("group _id = %v, want compound key", group["_id"])
	}
	if id["levelId"] != "$levelId" {
		t.Errorf("group key = %v, want $levelId", id["levelId"])
	}
	if id["cadreType"] != "$user.cadreType" {
		t.Errorf("group key = %v, want $user.cadreType", id["cadreType"])
	}

	var nameLookup bson.M
	for _, stage := range p {
		if len(stage) > 0 && stage[0].Key == "$lookup" {
			lookup := stage[0].Value.(bson.M)
			if lookup["from"] == CollectionLevels {
				nameLookup = lookup
			}
		}
	}
	if nameLookup == nil {
		t.Fatalf("missing levels $lookup in %v", p)
	}
	if nameLookup["localField"] != "_id.levelId" {
		t.Errorf("levels lookup localField = %v, want _id.levelId", nameLookup["localField"])
	}
}

// TestModuleUsage_TopFive verifies the cap and descending sort stages.
func TestModuleUsage_TopFive(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []ModuleUsageRow{{Module: ModuleChatbot, Count: 9, TotalMinuteSpent: 540}}, nil
		},
	}
	svc := newTestService(t, store)

	rows, err := svc.ModuleUsage(context.Background(), Filter{}, RequestTypeLast30Days)
	if err != nil {
		t.Fatalf("ModuleUsage: %v", err)
	}
	if len(rows) != 1 || rows[0].Module != ModuleChatbot {
		t.Errorf("rows = %v", rows)
	}

	p := store.aggregateCalls[0].pipeline
	if limit := stageValue(p, "$limit"); limit != topModules {
		t.Errorf("$limit = %v, want %d", limit, topModules)
	}
	match := stageValue(p, "$match").(bson.M)
	window, ok := match["createdAt"].(bson.M)
	if !ok || window["$gte"] == nil {
		t.Errorf("expected last-30-days window, got %v", match)
	}
}

// TestChatbotQuestionFrequency_TopTen verifies the chatbot cap.
func TestChatbotQuestionFrequency_TopTen(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []ChatbotQuestionRow{{Question: "what is dr-tb", Count: 40}}, nil
		},
	}
	svc := newTestService(t, store)

	rows, err := svc.ChatbotQuestionFrequency(context.Background(), Filter{}, "")
	if err != nil {
		t.Fatalf("ChatbotQuestionFrequency: %v", err)
	}
	if len(rows) != 1 || rows[0].Count != 40 {
		t.Errorf("rows = %v", rows)
	}
	p := store.aggregateCalls[0].pipeline
	if limit := stageValue(p, "$limit"); limit != topChatbotQuestions {
		t.Errorf("$limit = %v, want %d", limit, topChatbotQuestions)
	}
	match := stageValue(p, "$match").(bson.M)
	if match["module"] != ModuleChatbot {
		t.Errorf("expected chatbot module filter, got %v", match)
	}
}

// TestVisitorSeries_Cached verifies the memoization round trip: the second
// call is served from the cache without touching the store.
func TestVisitorSeries_Cached(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []BucketCount{{Label: "2025-06", Count: 4}}, nil
		},
	}
	svc := newTestService(t, store, func(c *Config) {
		c.Cache = cache.NewMemory()
	})

	first, err := svc.VisitorSeries(context.Background(), Filter{}, "month")
	if err != nil {
		t.Fatalf("VisitorSeries: %v", err)
	}
	second, err := svc.VisitorSeries(context.Background(), Filter{}, "month")
	if err != nil {
		t.Fatalf("VisitorSeries (cached): %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
	if calls := len(store.aggregateCalls); calls != 1 {
		t.Errorf("store hit %d times, want 1 (second call cached)", calls)
	}
}

// TestEscalationFunnel verifies the parameterized role pipelines and the
// status folding.
func TestEscalationFunnel(t *testing.T) {
	var roleNames []string
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			if collection != CollectionQueries {
				t.Errorf("unexpected collection %q", collection)
			}
			if match, ok := stageValue(pipeline, "$match").(bson.M); ok {
				if name, ok := match["role.name"].(string); ok {
					roleNames = append(roleNames, name)
				}
			}
			if stageValue(pipeline, "$count") != nil {
				return []struct {
					Count int64 `bson:"count"`
				}{{Count: 2}}, nil
			}
			return []struct {
				Status string `bson:"_id"`
				Count  int64  `bson:"count"`
			}{
				{Status: "In Progress", Count: 3},
				{Status: "completed", Count: 7},
				{Status: "Query Transfer", Count: 1},
			}, nil
		},
	}
	svc := newTestService(t, store)

	funnel, err := svc.EscalationFunnelCounts(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("EscalationFunnelCounts: %v", err)
	}

	// Anything that is not "In Progress" counts as completed.
	if funnel.RaisedByDRTB.InProgress != 3 || funnel.RaisedByDRTB.Completed != 8 {
		t.Errorf("RaisedByDRTB = %+v, want 3 in progress / 8 completed", funnel.RaisedByDRTB)
	}
	if funnel.NodalOpen != 2 || funnel.NodalClosed != 2 {
		t.Errorf("nodal = %d/%d, want 2/2", funnel.NodalOpen, funnel.NodalClosed)
	}

	wantRoles := []string{RoleDRTB, RoleDRTB, RoleCOE, RoleCOE, RoleNodal, RoleNodal}
	if !reflect.DeepEqual(roleNames, wantRoles) {
		t.Errorf("role sequence = %v, want %v", roleNames, wantRoles)
	}

	// The six calls reuse one pipeline shape.
	if len(store.aggregateCalls) != 6 {
		t.Errorf("aggregations = %d, want 6", len(store.aggregateCalls))
	}
	for _, call := range store.aggregateCalls {
		if stages := pipelineStages(call.pipeline); stages[0] != "$lookup" || stages[1] != "$unwind" || stages[2] != "$match" {
			t.Errorf("unexpected funnel stage order: %v", stages)
		}
	}
}

// TestAppOpenedCount verifies window validation and the 4-window shape.
func TestAppOpenedCount(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			return []VisitFrequencyBucket{{Range: "1-5", Users: 10}, {Range: "21+", Users: 2}}, nil
		},
	}
	svc := newTestService(t, store)

	if _, err := svc.AppOpenedCount(context.Background(), "year"); err == nil {
		t.Error("expected error for invalid window type")
	}

	windows, err := svc.AppOpenedCount(context.Background(), WindowWeek)
	if err != nil {
		t.Fatalf("AppOpenedCount: %v", err)
	}
	if len(windows) != appOpenedWindows {
		t.Fatalf("got %d windows, want %d", len(windows), appOpenedWindows)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].From.After(windows[i-1].From) {
			t.Errorf("windows not ascending: %v then %v", windows[i-1].From, windows[i].From)
		}
		if got := windows[i].From.Sub(windows[i-1].From); got != 7*24*time.Hour {
			t.Errorf("window stride = %v, want 7 days", got)
		}
	}
	if len(windows[0].Buckets) != 2 {
		t.Errorf("buckets = %v", windows[0].Buckets)
	}

	months, err := svc.AppOpenedCount(context.Background(), WindowMonth)
	if err != nil {
		t.Fatalf("AppOpenedCount month: %v", err)
	}
	if months[3].Label != "2025-06" {
		t.Errorf("latest month label = %q, want 2025-06", months[3].Label)
	}
}

// TestMinuteSpent_SumsAndOffsets verifies the timeSpent sum and offset.
func TestMinuteSpent_SumsAndOffsets(t *testing.T) {
	store := &fakeStore{
		onAggregate: func(collection string, pipeline mongo.Pipeline) (any, error) {
			group := stageValue(pipeline, "$group").(bson.M)
			sum := group["count"].(bson.M)["$sum"]
			if sum != "$timeSpent" {
				t.Errorf("group sums %v, want $timeSpent", sum)
			}
			return []BucketCount{{Label: "2022-03", Count: 600}}, nil
		},
	}
	svc := newTestService(t, store, func(c *Config) {
		c.Offsets = StaticOffsets{MinutesSpent: 9000}
	})

	got, err := svc.MinuteSpent(context.Background(), Filter{FromDate: "2022-01-01"}, "")
	if err != nil {
		t.Fatalf("MinuteSpent: %v", err)
	}
	if got.TotalMinuteSpent != 9600 {
		t.Errorf("TotalMinuteSpent = %d, want 9600 (600 live + 9000 offset)", got.TotalMinuteSpent)
	}
}
