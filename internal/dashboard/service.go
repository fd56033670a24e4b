package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vitalpath/pulseboard/internal/cache"
)

// DefaultTimezone is the locale all bucket labels are formatted in.
const DefaultTimezone = "Asia/Kolkata"

// Metric names used for cache keys and instrumentation.
const (
	metricSubscriberCount = "subscriber-count"
	metricVisitorCount    = "visitor-count"
	metricAssessmentCount = "assessment-count"
	metricLeaderboard     = "leaderboard-count"
)

// Config wires the service's dependencies. Store is required; everything
// else has a usable zero value.
type Config struct {
	Store    Store
	Legacy   Store // legacy migrated assessment store; nil disables the source
	Cache    cache.Cache
	Metrics  *Metrics
	Offsets  StaticOffsets
	Timezone string // IANA name; defaults to DefaultTimezone
	CacheTTL time.Duration
}

// Service computes dashboard aggregations. It is stateless apart from the
// injected cache: every count is a pure function of the filter, the time
// window, and the data-source set, and nothing here mutates source data.
type Service struct {
	store    Store
	legacy   Store
	cache    cache.Cache
	metrics  *Metrics
	offsets  StaticOffsets
	loc      *time.Location
	timezone string
	cacheTTL time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates a dashboard service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("dashboard: store is required")
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load timezone %q: %w", tz, err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Service{
		store:    cfg.Store,
		legacy:   cfg.Legacy,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		offsets:  cfg.Offsets,
		loc:      loc,
		timezone: tz,
		cacheTTL: ttl,
		now:      time.Now,
	}, nil
}

// Location returns the timezone bucket labels are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// SeriesResult is a bucketed count series plus its grand total.
type SeriesResult struct {
	Count  int64         `json:"count"`
	Series []BucketCount `json:"series"`
}

// filterFor builds the match predicate for a metric. When the request type
// is "today" the createdAt range is replaced with the current local day,
// regardless of any explicit dates on the filter.
func (s *Service) filterFor(f Filter, requestType string, joined bool) (bson.M, error) {
	var (
		query bson.M
		err   error
	)
	if joined {
		query, err = f.Joined(s.loc)
	} else {
		query, err = f.Direct(s.loc)
	}
	if err != nil {
		return nil, err
	}
	if requestType == RequestTypeToday {
		start, end := TodayRange(s.now(), s.loc)
		query["createdAt"] = bson.M{"$gte": start, "$lt": end}
	}
	return query, nil
}

// SubscriberSeries counts subscribers bucketed per the request type. The
// scalar count comes from the same filter via CountDocuments.
func (s *Service) SubscriberSeries(ctx context.Context, f Filter, requestType string) (*SeriesResult, error) {
	defer s.metrics.ObserveAggregation(metricSubscriberCount, s.now())

	query, err := s.filterFor(f, requestType, false)
	if err != nil {
		return nil, err
	}
	g := GranularityFor(requestType, f, s.loc)

	var series []BucketCount
	if err := s.store.Aggregate(ctx, CollectionSubscribers, seriesPipeline(query, g, s.timezone), &series); err != nil {
		return nil, err
	}
	count, err := s.store.CountDocuments(ctx, CollectionSubscribers, query)
	if err != nil {
		return nil, err
	}
	return &SeriesResult{Count: count, Series: series}, nil
}

// VisitorSeries counts home-page visit events, joined to subscriber
// profiles when a geo filter is present. The aggregation is expensive on
// large activity collections so results are memoized behind the cache.
func (s *Service) VisitorSeries(ctx context.Context, f Filter, requestType string) (*SeriesResult, error) {
	g := GranularityFor(requestType, f, s.loc)
	key := cache.Key(metricVisitorCount, f, string(g))

	if s.cache != nil {
		var cached SeriesResult
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			slog.WarnContext(ctx, "visitor count cache read failed", "error", err)
		} else if hit {
			s.metrics.IncCacheHit(metricVisitorCount)
			return &cached, nil
		}
		s.metrics.IncCacheMiss(metricVisitorCount)
	}

	defer s.metrics.ObserveAggregation(metricVisitorCount, s.now())

	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return nil, err
	}
	query["action"] = ActionHomePageVisit

	var series []BucketCount
	pipeline := joinedSeriesPipeline("userId", query, g, s.timezone)
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &series); err != nil {
		return nil, err
	}
	result := &SeriesResult{Count: SeriesTotal(series), Series: series}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "visitor count cache write failed", "error", err)
		}
	}
	return result, nil
}

// AssessmentCountResult merges completed-assessment counts from the three
// parallel sources into one additive series.
type AssessmentCountResult struct {
	TotalCompletedAssessment int64         `json:"totalCompletedAssessment"`
	Series                   []BucketCount `json:"series"`
}

// AssessmentSeries aggregates completed assessments from the current
// collection, the pro (external submission path) collection, and the legacy
// migrated store, merged by bucket label. A legacy-store failure degrades to
// the live sources only; failures of the live sources fail the request.
func (s *Service) AssessmentSeries(ctx context.Context, f Filter, requestType string) (*AssessmentCountResult, error) {
	defer s.metrics.ObserveAggregation(metricAssessmentCount, s.now())

	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return nil, err
	}
	query["isCalculated"] = true
	g := GranularityFor(requestType, f, s.loc)

	current, err := s.assessmentSource(ctx, s.store, CollectionAssessmentResults, query, g)
	if err != nil {
		return nil, err
	}
	pro, err := s.assessmentSource(ctx, s.store, CollectionProAssessments, query, g)
	if err != nil {
		return nil, err
	}
	legacy := s.legacySeries(ctx, f, requestType, g)

	merged := MergeSeries(current, pro, legacy)
	return &AssessmentCountResult{
		TotalCompletedAssessment: SeriesTotal(merged),
		Series:                   merged,
	}, nil
}

func (s *Service) assessmentSource(ctx context.Context, store Store, collection string, query bson.M, g Granularity) ([]BucketCount, error) {
	var series []BucketCount
	pipeline := joinedSeriesPipeline("userId", query, g, s.timezone)
	if err := store.Aggregate(ctx, collection, pipeline, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// legacySeries reads the legacy migrated store. The legacy documents carry
// no subscriber reference that resolves in the live store, so only the date
// window applies. Any failure degrades to an empty series; this graceful
// degradation is specific to the legacy assessment source.
func (s *Service) legacySeries(ctx context.Context, f Filter, requestType string, g Granularity) []BucketCount {
	if s.legacy == nil {
		return nil
	}

	dateOnly := Filter{FromDate: f.FromDate, ToDate: f.ToDate}
	query, err := s.filterFor(dateOnly, requestType, false)
	if err != nil {
		slog.WarnContext(ctx, "legacy assessment filter rejected, continuing without legacy source", "error", err)
		return nil
	}
	query["isCalculated"] = true

	var series []BucketCount
	if err := s.legacy.Aggregate(ctx, CollectionLegacyAssessments, seriesPipeline(query, g, s.timezone), &series); err != nil {
		slog.WarnContext(ctx, "legacy assessment aggregation failed, continuing without legacy source", "error", err)
		return nil
	}
	return series
}

// LegacyAssessmentForUser looks up one subscriber's migrated assessment
// record in the legacy store, keyed by user_id. Returns ErrNotFound when no
// legacy store is configured or the subscriber was never migrated; callers
// fall back to the current-store record alone.
func (s *Service) LegacyAssessmentForUser(ctx context.Context, userID string) (*LegacyAssessment, error) {
	if s.legacy == nil {
		return nil, ErrNotFound
	}
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, err
	}
	var rec LegacyAssessment
	if err := s.legacy.FindOne(ctx, CollectionLegacyAssessments, bson.M{"user_id": oid}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MinuteSpentResult is the total seconds spent in the app, offset-adjusted,
// with the bucketed series behind it.
type MinuteSpentResult struct {
	TotalMinuteSpent int64         `json:"totalMinuteSpent"`
	Series           []BucketCount `json:"series"`
}

// MinuteSpent sums activity timeSpent bucketed per the request type, adding
// the pre-migration constant when the date boundary is in a past year.
func (s *Service) MinuteSpent(ctx context.Context, f Filter, requestType string) (*MinuteSpentResult, error) {
	defer s.metrics.ObserveAggregation("minute-spent", s.now())

	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return nil, err
	}
	g := GranularityFor(requestType, f, s.loc)

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		bucketLabelStage(g, "createdAt", s.timezone),
		groupSumStage("timeSpent"),
		sortByLabelStage(),
	}
	var series []BucketCount
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &series); err != nil {
		return nil, err
	}

	total := s.offsets.Adjust(SeriesTotal(series), s.offsets.MinutesSpent, f, s.now(), s.loc)
	return &MinuteSpentResult{TotalMinuteSpent: total, Series: series}, nil
}

// ScreeningToolCount counts screening-tool usages, offset-adjusted.
func (s *Service) ScreeningToolCount(ctx context.Context, f Filter, requestType string) (int64, error) {
	count, err := s.moduleCount(ctx, f, requestType, ModuleScreeningTool)
	if err != nil {
		return 0, err
	}
	return s.offsets.Adjust(count, s.offsets.ScreeningTool, f, s.now(), s.loc), nil
}

// ChatbotCount counts chatbot interactions, offset-adjusted.
func (s *Service) ChatbotCount(ctx context.Context, f Filter, requestType string) (int64, error) {
	count, err := s.moduleCount(ctx, f, requestType, ModuleChatbot)
	if err != nil {
		return 0, err
	}
	return s.offsets.Adjust(count, s.offsets.Chatbot, f, s.now(), s.loc), nil
}

// moduleCount counts activity events for one module. Geo filters require the
// subscriber join, so the count runs as a grouped aggregation; without geo
// the cheaper CountDocuments path is used.
func (s *Service) moduleCount(ctx context.Context, f Filter, requestType, module string) (int64, error) {
	defer s.metrics.ObserveAggregation("module-count", s.now())

	geoFiltered := f.State != "" || f.District != "" || len(f.Blocks) > 0
	if !geoFiltered {
		query, err := s.filterFor(f, requestType, false)
		if err != nil {
			return 0, err
		}
		query["module"] = module
		return s.store.CountDocuments(ctx, CollectionActivityEvents, query)
	}

	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return 0, err
	}
	query["module"] = module

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		bson.D{{Key: "$count", Value: "count"}},
	}
	var out []struct {
		Count int64 `bson:"count"`
	}
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Count, nil
}

// AdminPanel is the composite returned by the top-level dashboard endpoint.
type AdminPanel struct {
	TotalSubscriberCount     int64         `json:"totalSubscriberCount"`
	TodaysSubscriberCount    int64         `json:"todaysSubscriberCount"`
	TotalCompletedAssessment int64         `json:"totalCompletedAssessment"`
	TodaysAssessment         []BucketCount `json:"todaysAssessment"`
	TotalVisitorCount        int64         `json:"totalVisitorCount"`
	TotalMinuteSpent         int64         `json:"totalMinuteSpent"`
	ScreeningToolCount       int64         `json:"screeningToolCount"`
	ChatbotCount             int64         `json:"chatBotCount"`
}

// AdminPanelDashboard issues the independent sub-aggregations concurrently
// and assembles them once all resolve; each goroutine writes a disjoint
// field. The first failure fails the whole request.
func (s *Service) AdminPanelDashboard(ctx context.Context, f Filter) (*AdminPanel, error) {
	var (
		panel    AdminPanel
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				fail(err)
			}
		}()
	}

	run(func() error {
		r, err := s.SubscriberSeries(ctx, f, "")
		if err == nil {
			panel.TotalSubscriberCount = r.Count
		}
		return err
	})
	run(func() error {
		r, err := s.SubscriberSeries(ctx, f, RequestTypeToday)
		if err == nil {
			panel.TodaysSubscriberCount = r.Count
		}
		return err
	})
	run(func() error {
		r, err := s.AssessmentSeries(ctx, f, "")
		if err == nil {
			panel.TotalCompletedAssessment = r.TotalCompletedAssessment
		}
		return err
	})
	run(func() error {
		r, err := s.AssessmentSeries(ctx, f, RequestTypeToday)
		if err == nil {
			panel.TodaysAssessment = r.Series
		}
		return err
	})
	run(func() error {
		r, err := s.VisitorSeries(ctx, f, "")
		if err == nil {
			panel.TotalVisitorCount = r.Count
		}
		return err
	})
	run(func() error {
		r, err := s.MinuteSpent(ctx, f, "")
		if err == nil {
			panel.TotalMinuteSpent = r.TotalMinuteSpent
		}
		return err
	})
	run(func() error {
		n, err := s.ScreeningToolCount(ctx, f, "")
		if err == nil {
			panel.ScreeningToolCount = n
		}
		return err
	})
	run(func() error {
		n, err := s.ChatbotCount(ctx, f, "")
		if err == nil {
			panel.ChatbotCount = n
		}
		return err
	})

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return &panel, nil
}
