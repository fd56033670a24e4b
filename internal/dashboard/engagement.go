package dashboard

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vitalpath/pulseboard/internal/cache"
)

// Leaderboard and usage metrics cap their result sets: the module and cadre
// graphs show the top 5 groups, the chatbot question list the top 10.
const (
	topModules          = 5
	topCadres           = 5
	topChatbotQuestions = 10
)

// RequestTypeLast30Days restricts engagement metrics to a rolling 30-day
// window ending now.
const RequestTypeLast30Days = "last30days"

// last30DaysWindow returns the createdAt predicate for the rolling window.
func (s *Service) last30DaysWindow() bson.M {
	return bson.M{"$gte": s.now().In(s.loc).AddDate(0, 0, -30)}
}

// ModuleUsageRow is one module's activity volume.
type ModuleUsageRow struct {
	Module           string `bson:"_id" json:"module"`
	Count            int64  `bson:"count" json:"count"`
	TotalMinuteSpent int64  `bson:"totalMinuteSpent" json:"totalMinuteSpent"`
}

// ModuleUsage groups activity events by module, top 5 by event count.
func (s *Service) ModuleUsage(ctx context.Context, f Filter, requestType string) ([]ModuleUsageRow, error) {
	defer s.metrics.ObserveAggregation("module-usage", s.now())

	query, err := s.engagementFilter(f, requestType)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		bson.D{{Key: "$group", Value: bson.M{
			"_id":              "$module",
			"count":            bson.M{"$sum": 1},
			"totalMinuteSpent": bson.M{"$sum": "$timeSpent"},
		}}},
		sortByCountDescStage(),
		limitStage(topModules),
	}

	var rows []ModuleUsageRow
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ChatbotQuestionRow is one chatbot question and how often it was asked.
type ChatbotQuestionRow struct {
	Question string `bson:"_id" json:"question"`
	Count    int64  `bson:"count" json:"count"`
}

// ChatbotQuestionFrequency returns the 10 most asked chatbot questions.
func (s *Service) ChatbotQuestionFrequency(ctx context.Context, f Filter, requestType string) ([]ChatbotQuestionRow, error) {
	defer s.metrics.ObserveAggregation("chatbot-frequency", s.now())

	query, err := s.engagementFilter(f, requestType)
	if err != nil {
		return nil, err
	}
	query["module"] = ModuleChatbot

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		groupByFieldCountStage("action"),
		sortByCountDescStage(),
		limitStage(topChatbotQuestions),
	}

	var rows []ChatbotQuestionRow
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// engagementFilter builds the joined filter for activity-based metrics,
// honoring the today and last-30-days request types.
func (s *Service) engagementFilter(f Filter, requestType string) (bson.M, error) {
	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return nil, err
	}
	if requestType == RequestTypeLast30Days {
		query["createdAt"] = s.last30DaysWindow()
	}
	return query, nil
}

// CadreShare is one cadre's slice of the cadre-wise graph.
type CadreShare struct {
	CadreType  string  `bson:"_id" json:"cadreType"`
	Count      int64   `bson:"count" json:"count"`
	Percentage float64 `bson:"-" json:"percentage"`
}

// CadreWiseGraph groups subscribers by cadre type and keeps the top 5 by
// count. Each share's percentage divides by the sum of those top 5 only,
// not the full subscriber population; the graph shows relative weight among
// the cadres it displays.
func (s *Service) CadreWiseGraph(ctx context.Context, f Filter, requestType string) ([]CadreShare, error) {
	defer s.metrics.ObserveAggregation("cadre-wise", s.now())

	query, err := s.filterFor(f, requestType, false)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		matchStage(query),
		groupByFieldCountStage("cadreType"),
		sortByCountDescStage(),
		limitStage(topCadres),
	}
	var shares []CadreShare
	if err := s.store.Aggregate(ctx, CollectionSubscribers, pipeline, &shares); err != nil {
		return nil, err
	}

	var topSum int64
	for _, share := range shares {
		topSum += share.Count
	}
	for i := range shares {
		shares[i].Percentage = Percentage(float64(shares[i].Count), float64(topSum))
	}
	return shares, nil
}

// LevelCount is one gamification level's population within a cadre type.
type LevelCount struct {
	Level string `json:"level"`
	Count int64  `json:"count"`
}

// LeaderboardGroup is the level distribution for one cadre type.
type LeaderboardGroup struct {
	CadreType string       `json:"cadreType"`
	Levels    []LevelCount `json:"levels"`
}

// leaderboardRow is the raw grouped row before reshaping. Level is the
// display name resolved from the levels collection; missing levels resolve
// to the empty string.
type leaderboardRow struct {
	ID struct {
		CadreType string             `bson:"cadreType"`
		LevelID   primitive.ObjectID `bson:"levelId"`
	} `bson:"_id"`
	Level string `bson:"level"`
	Count int64  `bson:"count"`
}

// Leaderboard groups progress records by the subscriber's cadre type and
// the level reached. Progress records carry only the levelId reference, so
// the pipeline resolves the display name from the levels collection after
// grouping. The aggregation joins every progress record to its subscriber,
// so results are memoized behind the cache.
func (s *Service) Leaderboard(ctx context.Context, f Filter, requestType string) ([]LeaderboardGroup, error) {
	key := cache.Key(metricLeaderboard, f, requestType)
	if s.cache != nil {
		var cached []LeaderboardGroup
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			s.metrics.IncCacheHit(metricLeaderboard)
			return cached, nil
		}
		s.metrics.IncCacheMiss(metricLeaderboard)
	}

	defer s.metrics.ObserveAggregation(metricLeaderboard, s.now())

	query, err := s.engagementFilter(f, requestType)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		bson.D{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"cadreType": "$user.cadreType",
				"levelId":   "$levelId",
			},
			"count": bson.M{"$sum": 1},
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         CollectionLevels,
			"localField":   "_id.levelId",
			"foreignField": "_id",
			"as":           "detail",
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"level": bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$detail.title", 0}}, "",
			}},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"detail": 0}}},
		sortByCountDescStage(),
	}

	var rows []leaderboardRow
	if err := s.store.Aggregate(ctx, CollectionProgressHistories, pipeline, &rows); err != nil {
		return nil, err
	}

	groups := groupLeaderboard(rows)
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, groups, s.cacheTTL)
	}
	return groups, nil
}

// groupLeaderboard reshapes flat cadre×level rows into one group per cadre
// type, preserving the count-descending order within each group.
func groupLeaderboard(rows []leaderboardRow) []LeaderboardGroup {
	index := make(map[string]int)
	groups := make([]LeaderboardGroup, 0)
	for _, row := range rows {
		i, ok := index[row.ID.CadreType]
		if !ok {
			i = len(groups)
			index[row.ID.CadreType] = i
			groups = append(groups, LeaderboardGroup{CadreType: row.ID.CadreType})
		}
		groups[i].Levels = append(groups[i].Levels, LevelCount{
			Level: row.Level,
			Count: row.Count,
		})
	}
	return groups
}
