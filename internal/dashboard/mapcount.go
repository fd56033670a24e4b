package dashboard

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DrillLevel identifies which geo level a map count was grouped on.
type DrillLevel string

const (
	LevelState          DrillLevel = "state"
	LevelDistrict       DrillLevel = "district"
	LevelBlock          DrillLevel = "block"
	LevelHealthFacility DrillLevel = "healthFacility"
)

// drillConfig parameterizes the map-count pipeline per level: the field
// grouped on and the collection resolving its display name. The remainder
// count reuses groupField, counting subscribers it was never assigned on.
type drillConfig struct {
	level          DrillLevel
	groupField     string
	nameCollection string
}

var drillConfigs = map[DrillLevel]drillConfig{
	LevelState:          {LevelState, "stateId", CollectionStates},
	LevelDistrict:       {LevelDistrict, "districtId", CollectionDistricts},
	LevelBlock:          {LevelBlock, "blockId", CollectionBlocks},
	LevelHealthFacility: {LevelHealthFacility, "healthFacilityId", CollectionHealthFacilities},
}

// drillFor selects the level for a filter: the most specific non-empty geo
// field wins, and only that one. A block filter drills to health facilities,
// a district to blocks, a state to districts; a bare date filter groups by
// state.
func drillFor(f Filter) drillConfig {
	switch {
	case len(f.Blocks) > 0:
		return drillConfigs[LevelHealthFacility]
	case f.District != "":
		return drillConfigs[LevelBlock]
	case f.State != "":
		return drillConfigs[LevelDistrict]
	default:
		return drillConfigs[LevelState]
	}
}

// MapRow is one group at the selected drill level.
type MapRow struct {
	ID         *primitive.ObjectID `bson:"_id" json:"id"`
	Name       string              `bson:"name" json:"name"`
	Count      int64               `bson:"count" json:"count"`
	TodayCount int64               `bson:"todayCount" json:"todayCount"`
	Percentage float64             `bson:"-" json:"percentage"`
}

// MapCountResult carries one drill level's rows plus the level-independent
// totals. RemainderCount is the number of matching subscribers with no
// assignment at the grouped level.
type MapCountResult struct {
	Level              DrillLevel `json:"level"`
	Rows               []MapRow   `json:"rows"`
	RemainderCount     int64      `json:"remainderCount"`
	NationalCount      int64      `json:"nationalCount"`
	InternationalCount int64      `json:"internationalCount"`
}

// MapCount groups subscribers at the drill level selected by the filter.
// Each row gets a today sub-count and its share of the level-wide total
// (the grand total of matching subscribers, unlike the cadre-wise graph).
func (s *Service) MapCount(ctx context.Context, f Filter) (*MapCountResult, error) {
	defer s.metrics.ObserveAggregation("map-count", s.now())

	query, err := f.Direct(s.loc)
	if err != nil {
		return nil, err
	}
	cfg := drillFor(f)
	todayStart, _ := TodayRange(s.now(), s.loc)

	pipeline := mongo.Pipeline{
		matchStage(query),
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$" + cfg.groupField,
			"count": bson.M{"$sum": 1},
			"todayCount": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$createdAt", todayStart}}, 1, 0,
			}}},
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         cfg.nameCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "detail",
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"name": bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$detail.title", 0}}, "",
			}},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"detail": 0}}},
		sortByCountDescStage(),
	}

	var rows []MapRow
	if err := s.store.Aggregate(ctx, CollectionSubscribers, pipeline, &rows); err != nil {
		return nil, err
	}

	grandTotal, err := s.store.CountDocuments(ctx, CollectionSubscribers, query)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Percentage = Percentage(float64(rows[i].Count), float64(grandTotal))
	}

	result := &MapCountResult{Level: cfg.level, Rows: rows}

	// Subscribers invisible to the grouping because the grouped field was
	// never assigned.
	remainderQuery := cloneQuery(query)
	remainderQuery[cfg.groupField] = nil
	if result.RemainderCount, err = s.store.CountDocuments(ctx, CollectionSubscribers, remainderQuery); err != nil {
		return nil, err
	}

	nationalQuery := cloneQuery(query)
	nationalQuery["stateId"] = bson.M{"$ne": nil}
	if result.NationalCount, err = s.store.CountDocuments(ctx, CollectionSubscribers, nationalQuery); err != nil {
		return nil, err
	}

	internationalQuery := cloneQuery(query)
	internationalQuery["stateId"] = nil
	if result.InternationalCount, err = s.store.CountDocuments(ctx, CollectionSubscribers, internationalQuery); err != nil {
		return nil, err
	}

	return result, nil
}

func cloneQuery(q bson.M) bson.M {
	c := make(bson.M, len(q)+1)
	for k, v := range q {
		c[k] = v
	}
	return c
}
