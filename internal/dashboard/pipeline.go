package dashboard

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Named stage builders. Every dashboard aggregation is assembled from these
// so stage order and shape stay uniform across metrics instead of being
// repeated as inline literals.

func matchStage(filter bson.M) bson.D {
	return bson.D{{Key: "$match", Value: filter}}
}

// bucketLabelStage attaches the normalized bucket label under "bucket",
// formatted from dateField in the given timezone.
func bucketLabelStage(g Granularity, dateField, timezone string) bson.D {
	return bson.D{{Key: "$addFields", Value: bson.M{
		"bucket": bson.M{"$dateToString": bson.M{
			"format":   g.Format(),
			"date":     "$" + dateField,
			"timezone": timezone,
		}},
	}}}
}

// groupCountStage groups on the bucket label with a document count.
func groupCountStage() bson.D {
	return bson.D{{Key: "$group", Value: bson.M{
		"_id":   "$bucket",
		"count": bson.M{"$sum": 1},
	}}}
}

// groupSumStage groups on the bucket label summing a numeric field.
func groupSumStage(sumField string) bson.D {
	return bson.D{{Key: "$group", Value: bson.M{
		"_id":   "$bucket",
		"count": bson.M{"$sum": "$" + sumField},
	}}}
}

// groupByFieldCountStage groups on an arbitrary document field.
func groupByFieldCountStage(field string) bson.D {
	return bson.D{{Key: "$group", Value: bson.M{
		"_id":   "$" + field,
		"count": bson.M{"$sum": 1},
	}}}
}

func sortByLabelStage() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}}
}

func sortByCountDescStage() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}}
}

func limitStage(n int) bson.D {
	return bson.D{{Key: "$limit", Value: n}}
}

// lookupSubscriberStage joins the subscriber profile onto activity or result
// documents under "user", matching localField against the subscriber _id.
// Callers pair it with unwindUserStage before applying a joined filter.
func lookupSubscriberStage(localField string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.M{
		"from":         CollectionSubscribers,
		"localField":   localField,
		"foreignField": "_id",
		"as":           "user",
	}}}
}

func unwindUserStage() bson.D {
	return bson.D{{Key: "$unwind", Value: bson.M{
		"path":                       "$user",
		"preserveNullAndEmptyArrays": false,
	}}}
}

// seriesPipeline is the canonical grouped-count computation shared by the
// subscriber, visitor, and assessment series: match, label, group, sort.
func seriesPipeline(filter bson.M, g Granularity, timezone string) mongo.Pipeline {
	return mongo.Pipeline{
		matchStage(filter),
		bucketLabelStage(g, "createdAt", timezone),
		groupCountStage(),
		sortByLabelStage(),
	}
}

// joinedSeriesPipeline is seriesPipeline over documents that need the
// subscriber profile joined in first so the joined filter can apply.
func joinedSeriesPipeline(localField string, filter bson.M, g Granularity, timezone string) mongo.Pipeline {
	return mongo.Pipeline{
		lookupSubscriberStage(localField),
		unwindUserStage(),
		matchStage(filter),
		bucketLabelStage(g, "createdAt", timezone),
		groupCountStage(),
		sortByLabelStage(),
	}
}
