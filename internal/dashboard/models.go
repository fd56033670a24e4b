package dashboard

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names read by the aggregation engine. The documents themselves
// are owned and mutated by the CRUD services; this package only reads.
const (
	CollectionSubscribers       = "subscribers"
	CollectionActivityEvents    = "subscriber_activities"
	CollectionAssessmentResults = "assessment_results"
	CollectionProAssessments    = "pro_assessment_results"
	CollectionQueries           = "queries"
	CollectionProgressHistories = "progress_histories"
	CollectionLevels            = "levels"
	CollectionStates            = "states"
	CollectionDistricts         = "districts"
	CollectionBlocks            = "blocks"
	CollectionHealthFacilities  = "health_facilities"

	// CollectionLegacyAssessments lives in the legacy store, keyed by user_id.
	CollectionLegacyAssessments = "assessment_results"
)

// Well-known activity modules and actions.
const (
	ModuleChatbot       = "Chatbot"
	ModuleScreeningTool = "Screening tool"
	ModuleOverallApp    = "overall_app_usage"

	ActionHomePageVisit = "user_home_page_visit"
)

// ActivityEvent is one append-only record of a subscriber action.
type ActivityEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"userId"`
	Module    string             `bson:"module"`
	Action    string             `bson:"action"`
	TimeSpent int64              `bson:"timeSpent"` // seconds
	CreatedAt time.Time          `bson:"createdAt"`
}

// AssessmentResult is a completed assessment. The same shape is stored in
// three parallel collections (current, pro, legacy-migrated); the engine
// treats them as a union for aggregate purposes.
type AssessmentResult struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        primitive.ObjectID `bson:"userId"`
	AssessmentID  primitive.ObjectID `bson:"assessmentId"`
	ObtainedMarks float64            `bson:"obtainedMarks"`
	TotalMarks    float64            `bson:"totalMarks"`
	IsCalculated  bool               `bson:"isCalculated"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

// LegacyAssessment is one migrated assessment record in the legacy store.
// The migration kept the result fields but keys the subscriber as user_id.
type LegacyAssessment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        primitive.ObjectID `bson:"user_id"`
	ObtainedMarks float64            `bson:"obtainedMarks"`
	TotalMarks    float64            `bson:"totalMarks"`
	IsCalculated  bool               `bson:"isCalculated"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

// Subscriber is the denormalized geo/role profile joined into aggregations.
type Subscriber struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty"`
	CadreID          *primitive.ObjectID `bson:"cadreId,omitempty"`
	CadreType        string              `bson:"cadreType"`
	CountryID        *primitive.ObjectID `bson:"countryId,omitempty"`
	StateID          *primitive.ObjectID `bson:"stateId,omitempty"`
	DistrictID       *primitive.ObjectID `bson:"districtId,omitempty"`
	BlockID          *primitive.ObjectID `bson:"blockId,omitempty"`
	HealthFacilityID *primitive.ObjectID `bson:"healthFacilityId,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt"`
}

// EscalationQuery is a support query raised by one role and answered by
// another; feeds the escalation funnel metric.
type EscalationQuery struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty"`
	RaisedBy           primitive.ObjectID  `bson:"raisedBy"`
	RespondedBy        *primitive.ObjectID `bson:"respondedBy,omitempty"`
	QueryRaisedRole    primitive.ObjectID  `bson:"queryRaisedRole"`
	QueryRespondedRole *primitive.ObjectID `bson:"queryRespondedRole,omitempty"`
	Status             string              `bson:"status"`
	Response           *string             `bson:"response,omitempty"`
	CreatedAt          time.Time           `bson:"createdAt"`
}

// ProgressHistory records a subscriber reaching a gamification level. The
// level's display name lives in the levels collection, keyed by levelId.
type ProgressHistory struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"userId"`
	LevelID   primitive.ObjectID `bson:"levelId"`
	CreatedAt time.Time          `bson:"createdAt"`
}
