package dashboard

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionRoles resolves role references on escalation queries.
const CollectionRoles = "roles"

// Role names participating in the escalation funnel.
const (
	RoleDRTB  = "DRTB"
	RoleCOE   = "COE"
	RoleNodal = "NODAL"
)

// StatusInProgress is the only non-terminal query status; every other
// status counts as completed.
const StatusInProgress = "In Progress"

// funnelConfig parameterizes one status-split aggregation over escalation
// queries. The same pipeline shape serves every role pair; only the field
// and role names change.
type funnelConfig struct {
	LocalField  string // role reference field on the query document
	RoleField   string // role name path after the lookup attaches "role"
	RoleName    string
	StatusField string
}

// funnelPipeline resolves the role reference, restricts to the given role
// name, and groups by status.
func funnelPipeline(cfg funnelConfig, filter bson.M) mongo.Pipeline {
	match := cloneQuery(filter)
	match[cfg.RoleField] = cfg.RoleName

	return mongo.Pipeline{
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         CollectionRoles,
			"localField":   cfg.LocalField,
			"foreignField": "_id",
			"as":           "role",
		}}},
		bson.D{{Key: "$unwind", Value: bson.M{
			"path":                       "$role",
			"preserveNullAndEmptyArrays": false,
		}}},
		matchStage(match),
		groupByFieldCountStage(cfg.StatusField),
	}
}

// FunnelCounts splits a query population into in-flight and finished.
type FunnelCounts struct {
	InProgress int64 `json:"inProgress"`
	Completed  int64 `json:"completed"`
}

// EscalationFunnel is the support-escalation picture: per role pair, how
// many queries are still open versus resolved, plus the NODAL open/closed
// totals.
type EscalationFunnel struct {
	RaisedByDRTB   FunnelCounts `json:"raisedByDrtb"`
	RespondedByDRT FunnelCounts `json:"respondedByDrtb"`
	RaisedByCOE    FunnelCounts `json:"raisedByCoe"`
	RespondedByCOE FunnelCounts `json:"respondedByCoe"`
	NodalOpen      int64        `json:"nodalOpen"`
	NodalClosed    int64        `json:"nodalClosed"`
}

// EscalationFunnelCounts runs the four role-pair aggregations plus the
// NODAL open/closed counts. The four pipelines share one parameterized
// builder; they differ only in which role reference is resolved.
func (s *Service) EscalationFunnelCounts(ctx context.Context, f Filter) (*EscalationFunnel, error) {
	defer s.metrics.ObserveAggregation("escalation-funnel", s.now())

	dateOnly := Filter{FromDate: f.FromDate, ToDate: f.ToDate}
	filter, err := dateOnly.Direct(s.loc)
	if err != nil {
		return nil, err
	}

	var funnel EscalationFunnel
	pairs := []struct {
		cfg  funnelConfig
		dest *FunnelCounts
	}{
		{funnelConfig{"queryRaisedRole", "role.name", RoleDRTB, "status"}, &funnel.RaisedByDRTB},
		{funnelConfig{"queryRespondedRole", "role.name", RoleDRTB, "status"}, &funnel.RespondedByDRT},
		{funnelConfig{"queryRaisedRole", "role.name", RoleCOE, "status"}, &funnel.RaisedByCOE},
		{funnelConfig{"queryRespondedRole", "role.name", RoleCOE, "status"}, &funnel.RespondedByCOE},
	}

	for _, pair := range pairs {
		counts, err := s.funnelStatusCounts(ctx, pair.cfg, filter)
		if err != nil {
			return nil, err
		}
		*pair.dest = counts
	}

	nodal := funnelConfig{"queryRaisedRole", "role.name", RoleNodal, "status"}
	if funnel.NodalOpen, err = s.nodalCount(ctx, nodal, filter, false); err != nil {
		return nil, err
	}
	if funnel.NodalClosed, err = s.nodalCount(ctx, nodal, filter, true); err != nil {
		return nil, err
	}

	return &funnel, nil
}

// funnelStatusCounts runs one parameterized pipeline and folds the grouped
// statuses into the two categories.
func (s *Service) funnelStatusCounts(ctx context.Context, cfg funnelConfig, filter bson.M) (FunnelCounts, error) {
	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := s.store.Aggregate(ctx, CollectionQueries, funnelPipeline(cfg, filter), &rows); err != nil {
		return FunnelCounts{}, err
	}

	var counts FunnelCounts
	for _, row := range rows {
		if strings.EqualFold(row.Status, StatusInProgress) {
			counts.InProgress += row.Count
		} else {
			counts.Completed += row.Count
		}
	}
	return counts, nil
}

// nodalCount counts NODAL queries by whether a response was recorded.
func (s *Service) nodalCount(ctx context.Context, cfg funnelConfig, filter bson.M, responded bool) (int64, error) {
	match := cloneQuery(filter)
	if responded {
		match["response"] = bson.M{"$ne": nil}
	} else {
		match["response"] = nil
	}

	// Same shape as funnelPipeline but ending in a plain count: the
	// open/closed split already encodes the category.
	full := funnelPipeline(cfg, match)
	pipeline := append(full[:len(full)-1:len(full)-1], bson.D{{Key: "$count", Value: "count"}})

	var out []struct {
		Count int64 `bson:"count"`
	}
	if err := s.store.Aggregate(ctx, CollectionQueries, pipeline, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Count, nil
}

// ManageTBStage is one step of the manage-TB usage funnel.
type ManageTBStage struct {
	Action string `bson:"_id" json:"action"`
	Count  int64  `bson:"count" json:"count"`
}

// ManageTBFunnel groups manage-TB module activity by action, producing the
// open → fill → submit → download funnel shown on the dashboard.
func (s *Service) ManageTBFunnel(ctx context.Context, f Filter, requestType string) ([]ManageTBStage, error) {
	defer s.metrics.ObserveAggregation("manage-tb-funnel", s.now())

	query, err := s.filterFor(f, requestType, true)
	if err != nil {
		return nil, err
	}
	query["module"] = "ManageTB India"

	pipeline := mongo.Pipeline{
		lookupSubscriberStage("userId"),
		unwindUserStage(),
		matchStage(query),
		groupByFieldCountStage("action"),
		sortByCountDescStage(),
	}

	var stages []ManageTBStage
	if err := s.store.Aggregate(ctx, CollectionActivityEvents, pipeline, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}
