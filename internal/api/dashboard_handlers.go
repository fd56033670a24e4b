package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vitalpath/pulseboard/internal/dashboard"
)

// DashboardService is the aggregation surface the handlers call.
// *dashboard.Service satisfies it.
type DashboardService interface {
	AdminPanelDashboard(ctx context.Context, f dashboard.Filter) (*dashboard.AdminPanel, error)
	MapCount(ctx context.Context, f dashboard.Filter) (*dashboard.MapCountResult, error)
	CadreWiseGraph(ctx context.Context, f dashboard.Filter, requestType string) ([]dashboard.CadreShare, error)
	ModuleUsage(ctx context.Context, f dashboard.Filter, requestType string) ([]dashboard.ModuleUsageRow, error)
	Leaderboard(ctx context.Context, f dashboard.Filter, requestType string) ([]dashboard.LeaderboardGroup, error)
	SubscriberSeries(ctx context.Context, f dashboard.Filter, requestType string) (*dashboard.SeriesResult, error)
	VisitorSeries(ctx context.Context, f dashboard.Filter, requestType string) (*dashboard.SeriesResult, error)
	AssessmentSeries(ctx context.Context, f dashboard.Filter, requestType string) (*dashboard.AssessmentCountResult, error)
	MinuteSpent(ctx context.Context, f dashboard.Filter, requestType string) (*dashboard.MinuteSpentResult, error)
	ScreeningToolCount(ctx context.Context, f dashboard.Filter, requestType string) (int64, error)
	ChatbotCount(ctx context.Context, f dashboard.Filter, requestType string) (int64, error)
	EscalationFunnelCounts(ctx context.Context, f dashboard.Filter) (*dashboard.EscalationFunnel, error)
	ManageTBFunnel(ctx context.Context, f dashboard.Filter, requestType string) ([]dashboard.ManageTBStage, error)
	ChatbotQuestionFrequency(ctx context.Context, f dashboard.Filter, requestType string) ([]dashboard.ChatbotQuestionRow, error)
	AppOpenedCount(ctx context.Context, windowType string) ([]dashboard.AppOpenedWindow, error)
	Location() *time.Location
}

// DashboardHandlers holds dependencies for dashboard HTTP handlers.
type DashboardHandlers struct {
	svc DashboardService
}

// NewDashboardHandlers creates a new DashboardHandlers instance.
func NewDashboardHandlers(svc DashboardService) *DashboardHandlers {
	return &DashboardHandlers{svc: svc}
}

// parseFilter reads the geo/date filter from the query string. Geo values
// must be valid ObjectID hex and dates must parse; a malformed value is
// rejected here so the aggregation layer only ever sees valid filters.
// blocks accepts either repeated parameters or one comma-separated value.
func (h *DashboardHandlers) parseFilter(r *http.Request) (dashboard.Filter, string, bool) {
	q := r.URL.Query()
	f := dashboard.Filter{
		State:    strings.TrimSpace(q.Get("state")),
		District: strings.TrimSpace(q.Get("district")),
		FromDate: strings.TrimSpace(q.Get("fromDate")),
		ToDate:   strings.TrimSpace(q.Get("toDate")),
	}
	for _, raw := range q["blocks"] {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				f.Blocks = append(f.Blocks, b)
			}
		}
	}

	for _, id := range append([]string{f.State, f.District}, f.Blocks...) {
		if id == "" {
			continue
		}
		if _, err := primitive.ObjectIDFromHex(id); err != nil {
			return f, "", false
		}
	}

	// Probe the date parsing with the same rules the aggregation layer uses.
	if _, err := (dashboard.Filter{FromDate: f.FromDate, ToDate: f.ToDate}).Direct(h.svc.Location()); err != nil {
		return f, "", false
	}

	return f, strings.TrimSpace(q.Get("type")), true
}

// require rejects non-GET methods and parses the filter; on any failure it
// writes the error response and reports false.
func (h *DashboardHandlers) require(w http.ResponseWriter, r *http.Request) (dashboard.Filter, string, bool) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return dashboard.Filter{}, "", false
	}
	f, requestType, ok := h.parseFilter(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, ErrCodeInvalidFilter, "Invalid filter: geo ids must be ObjectID hex and dates RFC3339 or YYYY-MM-DD")
		return dashboard.Filter{}, "", false
	}
	return f, requestType, true
}

// AdminPanelDashboard handles GET /dashboard/get-admin-panel-dashboard.
func (h *DashboardHandlers) AdminPanelDashboard(w http.ResponseWriter, r *http.Request) {
	f, _, ok := h.require(w, r)
	if !ok {
		return
	}
	panel, err := h.svc.AdminPanelDashboard(r.Context(), f)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to build dashboard")
		return
	}
	WriteSuccess(w, r, "Dashboard fetched successfully", panel)
}

// MapCount handles GET /dashboard/get-Map-count.
func (h *DashboardHandlers) MapCount(w http.ResponseWriter, r *http.Request) {
	f, _, ok := h.require(w, r)
	if !ok {
		return
	}
	result, err := h.svc.MapCount(r.Context(), f)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count subscribers by region")
		return
	}
	WriteSuccess(w, r, "Map count fetched successfully", result)
}

// CadreWiseCount handles GET /dashboard/get-cadre-wise-count.
func (h *DashboardHandlers) CadreWiseCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	shares, err := h.svc.CadreWiseGraph(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count subscribers by cadre")
		return
	}
	WriteSuccess(w, r, "Cadre wise count fetched successfully", map[string]any{
		"cadreWiseCount": shares,
	})
}

// ModuleUsageCount handles GET /dashboard/get-module-usage-count.
func (h *DashboardHandlers) ModuleUsageCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ModuleUsage(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count module usage")
		return
	}
	WriteSuccess(w, r, "Module usage fetched successfully", map[string]any{
		"moduleUsage": rows,
	})
}

// LeaderboardCount handles GET /dashboard/get-leaderboard-count.
func (h *DashboardHandlers) LeaderboardCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.Leaderboard(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to build leaderboard")
		return
	}
	WriteSuccess(w, r, "Leaderboard fetched successfully", map[string]any{
		"leaderboard": groups,
	})
}

// SubscriberCount handles GET /dashboard/get-subscriber-count. With
// type=today the payload key identifies the day scope; otherwise it is the
// all-time total.
func (h *DashboardHandlers) SubscriberCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	result, err := h.svc.SubscriberSeries(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count subscribers")
		return
	}

	countKey, seriesKey := "totalSubscriberCount", "series"
	if requestType == dashboard.RequestTypeToday {
		countKey, seriesKey = "todaysSubscriberCount", "todaysSubscriber"
	}
	WriteSuccess(w, r, "Subscriber count fetched successfully", map[string]any{
		countKey:  result.Count,
		seriesKey: result.Series,
	})
}

// VisitorCount handles GET /dashboard/get-visitor-count.
func (h *DashboardHandlers) VisitorCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	result, err := h.svc.VisitorSeries(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count visitors")
		return
	}
	WriteSuccess(w, r, "Visitor count fetched successfully", map[string]any{
		"totalVisitorCount": result.Count,
		"series":            result.Series,
	})
}

// AssessmentCount handles GET /dashboard/get-assessment-count.
func (h *DashboardHandlers) AssessmentCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	result, err := h.svc.AssessmentSeries(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count assessments")
		return
	}
	WriteSuccess(w, r, "Assessment count fetched successfully", result)
}

// TotalMinuteSpent handles GET /dashboard/get-total-minute-spent-count.
func (h *DashboardHandlers) TotalMinuteSpent(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	result, err := h.svc.MinuteSpent(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to sum time spent")
		return
	}
	WriteSuccess(w, r, "Minute spent fetched successfully", result)
}

// ScreeningToolCount handles GET /dashboard/get-screening-tool-count.
func (h *DashboardHandlers) ScreeningToolCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	count, err := h.svc.ScreeningToolCount(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count screening tool usage")
		return
	}
	WriteSuccess(w, r, "Screening tool count fetched successfully", map[string]any{
		"screeningToolCount": count,
	})
}

// ChatbotCount handles GET /dashboard/get-chat-bot-count.
func (h *DashboardHandlers) ChatbotCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	count, err := h.svc.ChatbotCount(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count chatbot usage")
		return
	}
	WriteSuccess(w, r, "Chatbot count fetched successfully", map[string]any{
		"chatBotCount": count,
	})
}

// QueryCount handles GET /dashboard/get-query-count, the escalation funnel.
func (h *DashboardHandlers) QueryCount(w http.ResponseWriter, r *http.Request) {
	f, _, ok := h.require(w, r)
	if !ok {
		return
	}
	funnel, err := h.svc.EscalationFunnelCounts(r.Context(), f)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count escalation queries")
		return
	}
	WriteSuccess(w, r, "Query count fetched successfully", funnel)
}

// ManageTBCount handles GET /dashboard/get-manage-tb-count.
func (h *DashboardHandlers) ManageTBCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	stages, err := h.svc.ManageTBFunnel(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to build manage TB funnel")
		return
	}
	WriteSuccess(w, r, "Manage TB count fetched successfully", map[string]any{
		"manageTbFunnel": stages,
	})
}

// ChatbotQuestionCount handles GET /dashboard/get-chatbot-question-count.
func (h *DashboardHandlers) ChatbotQuestionCount(w http.ResponseWriter, r *http.Request) {
	f, requestType, ok := h.require(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ChatbotQuestionFrequency(r.Context(), f, requestType)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count chatbot questions")
		return
	}
	WriteSuccess(w, r, "Chatbot question count fetched successfully", map[string]any{
		"chatbotQuestions": rows,
	})
}

// AppOpenedCount handles GET /dashboard/get-app-opened-count/{type} where
// type is week or month.
func (h *DashboardHandlers) AppOpenedCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	windowType := r.PathValue("type")

	windows, err := h.svc.AppOpenedCount(r.Context(), windowType)
	if err != nil {
		if windowType != dashboard.WindowWeek && windowType != dashboard.WindowMonth {
			WriteError(w, r, http.StatusBadRequest, ErrCodeInvalidWindowType, "Window type must be week or month")
			return
		}
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to count app opens")
		return
	}
	WriteSuccess(w, r, "App opened count fetched successfully", map[string]any{
		"appOpenedCount": windows,
	})
}
