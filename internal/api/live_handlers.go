package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitalpath/pulseboard/internal/dashboard"
	"github.com/vitalpath/pulseboard/internal/middleware"
)

// DefaultLiveRefreshInterval is how often the live dashboard recomputes and
// pushes the admin panel composite.
const DefaultLiveRefreshInterval = 30 * time.Second

// LiveHandlers pushes the admin panel composite to connected dashboards over
// WebSocket so open admin screens refresh without polling.
type LiveHandlers struct {
	svc      DashboardService
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewLiveHandlers creates a live dashboard handler. interval <= 0 falls back
// to DefaultLiveRefreshInterval. allowedOrigins is the same allowlist the
// CORS layer enforces; same-host upgrades are always accepted, so an empty
// list permits same-origin clients only.
func NewLiveHandlers(svc DashboardService, interval time.Duration, allowedOrigins []string) *LiveHandlers {
	if interval <= 0 {
		interval = DefaultLiveRefreshInterval
	}
	return &LiveHandlers{
		svc:      svc,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker validates the Origin header of upgrade requests against the
// allowlist. Requests without an Origin header (non-browser clients) and
// same-host requests pass.
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// liveMessage is one push frame: the usual envelope plus a timestamp so the
// client can show data freshness.
type liveMessage struct {
	Envelope
	ComputedAt string `json:"computedAt"`
}

// Live handles GET /dashboard/live. The geo/date filter is read from the
// query string once at connect time; reconnect to change it.
func (h *LiveHandlers) Live(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handlers := DashboardHandlers{svc: h.svc}
	f, _, ok := handlers.parseFilter(r)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, ErrCodeInvalidFilter, "Invalid filter: geo ids must be ObjectID hex and dates RFC3339 or YYYY-MM-DD")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "live dashboard client connected", "request_id", requestID)

	// Reads only detect disconnection; clients are not expected to send.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		conn.Close()
		slog.InfoContext(ctx, "live dashboard client disconnected", "request_id", requestID)
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// First frame immediately, then on the interval.
	for {
		if err := h.push(ctx, conn, f); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *LiveHandlers) push(ctx context.Context, conn *websocket.Conn, f dashboard.Filter) error {
	panel, err := h.svc.AdminPanelDashboard(ctx, f)
	if err != nil {
		slog.WarnContext(ctx, "live dashboard refresh failed", "error", err)
		return conn.WriteJSON(liveMessage{
			Envelope: Envelope{
				StatusCode: http.StatusInternalServerError,
				Message:    "Failed to build dashboard",
			},
			ComputedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return conn.WriteJSON(liveMessage{
		Envelope: Envelope{
			StatusCode: http.StatusOK,
			Message:    "Dashboard refreshed",
			Data:       panel,
		},
		ComputedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
