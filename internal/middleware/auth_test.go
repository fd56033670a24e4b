package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vitalpath/pulseboard/internal/auth"
)

// fakeValidator implements TokenValidator with canned responses keyed by token.
type fakeValidator struct {
	claims map[string]*auth.Claims
	errs   map[string]error
}

func (f *fakeValidator) ValidateToken(token string) (*auth.Claims, error) {
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if c, ok := f.claims[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

func accessClaims(adminID, role string) *auth.Claims {
	c := &auth.Claims{Role: role, Type: auth.TokenTypeAccess}
	c.Subject = adminID
	return c
}

func TestAuth_ValidToken(t *testing.T) {
	validator := &fakeValidator{
		claims: map[string]*auth.Claims{
			"good-token": accessClaims("admin-123", "state_admin"),
		},
	}

	var gotID, gotRole string
	handler := Auth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetAdminID(r.Context())
		gotRole = GetAdminRole(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/get-subscriber-count", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotID != "admin-123" {
		t.Errorf("expected admin ID admin-123 in context, got %q", gotID)
	}
	if gotRole != "state_admin" {
		t.Errorf("expected role state_admin in context, got %q", gotRole)
	}
}

func TestAuth_Rejections(t *testing.T) {
	validator := &fakeValidator{
		claims: map[string]*auth.Claims{
			"refresh-token": {Type: auth.TokenTypeRefresh},
		},
		errs: map[string]error{
			"expired-token": auth.ErrExpiredToken,
			"bad-token":     auth.ErrInvalidToken,
		},
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty bearer token", header: "Bearer "},
		{name: "invalid token", header: "Bearer bad-token"},
		{name: "expired token", header: "Bearer expired-token"},
		{name: "refresh token on api route", header: "Bearer refresh-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Auth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/dashboard/get-visitor-count", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if called {
				t.Error("expected handler not to be called")
			}
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rr.Code)
			}
			if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Errorf("expected WWW-Authenticate Bearer, got %q", got)
			}

			var body struct {
				StatusCode int    `json:"statusCode"`
				Message    string `json:"message"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse error body: %v", err)
			}
			if body.StatusCode != 401 {
				t.Errorf("expected statusCode 401 in body, got %d", body.StatusCode)
			}
			if body.Message == "" {
				t.Error("expected non-empty message in body")
			}
		})
	}
}

func TestAuth_ErrorCodeForLogging(t *testing.T) {
	validator := &fakeValidator{
		errs: map[string]error{"expired-token": auth.ErrExpiredToken},
	}

	var captured *http.Request
	handler := Auth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/get-assessment-count", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	captured = req
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if code := GetErrorCode(captured.Context()); code != "token_expired" {
		t.Errorf("expected error code token_expired, got %q", code)
	}
}

func TestSetAdminRole_GetAdminRole(t *testing.T) {
	ctx := context.Background()

	if role := GetAdminRole(ctx); role != "" {
		t.Errorf("expected empty role, got %q", role)
	}

	ctx = SetAdminRole(ctx, "national_admin")
	if role := GetAdminRole(ctx); role != "national_admin" {
		t.Errorf("expected national_admin, got %q", role)
	}
}
