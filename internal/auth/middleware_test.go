package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenCreate(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorForbiddenDelete(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "operator", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerCanRead(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "viewer", time.Hour)
	var subject string
	var role Role
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/state/IN_USE", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if subject != "user-1" || role != RoleViewer {
		t.Fatalf("identity not propagated: subject=%q role=%q", subject, role)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "admin", -time.Minute)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptAndDisabled(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for exempt path, got %d", resp.Code)
	}

	disabled := NewMiddleware(nil, NewDefaultPolicy(nil, nil)).Wrap(okHandler())
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/devices/1", nil)
	resp = httptest.NewRecorder()
	disabled.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected disabled middleware to pass through, got %d", resp.Code)
	}
}

func mustToken(t *testing.T, secret []byte, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware_ChallengeHeader(t *testing.T) {
	secret := []byte("test-secret")
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get("WWW-Authenticate"); got != `Bearer realm="devices-api"` {
		t.Fatalf("unexpected challenge for missing token: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get("WWW-Authenticate"); got != `Bearer realm="devices-api", error="invalid_token"` {
		t.Fatalf("unexpected challenge for bad token: %q", got)
	}
}

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, nil)
	cases := []struct {
		method, path string
		want         Role
		guarded      bool
	}{
		{http.MethodGet, "/api/v1/devices", RoleViewer, true},
		{http.MethodGet, "/api/v1/devices/brand/Dell", RoleViewer, true},
		{http.MethodPost, "/api/v1/devices", RoleOperator, true},
		{http.MethodPut, "/api/v1/devices/3", RoleOperator, true},
		{http.MethodDelete, "/api/v1/devices/3", RoleAdmin, true},
		{http.MethodGet, "/api/v1/exports/devices.csv", RoleViewer, true},
		{http.MethodPost, "/api/v1/other", RoleOperator, true},
		{http.MethodGet, "/api/v1/devicesx", RoleViewer, true},
		{http.MethodGet, "/metrics", "", false},
	}
	for _, tc := range cases {
		got, guarded := policy.RequiredRole(httptest.NewRequest(tc.method, tc.path, nil))
		if got != tc.want || guarded != tc.guarded {
			t.Errorf("%s %s: got (%q,%v), want (%q,%v)", tc.method, tc.path, got, guarded, tc.want, tc.guarded)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
