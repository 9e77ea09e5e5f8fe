package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Middleware validates bearer JWTs and enforces the role policy.
type Middleware struct {
	secret []byte
	policy Policy
	logger zerolog.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithLogger logs rejected requests at debug level.
func WithLogger(logger zerolog.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// NewMiddleware returns nil when secret is empty; a nil Middleware passes every request through.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	if len(secret) == 0 {
		return nil
	}
	m := &Middleware{secret: secret, policy: policy, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap guards next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, guarded := m.policy.RequiredRole(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(bearerToken(r.Header.Get("Authorization")), m.secret)
		if err != nil {
			m.logger.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("auth rejected")
			challenge := `Bearer realm="devices-api"`
			if errors.Is(err, ErrInvalidToken) {
				challenge += `, error="invalid_token"`
			}
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		role := Role(claims.Role)
		if !RoleAtLeast(role, required) {
			m.logger.Debug().
				Str("subject", claims.Subject).
				Str("role", string(role)).
				Str("required", string(required)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("auth forbidden")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, claims.Subject)))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
