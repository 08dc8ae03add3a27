// Package auth provides authentication primitives for the agent's and
// coordinator's HTTP surfaces.
//
// Agent-facing authentication is optional: when no token is configured the
// middleware operates in allow-all mode, logging a warning once, matching
// spec.md §4.2.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrUnauthorized is returned when a request lacks a matching wwb-token.
var ErrUnauthorized = errors.New("unauthorized")

const tokenHeader = "wwb-token"

// Validator checks the shared bearer token carried by agent-facing
// requests. Unlike an admin surface's signed-claims scheme, this is a
// plain equality check against one configured secret — spec.md's control
// plane treats a shared token as sufficient, delegating transport
// security to the caller.
type Validator struct {
	token   string
	enabled bool
	logger  *zap.Logger
	warned  bool
}

// NewValidator creates a Validator using the provided shared token. If
// token is empty the validator operates in pass-through mode.
func NewValidator(token string, logger *zap.Logger) *Validator {
	return &Validator{
		token:   token,
		enabled: token != "",
		logger:  logger,
	}
}

// Enabled reports whether authentication is enforced.
func (v *Validator) Enabled() bool { return v.enabled }

// Check validates the inbound request's token, constant-time comparing it
// against the configured secret.
func (v *Validator) Check(r *http.Request) error {
	if !v.enabled {
		if !v.warned {
			v.warned = true
			if v.logger != nil {
				v.logger.Warn("no wwb-token configured; accepting all requests unauthenticated")
			}
		}
		return nil
	}

	got := r.Header.Get(tokenHeader)
	if got == "" {
		got = extractBearerToken(r)
	}
	if got == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(v.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Middleware returns an HTTP middleware enforcing the wwb-token on every
// request. If auth is disabled it calls next unconditionally.
func Middleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.Check(r); err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

type contextKey string

const tokenContextKey contextKey = "wwb_token_ok"

// WithAuthOK marks a request context as having passed the token check,
// for handlers downstream of Middleware that want to confirm it ran.
func WithAuthOK(ctx context.Context) context.Context {
	return context.WithValue(ctx, tokenContextKey, true)
}
