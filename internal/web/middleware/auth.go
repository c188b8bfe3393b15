package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionHeader carries a store-scoped session token.
const SessionHeader = "X-Session-Token"

// Principal is the authenticated caller of a request.
type Principal struct {
	// AllStores is true for the trigger secret.
	AllStores bool
	// StoreHash is the store a session token is scoped to.
	StoreHash string
}

// CanAccess reports whether the caller may act on storeHash.
func (p Principal) CanAccess(storeHash string) bool {
	return p.AllStores || (p.StoreHash != "" && p.StoreHash == storeHash)
}

type principalKey struct{}

// scopeRecorder lets Logger, which wraps the router, learn the principal
// that Authenticate resolved deeper in the chain.
type scopeRecorder struct {
	set   bool
	value string
}

type scopeKey struct{}

func withScopeRecorder(ctx context.Context, s *scopeRecorder) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func recordScope(ctx context.Context, p Principal) {
	s, ok := ctx.Value(scopeKey{}).(*scopeRecorder)
	if !ok {
		return
	}
	s.set = true
	if p.AllStores {
		s.value = "all"
	} else {
		s.value = "store:" + p.StoreHash
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidSecret      = errors.New("invalid bearer secret")
	errInvalidSession     = errors.New("invalid session token")
)

// Authenticate accepts either "Authorization: Bearer <triggerSecret>", which
// grants every store, or an HS256 session token in X-Session-Token signed
// with sessionSecret and carrying a store_hash claim. An empty
// sessionSecret disables session tokens.
func Authenticate(triggerSecret, sessionSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, triggerSecret, sessionSecret)
			if err != nil {
				slog.Warn("auth: rejected request",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"reason", err.Error(),
				)
				status := http.StatusUnauthorized
				code := "AUTH_INVALID"
				if errors.Is(err, errMissingCredentials) {
					code = "AUTH_MISSING"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"unauthorized","code":"` + code + `"}`))
				return
			}
			recordScope(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func authenticate(r *http.Request, triggerSecret, sessionSecret string) (Principal, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !isValidSecret(strings.TrimSpace(token), triggerSecret) {
			return Principal{}, errInvalidSecret
		}
		return Principal{AllStores: true}, nil
	}

	if session := r.Header.Get(SessionHeader); session != "" {
		if sessionSecret == "" {
			return Principal{}, errInvalidSession
		}
		store, err := ParseSession(session, sessionSecret)
		if err != nil {
			return Principal{}, err
		}
		return Principal{StoreHash: store}, nil
	}

	return Principal{}, errMissingCredentials
}

// isValidSecret compares in constant time. An empty configured secret
// never matches.
func isValidSecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// ParseSession verifies an HS256 session token and returns its store_hash
// claim. Expired tokens are rejected.
func ParseSession(token, secret string) (string, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", errInvalidSession
	}
	store, _ := claims["store_hash"].(string)
	if store == "" {
		return "", errInvalidSession
	}
	return store, nil
}
