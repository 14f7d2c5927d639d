package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles accepted by the gateway.
const (
	RolePayer     = "payer"
	RoleTreasurer = "treasurer"
	RoleAuditor   = "auditor"
	RoleAdmin     = "admin"
)

type contextKey string

const identityContextKey contextKey = "royalty-gateway-identity"

// Identity is the authenticated caller extracted from a JWT.
type Identity struct {
	Subject string
	Role    string
}

// Authenticator verifies bearer tokens on inbound requests.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience []string
	leeway   time.Duration
	nowFn    func() time.Time
}

// AuthenticatorConfig configures token verification.
type AuthenticatorConfig struct {
	Secret   []byte
	Issuer   string
	Audience []string
	Leeway   time.Duration
	Now      func() time.Time
}

// NewAuthenticator builds an Authenticator from cfg.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: secret must not be empty")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("auth: issuer must be configured")
	}
	if len(cfg.Audience) == 0 {
		return nil, errors.New("auth: audience must be configured")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = time.Minute
	}
	return &Authenticator{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: append([]string(nil), cfg.Audience...),
		leeway:   leeway,
		nowFn:    now,
	}, nil
}

// Verify parses and validates token, returning the embedded identity.
func (a *Authenticator) Verify(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.nowFn),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if !parsed.Valid {
		return Identity{}, errors.New("auth: token invalid")
	}
	if !a.audienceAllowed(claims) {
		return Identity{}, errors.New("auth: audience mismatch")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return Identity{}, errors.New("auth: subject missing")
	}
	role, err := extractRole(claims)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: subject, Role: role}, nil
}

func (a *Authenticator) audienceAllowed(claims jwt.MapClaims) bool {
	audiences := extractStringSlice(claims["aud"])
	for _, allowed := range a.audience {
		for _, aud := range audiences {
			if aud == allowed {
				return true
			}
		}
	}
	return false
}

var allowedRoles = map[string]struct{}{
	RolePayer:     {},
	RoleTreasurer: {},
	RoleAuditor:   {},
	RoleAdmin:     {},
}

func extractRole(claims jwt.MapClaims) (string, error) {
	raw, ok := claims["role"].(string)
	if !ok || raw == "" {
		return "", errors.New("auth: role claim missing")
	}
	role := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := allowedRoles[role]; !ok {
		return "", fmt.Errorf("auth: unknown role %q", raw)
	}
	return role, nil
}

func extractStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Middleware authenticates requests and stores the identity on the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		identity, err := a.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// RequireRole gates a handler to the listed roles. Admin always passes.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles)+1)
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	allowed[RoleAdmin] = struct{}{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
