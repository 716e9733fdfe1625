package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultRoleClaim  = "role"
	defaultRolesClaim = "roles"
	defaultEmailClaim = "email"
	defaultLeeway     = 30 * time.Second
)

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Authenticator verifies HS256 bearer tokens and exposes HTTP middleware.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLeeway sets the tolerated clock skew for exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(a *Authenticator) {
		if d >= 0 {
			a.leeway = d
		}
	}
}

// NewAuthenticator constructs an Authenticator verifying tokens signed with secret.
func NewAuthenticator(secret []byte, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: append([]byte(nil), secret...),
		leeway: defaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return a
}

// Verify parses the token and returns the identity it carries.
func (a *Authenticator) Verify(tokenStr string) (*Identity, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, ErrTokenInvalid
	}
	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return nil, ErrTokenInvalid
	}

	if _, ok := claims["exp"]; !ok {
		return nil, ErrTokenInvalid
	}
	now := a.now().Unix()
	leeway := int64(a.leeway / time.Second)
	if !claims.VerifyExpiresAt(now-leeway, true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now+leeway, false) {
		return nil, ErrTokenInvalid
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, ErrTokenInvalid
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return nil, ErrTokenInvalid
	}
	identity := &Identity{
		Subject: subject,
		Email:   claimAsString(claims, defaultEmailClaim),
		Roles:   append(rolesFromClaim(claims[defaultRoleClaim]), rolesFromClaim(claims[defaultRolesClaim])...),
		Claims:  map[string]any(claims),
	}
	identity.Roles = uniqueRoles(identity.Roles)
	return identity, nil
}

// RequireRoles verifies the Authorization bearer token and, when roles are given, requires one of them.
func (a *Authenticator) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			identity, err := a.Verify(tokenStr)
			switch {
			case errors.Is(err, ErrTokenExpired):
				respondAuthError(w, http.StatusUnauthorized, "token_expired", "bearer token expired")
				return
			case err != nil:
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "bearer token invalid")
				return
			}
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Optional attaches the identity of a valid bearer token and lets requests without an Authorization header
// through anonymously. A malformed, invalid or expired token is still rejected.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	require := a.RequireRoles()
	return func(next http.Handler) http.Handler {
		guarded := require(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func rolesFromClaim(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{normaliseRole(v)}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, normaliseRole(s))
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, normaliseRole(item))
		}
		return out
	default:
		return nil
	}
}

func uniqueRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
