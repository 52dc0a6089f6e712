package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docportal.org/internal/audit"
	"docportal.org/internal/perm"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}
var publicPrefixes = []string{
	"/public/shares/",
}

var errInvalidToken = errors.New("invalid token")

// TokenVerifier validates HMAC-signed bearer tokens minted by the identity
// provider. Issuance lives elsewhere; this side only consumes.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret []byte, issuer string) (*TokenVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	return &TokenVerifier{secret: secret, issuer: issuer}, nil
}

// Subject returns the user id carried by a valid token.
func (v *TokenVerifier) Subject(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", errInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidToken
	}
	if v.issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != v.issuer {
			return "", errInvalidToken
		}
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

// Mint issues a short-lived token, used by tests and local tooling.
func (v *TokenVerifier) Mint(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// withAuth authenticates the bearer token, loads the principal with their
// department assignments, and stashes both the principal and the request
// metadata used by the audit trail.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.verifier == nil || a.principals == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r.WithContext(withRequestMeta(r)))
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		subject, err := a.verifier.Subject(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := a.principals.GetPrincipal(r.Context(), subject)
		if err != nil {
			if errors.Is(err, perm.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unknown principal")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !principal.Active {
			writeError(w, r, http.StatusForbidden, "account is deactivated")
			return
		}

		ctx := perm.ContextWithPrincipal(withRequestMeta(r), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withRequestMeta(r *http.Request) context.Context {
	return audit.WithRequestMeta(r.Context(), audit.RequestMeta{
		RequestID: RequestIDFromContext(r.Context()),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
