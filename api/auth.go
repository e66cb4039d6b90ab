// api/auth.go
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminIssuer = "mines-server"

type adminKey struct{}

// AdminAuth checks HS256 bearer tokens whose subject is on the admin list
type AdminAuth struct {
	secret  []byte
	allowed map[string]bool
}

// NewAdminAuth returns an authenticator. An empty secret disables the admin
// endpoints entirely.
func NewAdminAuth(secret string, adminIDs []string) *AdminAuth {
	allowed := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		allowed[id] = true
	}
	return &AdminAuth{secret: []byte(secret), allowed: allowed}
}

// IssueToken signs a token for subject valid for ttl
func (a *AdminAuth) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("admin secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    adminIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate parses a raw token and returns the admin subject
func (a *AdminAuth) Authenticate(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("admin secret not configured")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if !a.allowed[claims.Subject] {
		return "", fmt.Errorf("subject %q is not an admin", claims.Subject)
	}
	return claims.Subject, nil
}

// Require wraps an admin handler. The authenticated subject is available
// through AdminFromContext.
func (a *AdminAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			sendError(w, http.StatusServiceUnavailable, "Admin API disabled")
			return
		}

		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			sendError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		subject, err := a.Authenticate(raw)
		if err != nil {
			log.Printf("⚠️  Admin auth rejected from %s: %v", r.RemoteAddr, err)
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, subject)))
	}
}

// AdminFromContext returns the admin subject set by Require
func AdminFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(adminKey{}).(string)
	return subject
}
