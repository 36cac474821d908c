package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/model"
)

// Claims are the fields read from an identity provider token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// PrincipalResolver maps a verified token subject to a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject, email string) (*model.Principal, error)
}

// Authenticate verifies an HS256 bearer token, resolves its subject to a
// principal and populates AuthContext. Browsers opening a websocket cannot
// set headers, so the token may also arrive as the access_token query value.
func Authenticate(secret []byte, issuer string, resolver PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				logger.Debug("reject token", "error", err)
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			p, err := resolver.Resolve(r.Context(), claims.Subject, claims.Email)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInvalid {
					writeError(w, http.StatusUnauthorized, "unauthenticated", "token has no subject")
					return
				}
				logger.Error("resolve principal", "error", err)
				writeError(w, http.StatusServiceUnavailable, string(apperr.KindTransient), "identity lookup failed")
				return
			}
			if p.Status == model.PrincipalDisabled {
				writeError(w, http.StatusForbidden, string(apperr.KindForbidden), "account disabled")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				PrincipalID: p.ID,
				Role:        p.Role,
				Email:       p.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated principal has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, string(apperr.KindForbidden), "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignToken issues an HS256 token for subject. It backs local tooling and
// tests; production tokens come from the identity provider.
func SignToken(secret []byte, claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("sign token: subject is required")
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}
