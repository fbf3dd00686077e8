package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

var (
	errMissingToken = errors.New("missing token")
	errAuthDisabled = errors.New("admin auth disabled")
)

// ParseAdminToken validates an HMAC-signed dashboard token and returns its claims.
func ParseAdminToken(secret, tokenString string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	if secret == "" {
		return claims, errAuthDisabled
	}
	if tokenString == "" {
		return claims, errMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return claims, err
	}
	if !token.Valid {
		return claims, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// AdminJWT enforces a simple HMAC-signed JWT for dashboard endpoints.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return adminJWT(secret, false)
}

// AdminJWTWithQuery is AdminJWT that also accepts the token as a `token`
// query parameter. Browsers cannot set headers on a websocket upgrade.
func AdminJWTWithQuery(secret string) func(http.Handler) http.Handler {
	return adminJWT(secret, true)
}

func adminJWT(secret string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" && allowQuery {
				tokenString = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			claims, err := ParseAdminToken(secret, tokenString)
			switch {
			case errors.Is(err, errAuthDisabled):
				writeAuthError(w, "Admin auth disabled.")
				return
			case errors.Is(err, errMissingToken):
				writeAuthError(w, "Access denied. No token provided.")
				return
			case err != nil:
				writeAuthError(w, "Invalid token.")
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
