package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sells-group/edgar-monitor/internal/model"
)

// Claims is the JWT payload: who the caller is and what they may do.
type Claims struct {
	UserID string         `json:"user_id"`
	Tier   model.UserTier `json:"tier"`
	Admin  bool           `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type contextKey int

const claimsKey contextKey = iota

// SignToken mints an HS256 token for the given user. Used by the token
// command and by tests.
func SignToken(secret, userID string, tier model.UserTier, admin bool, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Tier:   tier,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticate verifies the bearer token and stashes its claims in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(s.opts.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.UserID == "" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Tier == "" {
			claims.Tier = model.TierFree
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates operator endpoints on the admin claim.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !callerClaims(r).Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerClaims returns the authenticated caller. Only valid below the
// authenticate middleware.
func callerClaims(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsKey).(*Claims)
	if claims == nil {
		return &Claims{Tier: model.TierFree}
	}
	return claims
}
