package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	internal "github.com/frahmantamala/ngo-accountability/internal"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authenticated caller identity. NgoID is set only on
// tokens issued to NGO-operated accounts.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	NgoID       int64  `json:"ngo_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens for routes that need a caller
// identity (feedback submission and checks). Full account management lives in
// the external user directory; this only proves who is calling.
type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, internal.ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token and injects the
// caller identity into the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}

		claims, err := a.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			a.logger.Warn("rejected invalid token", "path", r.URL.Path)
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		user := &internal.AuthUser{
			ID:          claims.UserID,
			DisplayName: claims.DisplayName,
			NgoID:       claims.NgoID,
		}
		next.ServeHTTP(w, r.WithContext(internal.ContextWithUser(r.Context(), user)))
	})
}
