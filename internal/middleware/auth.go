package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coopa/backend/internal/services"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenVerifier resolves a bearer token to the caller's user ID.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// UserID returns the authenticated caller set by Auth.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID stores an authenticated user ID on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Auth requires a valid bearer token. A nil verifier answers 503.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				services.WriteError(w, &services.AppError{Kind: services.ErrNotConfigured, Message: "authentication is not configured"})
				return
			}

			// Get token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.WriteError(w, &services.AppError{Kind: services.ErrUnauthorized, Message: "Authorization header required"})
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				services.WriteError(w, &services.AppError{Kind: services.ErrUnauthorized, Message: "Invalid authorization header format"})
				return
			}

			userID, err := verifier.VerifyToken(r.Context(), parts[1])
			if err != nil || userID == "" {
				services.WriteError(w, &services.AppError{Kind: services.ErrUnauthorized, Message: "Invalid token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

var errInvalidToken = errors.New("invalid token")

// JWTVerifier checks HS256 tokens carrying a user_id claim.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns nil for an empty secret so Auth reports 503.
func NewJWTVerifier(secret string) *JWTVerifier {
	if secret == "" {
		return nil
	}
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) VerifyToken(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidToken
	}

	userID, ok := claims["user_id"]
	if !ok || userID == nil {
		return "", errInvalidToken
	}
	return fmt.Sprintf("%v", userID), nil
}
