// internal/api/middleware.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/gitup-custody/internal/custody"
	"github.com/rovshanmuradov/gitup-custody/internal/utils/metrics"
)

type contextKey string

const callerContextKey = contextKey("caller")

// SessionClaims – claims сессионного токена, который выдаёт веб-приложение
// после OAuth. provider_token – делегированный токен хостинга репозиториев.
type SessionClaims struct {
	Provider      string `json:"provider"`
	ProviderToken string `json:"provider_token"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет HS256 JWT и кладёт custody.Caller в контекст.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondUnauthenticated(w, "authorization header required")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondUnauthenticated(w, "invalid authorization header format")
				return
			}

			claims := &SessionClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				respondUnauthenticated(w, "invalid session token")
				return
			}
			if claims.Subject == "" {
				respondUnauthenticated(w, "user id not found in token")
				return
			}

			caller := custody.Caller{
				UserID:      claims.Subject,
				Provider:    claims.Provider,
				AccessToken: claims.ProviderToken,
			}
			ctx := context.WithValue(r.Context(), callerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext достаёт аутентифицированного пользователя из контекста.
func CallerFromContext(ctx context.Context) (custody.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(custody.Caller)
	return caller, ok
}

// RequestLogger пишет access-лог в zap и длительность запроса в prometheus.
func RequestLogger(logger *zap.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	log := logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			collector.RecordHTTPRequest(route, r.Method, strconv.Itoa(ww.Status()), elapsed)
			log.Debug("Request served",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
